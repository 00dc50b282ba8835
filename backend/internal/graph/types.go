package graph

import (
	"strings"
	"time"
)

// Reserved property keys managed by the repository itself. Caller-supplied
// property maps are stripped of these before any write.
const (
	KeyID           = "id"
	KeyPartitionKey = "pk"
	KeyType         = "type"
	KeyLabel        = "label"
	KeyDocument     = "doc"
	KeyEdgeID       = "edge_id"
	KeyRiskCategory = "riskCategory"
)

// Risk categories derived from edge labels
const (
	RiskCause   = "Cause"
	RiskEffect  = "Effect"
	RiskProcess = "Process"
)

// Sequence edge labels
const (
	LabelCauses     = "CAUSES"
	LabelResultedIn = "RESULTED_IN"
	LabelNext       = "NEXT"
)

// Node is one logical entity headed for the store. PartitionKey is fixed at
// first write; updates locate the node by (id, pk) and never touch pk.
type Node struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	Type         string     `json:"type"`
	PartitionKey string     `json:"partitionKey,omitempty"`
	Properties   Properties `json:"properties,omitempty"`
}

// Edge is one relationship instance. An explicit ID keeps intentionally
// parallel edges (sequence transitions from different cases) distinct;
// an empty ID collapses onto the (from, label, to) identity.
type Edge struct {
	ID         string     `json:"id,omitempty"`
	Label      string     `json:"label"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	Properties Properties `json:"properties,omitempty"`
}

// Mutation is one ingestion batch produced by the model builder
type Mutation struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeView is a node as read back from the store
type NodeView struct {
	ID           string                 `json:"id"`
	Label        string                 `json:"label"`
	Type         string                 `json:"type"`
	PartitionKey string                 `json:"partitionKey,omitempty"`
	Document     string                 `json:"documentId,omitempty"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
}

// EdgeView is an edge as read back from the store
type EdgeView struct {
	ID           string                 `json:"id"`
	Label        string                 `json:"label"`
	From         string                 `json:"from"`
	To           string                 `json:"to"`
	RiskCategory string                 `json:"riskCategory,omitempty"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
}

// View is a combined read result
type View struct {
	Nodes []NodeView `json:"nodes"`
	Edges []EdgeView `json:"edges"`
}

// Stats summarizes the stored graph
type Stats struct {
	NodeCount    int64            `json:"nodeCount"`
	EdgeCount    int64            `json:"edgeCount"`
	NodesByType  map[string]int64 `json:"nodesByType"`
	EdgesByLabel map[string]int64 `json:"edgesByLabel"`
}

// DocumentInfo describes one ingestion batch
type DocumentInfo struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename,omitempty"`
	ProcessedAt time.Time `json:"processedAt,omitempty"`
	NodeCount   int64     `json:"nodeCount"`
	EdgeCount   int64     `json:"edgeCount"`
}

// RiskCategoryForLabel derives the risk category for an edge label.
// The table is static: callers never set riskCategory directly.
func RiskCategoryForLabel(label string) string {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case LabelCauses:
		return RiskCause
	case LabelResultedIn:
		return RiskEffect
	case LabelNext:
		return RiskProcess
	default:
		return ""
	}
}
