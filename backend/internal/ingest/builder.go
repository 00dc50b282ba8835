package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"kgraph/backend/internal/graph"
	"kgraph/backend/pkg/logger"
	"go.uber.org/zap"
)

// Column is one header/value cell of a source row
type Column struct {
	Header string `json:"header"`
	Value  string `json:"value"`
}

// Row is one source record. Index is the row's position in the source,
// used for sequence edge identity and as a sort tiebreaker.
type Row struct {
	Index   int
	Columns []Column
}

// Builder assembles the Star Model for one ingested source: a Case hub per
// subject fanning out to context nodes, an Activity timeline chained by
// sequence edges, and a Document node owning the whole batch.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a model builder
func NewBuilder() *Builder {
	return &Builder{logger: logger.Get()}
}

// activityEvent is one timestamped occurrence on a case timeline
type activityEvent struct {
	nodeID   string
	label    string
	when     string
	rowIndex int
	colIndex int
}

// Build turns source rows into a complete node/edge batch for documentID.
// Nodes accumulate in a map keyed by id: properties seen earlier survive a
// later partial occurrence, and cause/effect annotations are never
// destroyed.
func (b *Builder) Build(rows []Row, documentID string) *graph.Mutation {
	nodes := map[string]*graph.Node{}
	var nodeOrder []string
	var edges []graph.Edge
	edgeSeen := map[string]bool{}

	addNode := func(n graph.Node) *graph.Node {
		existing, ok := nodes[n.ID]
		if !ok {
			stored := n
			if stored.Properties == nil {
				stored.Properties = graph.Properties{}
			}
			nodes[n.ID] = &stored
			nodeOrder = append(nodeOrder, n.ID)
			return &stored
		}
		existing.Properties.Merge(n.Properties)
		return existing
	}

	addEdge := func(e graph.Edge) {
		key := e.ID
		if key == "" {
			key = e.From + "|" + e.Label + "|" + e.To
			if edgeSeen[key] {
				return
			}
			edgeSeen[key] = true
		}
		if e.Properties == nil {
			e.Properties = graph.Properties{}
		}
		e.Properties[graph.KeyDocument] = graph.String(documentID)
		edges = append(edges, e)
	}

	document := addNode(graph.Node{
		ID:           documentID,
		Label:        documentID,
		Type:         string(TypeDocument),
		PartitionKey: documentID,
		Properties: graph.Properties{
			graph.KeyDocument: graph.String(documentID),
		},
	})

	caseTimelines := map[string][]activityEvent{}
	var caseOrder []string

	for _, row := range rows {
		subject := subjectColumn(row)
		if subject < 0 {
			continue
		}

		caseID, caseLabel := IdentityFor(row.Columns[subject].Value, TypeCase)
		if _, seen := nodes[caseID]; !seen {
			caseOrder = append(caseOrder, caseID)
		}
		addNode(graph.Node{
			ID:           caseID,
			Label:        caseLabel,
			Type:         string(TypeCase),
			PartitionKey: documentID,
			Properties: graph.Properties{
				graph.KeyDocument: graph.String(documentID),
			},
		})
		addEdge(graph.Edge{From: documentID, To: caseID, Label: "CONTAINS"})

		rowTime := firstTimeValue(row, subject)

		for colIndex, col := range row.Columns {
			if colIndex == subject {
				continue
			}
			value := strings.TrimSpace(col.Value)
			if value == "" {
				continue
			}

			nodeType := Classify(col.Header, value)
			if nodeType == TypeCase {
				// A second subject-shaped column adds nothing to this row's star
				continue
			}

			contextID, contextLabel := IdentityFor(value, nodeType)
			addNode(graph.Node{
				ID:           contextID,
				Label:        contextLabel,
				Type:         string(nodeType),
				PartitionKey: documentID,
				Properties: graph.Properties{
					graph.KeyDocument: graph.String(documentID),
					"source_column":   graph.String(col.Header),
				},
			})
			addEdge(graph.Edge{From: caseID, To: contextID, Label: RelationForType(nodeType)})
			addEdge(graph.Edge{
				From:  documentID,
				To:    contextID,
				Label: "HAS_" + strings.ToUpper(string(nodeType)),
			})

			if nodeType == TypeActivity {
				caseTimelines[caseID] = append(caseTimelines[caseID], activityEvent{
					nodeID:   contextID,
					label:    contextLabel,
					when:     rowTime,
					rowIndex: row.Index,
					colIndex: colIndex,
				})
			}
		}
	}

	// Chain each case's activity timeline in chronological order
	for _, caseID := range caseOrder {
		events := caseTimelines[caseID]
		if len(events) < 2 {
			continue
		}
		sortEvents(events)

		var seq sequencer
		for _, event := range events {
			transition, ok := seq.observe(event.nodeID, event.label, event.rowIndex)
			if !ok {
				continue
			}
			addEdge(graph.Edge{
				// Row index in the id keeps transitions from different
				// rows/cases as distinct parallel edges
				ID:    fmt.Sprintf("seq_%s_%d_%s_%s", documentID, transition.RowIndex, transition.From, transition.To),
				From:  transition.From,
				To:    transition.To,
				Label: EdgeLabelForCategory(transition.Category),
			})

			switch transition.Category {
			case graph.RiskCause:
				nodes[transition.To].Properties["cause"] = graph.Bool(true)
			case graph.RiskEffect:
				nodes[transition.To].Properties["effect"] = graph.Bool(true)
			}
		}
	}

	// Aggregate counts recorded on the Document node once the batch is complete
	document.Properties["node_count"] = graph.Number(float64(len(nodes) - 1))
	document.Properties["edge_count"] = graph.Number(float64(len(edges)))

	ordered := make([]graph.Node, 0, len(nodes))
	for _, id := range nodeOrder {
		ordered = append(ordered, *nodes[id])
	}

	b.logger.Info("Graph model built",
		zap.String("document_id", documentID),
		zap.Int("rows", len(rows)),
		zap.Int("nodes", len(ordered)),
		zap.Int("edges", len(edges)),
	)
	return &graph.Mutation{Nodes: ordered, Edges: edges}
}

// subjectColumn picks the Case hub column: the first column classified as
// Case, falling back to the first column
func subjectColumn(row Row) int {
	if len(row.Columns) == 0 {
		return -1
	}
	for i, col := range row.Columns {
		if Classify(col.Header, col.Value) == TypeCase {
			return i
		}
	}
	return 0
}

// firstTimeValue returns the raw value of the row's first Time column
func firstTimeValue(row Row, subject int) string {
	for i, col := range row.Columns {
		if i == subject {
			continue
		}
		if Classify(col.Header, col.Value) == TypeTime {
			return strings.TrimSpace(col.Value)
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseEventTime(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sortEvents orders a case timeline chronologically, falling back to
// lexicographic comparison for unparseable stamps and to source position
// for ties
func sortEvents(events []activityEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, okI := parseEventTime(events[i].when)
		tj, okJ := parseEventTime(events[j].when)
		switch {
		case okI && okJ && !ti.Equal(tj):
			return ti.Before(tj)
		case (!okI || !okJ) && events[i].when != events[j].when:
			return events[i].when < events[j].when
		case events[i].rowIndex != events[j].rowIndex:
			return events[i].rowIndex < events[j].rowIndex
		default:
			return events[i].colIndex < events[j].colIndex
		}
	})
}
