package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"kgraph/backend/internal/extract"
	"kgraph/backend/internal/graph"
	"kgraph/backend/internal/ingest"
	pkgerrors "kgraph/backend/pkg/errors"
	"kgraph/backend/pkg/logger"
	"go.uber.org/zap"
)

// GraphStore is the slice of the repository the ingestion service writes
// through; tests substitute a fake.
type GraphStore interface {
	UpsertNode(ctx context.Context, n graph.Node) error
	UpsertEdge(ctx context.Context, e graph.Edge) error
}

// TextExtractor is the outbound text-extraction collaborator
type TextExtractor interface {
	ExtractText(ctx context.Context, text string) (*extract.Extraction, error)
}

// IngestService orchestrates ingestion: rows (or extracted text) through
// the model builder into the partitioned repository, nodes strictly before
// the edges that reference them.
type IngestService struct {
	store     GraphStore
	builder   *ingest.Builder
	extractor TextExtractor // nil when extraction is not configured
	logger    *zap.Logger

	// Cooperative backpressure: a micro-delay every few writes keeps one
	// batch from saturating the store's throughput budget.
	writeDelay      time.Duration
	writeDelayEvery int
	sleep           func(time.Duration)
}

// IngestOption configures an IngestService
type IngestOption func(*IngestService)

// WithWriteDelay sets the micro-delay inserted between write bursts
func WithWriteDelay(delay time.Duration, every int) IngestOption {
	return func(s *IngestService) {
		s.writeDelay = delay
		if every > 0 {
			s.writeDelayEvery = every
		}
	}
}

// WithSleep substitutes the delay sleep, for tests
func WithSleep(fn func(time.Duration)) IngestOption {
	return func(s *IngestService) { s.sleep = fn }
}

// NewIngestService creates the ingestion orchestrator. extractor may be
// nil; text ingestion then fails fast with a validation error.
func NewIngestService(store GraphStore, extractor TextExtractor, opts ...IngestOption) *IngestService {
	s := &IngestService{
		store:           store,
		builder:         ingest.NewBuilder(),
		extractor:       extractor,
		logger:          logger.Get(),
		writeDelay:      50 * time.Millisecond,
		writeDelayEvery: 5,
		sleep:           time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result reports one ingestion batch. On partial failure the committed
// counts show how far the batch got before the error.
type Result struct {
	DocumentID     string `json:"documentId"`
	NodeCount      int    `json:"nodeCount"`
	EdgeCount      int    `json:"edgeCount"`
	NodesCommitted int    `json:"nodesCommitted"`
	EdgesCommitted int    `json:"edgesCommitted"`
	FailedChunks   int    `json:"failedChunks,omitempty"`
}

// IngestRows builds the Star Model for the rows and persists it
func (s *IngestService) IngestRows(ctx context.Context, rows []ingest.Row, documentID string) (*Result, error) {
	if len(rows) == 0 {
		return nil, pkgerrors.NewValidationFailed("rows", "at least one row is required")
	}
	if documentID == "" {
		documentID = uuid.NewString()
	}

	mutation := s.builder.Build(rows, documentID)
	return s.flush(ctx, mutation, documentID, 0)
}

// IngestText runs the text through the extraction collaborator, validates
// and normalizes its output, and persists the resulting graph
func (s *IngestService) IngestText(ctx context.Context, text, documentID string) (*Result, error) {
	if text == "" {
		return nil, pkgerrors.NewValidationFailed("text", "text input is required")
	}
	if s.extractor == nil {
		return nil, pkgerrors.NewValidationFailed("extractor", "text extraction is not configured")
	}
	if documentID == "" {
		documentID = uuid.NewString()
	}

	extraction, err := s.extractor.ExtractText(ctx, text)
	if err != nil {
		return nil, err
	}

	mutation := s.mutationFromExtraction(extraction, documentID)
	return s.flush(ctx, mutation, documentID, extraction.FailedChunks)
}

// mutationFromExtraction converts validated extraction output into a
// node/edge batch. Labels go through the identity normalizer before they
// are trusted; relationship endpoints unknown to the entity set become
// Concept nodes so the edge still lands on existing endpoints.
func (s *IngestService) mutationFromExtraction(extraction *extract.Extraction, documentID string) *graph.Mutation {
	mutation := &graph.Mutation{}
	byID := map[string]bool{}
	idByLabel := map[string]string{}

	addNode := func(n graph.Node) {
		if byID[n.ID] {
			return
		}
		byID[n.ID] = true
		mutation.Nodes = append(mutation.Nodes, n)
	}

	document := graph.Node{
		ID:           documentID,
		Label:        documentID,
		Type:         string(ingest.TypeDocument),
		PartitionKey: documentID,
		Properties: graph.Properties{
			graph.KeyDocument: graph.String(documentID),
		},
	}
	addNode(document)

	for _, entity := range extraction.Entities {
		nodeType := ingest.TypeFromExtracted(entity.Type, entity.Label)
		id, normalized := ingest.IdentityFor(entity.Label, nodeType)

		props := entity.Properties.Clone()
		props[graph.KeyDocument] = graph.String(documentID)

		addNode(graph.Node{
			ID:           id,
			Label:        normalized,
			Type:         string(nodeType),
			PartitionKey: documentID,
			Properties:   props,
		})
		idByLabel[ingest.NormalizeLabel(entity.Label, nodeType)] = id

		mutation.Edges = append(mutation.Edges, graph.Edge{
			From:       documentID,
			To:         id,
			Label:      "CONTAINS",
			Properties: graph.Properties{graph.KeyDocument: graph.String(documentID)},
		})
	}

	resolveEndpoint := func(label string) string {
		if id, ok := idByLabel[label]; ok {
			return id
		}
		id, normalized := ingest.IdentityFor(label, ingest.TypeConcept)
		addNode(graph.Node{
			ID:           id,
			Label:        normalized,
			Type:         string(ingest.TypeConcept),
			PartitionKey: documentID,
			Properties: graph.Properties{
				graph.KeyDocument: graph.String(documentID),
			},
		})
		idByLabel[label] = id
		return id
	}

	for _, rel := range extraction.Relationships {
		mutation.Edges = append(mutation.Edges, graph.Edge{
			From:  resolveEndpoint(rel.From),
			To:    resolveEndpoint(rel.To),
			Label: rel.Type,
			Properties: graph.Properties{
				graph.KeyDocument: graph.String(documentID),
				"confidence":      graph.Number(rel.Confidence),
			},
		})
	}

	// Aggregate counts land on the Document node once the batch is complete;
	// the slice entry shares this property map
	document.Properties["node_count"] = graph.Number(float64(len(mutation.Nodes) - 1))
	document.Properties["edge_count"] = graph.Number(float64(len(mutation.Edges)))

	return mutation
}

// flush persists a batch: all node upserts first, then edges, because edge
// creation requires both endpoints to already exist in the store. The
// micro-delay is backpressure, not correctness.
func (s *IngestService) flush(ctx context.Context, mutation *graph.Mutation, documentID string, failedChunks int) (*Result, error) {
	result := &Result{
		DocumentID:   documentID,
		NodeCount:    len(mutation.Nodes),
		EdgeCount:    len(mutation.Edges),
		FailedChunks: failedChunks,
	}

	writes := 0
	pace := func() {
		writes++
		if s.writeDelay > 0 && writes%s.writeDelayEvery == 0 {
			s.sleep(s.writeDelay)
		}
	}

	for _, node := range mutation.Nodes {
		if err := s.store.UpsertNode(ctx, node); err != nil {
			s.logger.Error("Ingestion failed mid-batch",
				zap.String("document_id", documentID),
				zap.String("node_id", node.ID),
				zap.Int("nodes_committed", result.NodesCommitted),
				zap.Error(err),
			)
			return result, err
		}
		result.NodesCommitted++
		pace()
	}

	for _, edge := range mutation.Edges {
		if err := s.store.UpsertEdge(ctx, edge); err != nil {
			s.logger.Error("Ingestion failed mid-batch",
				zap.String("document_id", documentID),
				zap.String("edge_label", edge.Label),
				zap.Int("edges_committed", result.EdgesCommitted),
				zap.Error(err),
			)
			return result, err
		}
		result.EdgesCommitted++
		pace()
	}

	s.logger.Info("Ingestion batch committed",
		zap.String("document_id", documentID),
		zap.Int("nodes", result.NodesCommitted),
		zap.Int("edges", result.EdgesCommitted),
	)
	return result, nil
}
