package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kgraph/backend/internal/extract"
	"kgraph/backend/internal/graph"
	"kgraph/backend/internal/ingest"
	pkgerrors "kgraph/backend/pkg/errors"
)

// fakeStore records writes in order and can fail a chosen call
type fakeStore struct {
	writes   []string
	failAt   int // 1-based write index to fail at; 0 disables
	failWith error
}

func (f *fakeStore) record(entry string) error {
	f.writes = append(f.writes, entry)
	if f.failAt > 0 && len(f.writes) == f.failAt {
		return f.failWith
	}
	return nil
}

func (f *fakeStore) UpsertNode(ctx context.Context, n graph.Node) error {
	return f.record("node:" + n.ID)
}

func (f *fakeStore) UpsertEdge(ctx context.Context, e graph.Edge) error {
	return f.record("edge:" + e.From + ">" + e.To)
}

type fakeExtractor struct {
	result *extract.Extraction
	err    error
}

func (f *fakeExtractor) ExtractText(ctx context.Context, text string) (*extract.Extraction, error) {
	return f.result, f.err
}

func sampleRows() []ingest.Row {
	return []ingest.Row{
		{Index: 0, Columns: []ingest.Column{
			{Header: "case_id", Value: "1"},
			{Header: "activity", Value: "Call Started"},
		}},
		{Index: 1, Columns: []ingest.Column{
			{Header: "case_id", Value: "1"},
			{Header: "activity", Value: "Account Closed"},
		}},
	}
}

func TestIngestRowsWritesNodesBeforeEdges(t *testing.T) {
	store := &fakeStore{}
	svc := NewIngestService(store, nil, WithWriteDelay(0, 1))

	result, err := svc.IngestRows(context.Background(), sampleRows(), "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, result.NodeCount, result.NodesCommitted)
	assert.Equal(t, result.EdgeCount, result.EdgesCommitted)

	// Every node write precedes the first edge write
	firstEdge := -1
	lastNode := -1
	for i, entry := range store.writes {
		if entry[:5] == "node:" {
			lastNode = i
		} else if firstEdge == -1 {
			firstEdge = i
		}
	}
	require.GreaterOrEqual(t, firstEdge, 0)
	assert.Less(t, lastNode, firstEdge)
}

func TestIngestRowsEmptyInput(t *testing.T) {
	svc := NewIngestService(&fakeStore{}, nil)

	_, err := svc.IngestRows(context.Background(), nil, "doc-1")
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeValidation))
}

func TestIngestRowsGeneratesDocumentID(t *testing.T) {
	store := &fakeStore{}
	svc := NewIngestService(store, nil, WithWriteDelay(0, 1))

	result, err := svc.IngestRows(context.Background(), sampleRows(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.DocumentID)
}

func TestIngestRowsPartialFailureReportsCommitted(t *testing.T) {
	remote := pkgerrors.NewRemoteFatal("write", 3, nil)
	store := &fakeStore{failAt: 3, failWith: remote}
	svc := NewIngestService(store, nil, WithWriteDelay(0, 1))

	result, err := svc.IngestRows(context.Background(), sampleRows(), "doc-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeRemote))

	require.NotNil(t, result)
	assert.Equal(t, 2, result.NodesCommitted)
	assert.Equal(t, 0, result.EdgesCommitted)
	assert.Greater(t, result.NodeCount, result.NodesCommitted)
}

func TestIngestPacing(t *testing.T) {
	store := &fakeStore{}
	var naps int
	svc := NewIngestService(store, nil,
		WithWriteDelay(10*time.Millisecond, 2),
		WithSleep(func(time.Duration) { naps++ }),
	)

	_, err := svc.IngestRows(context.Background(), sampleRows(), "doc-1")
	require.NoError(t, err)

	// One nap per two writes
	assert.Equal(t, len(store.writes)/2, naps)
}

func TestIngestTextWithoutExtractor(t *testing.T) {
	svc := NewIngestService(&fakeStore{}, nil)

	_, err := svc.IngestText(context.Background(), "some text", "doc-1")
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeValidation))
}

func TestIngestTextEmptyInput(t *testing.T) {
	svc := NewIngestService(&fakeStore{}, &fakeExtractor{})

	_, err := svc.IngestText(context.Background(), "", "doc-1")
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeValidation))
}

func TestIngestTextExtractionError(t *testing.T) {
	extractor := &fakeExtractor{err: pkgerrors.NewExtractionFailed(0, errors.New("boom"))}
	svc := NewIngestService(&fakeStore{}, extractor)

	_, err := svc.IngestText(context.Background(), "some text", "doc-1")
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeExtraction))
}

func TestIngestTextBuildsGraphFromExtraction(t *testing.T) {
	extractor := &fakeExtractor{result: &extract.Extraction{
		Entities: []extract.Entity{
			{Label: "Alice", Type: "Person", Properties: graph.Properties{}},
			{Label: "Acme Towing", Type: "Company", Properties: graph.Properties{}},
		},
		Relationships: []extract.Relationship{
			// "Main Office" never appeared as an entity; a Concept node is created
			{From: "Alice", To: "Main Office", Type: "WORKS_AT", Confidence: 0.8},
		},
		FailedChunks: 1,
	}}
	store := &fakeStore{}
	svc := NewIngestService(store, extractor, WithWriteDelay(0, 1))

	result, err := svc.IngestText(context.Background(), "some text", "doc-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailedChunks)
	// Document + Customer + Organization + resolved Concept endpoint
	assert.Equal(t, 4, result.NodeCount)
	// Two CONTAINS edges + one relationship
	assert.Equal(t, 3, result.EdgeCount)

	assert.Contains(t, store.writes, "node:doc-1")
	assert.Contains(t, store.writes, "node:Customer_Alice")
	assert.Contains(t, store.writes, "node:Organization_Acme_Towing")
	assert.Contains(t, store.writes, "node:Concept_Main_Office")
	assert.Contains(t, store.writes, "edge:Customer_Alice>Concept_Main_Office")
}
