package graph

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgerrors "kgraph/backend/pkg/errors"
)

// fakeRunner scripts the remote store: each call pops the next queued
// result and records what was asked
type fakeRunner struct {
	results []fakeResult
	calls   []runnerCall
}

type fakeResult struct {
	rows []map[string]interface{}
	err  error
}

type runnerCall struct {
	query  string
	params map[string]interface{}
	write  bool
}

func (f *fakeRunner) pop() fakeResult {
	if len(f.results) == 0 {
		return fakeResult{}
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next
}

func (f *fakeRunner) ReadQuery(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	f.calls = append(f.calls, runnerCall{query: query, params: params})
	next := f.pop()
	return next.rows, next.err
}

func (f *fakeRunner) WriteQuery(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	f.calls = append(f.calls, runnerCall{query: query, params: params, write: true})
	next := f.pop()
	return next.rows, next.err
}

func (f *fakeRunner) Close(ctx context.Context) error { return nil }

func newTestRepository(runner *fakeRunner, opts ...Option) *Repository {
	base := []Option{WithSleep(func(time.Duration) {})}
	return NewRepository(runner, append(base, opts...)...)
}

func okRow() []map[string]interface{} {
	return []map[string]interface{}{{"id": "x", "edge_id": "x", "deleted": int64(1)}}
}

func TestUpsertNodeDefaultsPartitionKey(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{{rows: okRow()}}}
	repo := newTestRepository(runner)

	err := repo.UpsertNode(context.Background(), Node{ID: "Case_1", Type: "Case"})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.True(t, call.write)
	assert.Contains(t, call.query, "MERGE (n:Entity {id: $id})")
	assert.Contains(t, call.query, "ON CREATE SET n.pk = $pk")
	assert.Equal(t, "Case_1", call.params["pk"])
	assert.Equal(t, "Case_1", call.params["label"])
}

func TestUpsertNodeStripsReservedProperties(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{{rows: okRow()}}}
	repo := newTestRepository(runner)

	err := repo.UpsertNode(context.Background(), Node{
		ID:   "Case_1",
		Type: "Case",
		Properties: Properties{
			"pk":     String("sneaky"),
			"id":     String("other"),
			"amount": Number(10),
		},
	})
	require.NoError(t, err)

	props := runner.calls[0].params["props"].(map[string]interface{})
	assert.NotContains(t, props, "pk")
	assert.NotContains(t, props, "id")
	assert.Equal(t, float64(10), props["amount"])
}

func TestUpsertNodeValidationFailsBeforeAnyCall(t *testing.T) {
	runner := &fakeRunner{}
	repo := newTestRepository(runner)

	err := repo.UpsertNode(context.Background(), Node{ID: "x", Type: ""})
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeValidation))
	assert.Empty(t, runner.calls)

	err = repo.UpsertNode(context.Background(), Node{ID: "bad\"quote", Type: "Case"})
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeValidation))
	assert.Empty(t, runner.calls)
}

func TestRetryRecoversFromThrottling(t *testing.T) {
	throttled := pkgerrors.NewThrottled("write", 0, nil)
	runner := &fakeRunner{results: []fakeResult{
		{err: throttled},
		{err: throttled},
		{rows: okRow()},
	}}

	var backoffs []time.Duration
	repo := NewRepository(runner,
		WithMaxRetries(5),
		WithRetryBase(100*time.Millisecond),
		WithSleep(func(d time.Duration) { backoffs = append(backoffs, d) }),
	)
	repo.jitter = func(time.Duration) time.Duration { return 0 }

	err := repo.UpsertNode(context.Background(), Node{ID: "n1", Type: "Case"})
	require.NoError(t, err)
	assert.Len(t, runner.calls, 3)

	// Exponential backoff without jitter: base, then base*2
	require.Len(t, backoffs, 2)
	assert.Equal(t, 100*time.Millisecond, backoffs[0])
	assert.Equal(t, 200*time.Millisecond, backoffs[1])
}

func TestRetryExhaustionBecomesRemoteFatal(t *testing.T) {
	throttled := pkgerrors.NewThrottled("write", 0, nil)
	runner := &fakeRunner{results: []fakeResult{
		{err: throttled}, {err: throttled}, {err: throttled},
	}}
	repo := newTestRepository(runner, WithMaxRetries(2))

	err := repo.UpsertNode(context.Background(), Node{ID: "n1", Type: "Case"})
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeRemote))
	assert.Len(t, runner.calls, 3)
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	fatal := pkgerrors.NewRemoteFatal("write", 1, nil)
	runner := &fakeRunner{results: []fakeResult{{err: fatal}}}
	repo := newTestRepository(runner, WithMaxRetries(5))

	err := repo.UpsertNode(context.Background(), Node{ID: "n1", Type: "Case"})
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeRemote))
	assert.Len(t, runner.calls, 1)
}

func TestSanitizeRelType(t *testing.T) {
	assert.Equal(t, "RESULTED_IN", sanitizeRelType("resulted in!"))
	assert.Equal(t, "NEXT", sanitizeRelType("NEXT"))
	assert.Equal(t, "HAS_AMOUNT", sanitizeRelType(" has-amount "))
	assert.Equal(t, "RELATED_TO", sanitizeRelType("!!!"))
	assert.Equal(t, "RELATED_TO", sanitizeRelType("123bad"))
}

func TestUpsertEdgeDerivesRiskCategory(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{{rows: okRow()}}}
	repo := newTestRepository(runner)

	err := repo.UpsertEdge(context.Background(), Edge{
		From:  "Activity_A",
		To:    "Activity_B",
		Label: "CAUSES",
		Properties: Properties{
			"riskCategory": String("Forged"), // caller attempt, must be ignored
			"doc":          String("doc-1"),
		},
	})
	require.NoError(t, err)

	call := runner.calls[0]
	assert.Contains(t, call.query, "[r:CAUSES {edge_id: $edgeID}]")
	assert.Equal(t, RiskCause, call.params["risk"])
	assert.Equal(t, "doc-1", call.params["doc"])
	props := call.params["props"].(map[string]interface{})
	assert.NotContains(t, props, "riskCategory")
}

func TestUpsertEdgeDefaultIDCollapsesRepeats(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{{rows: okRow()}}}
	repo := newTestRepository(runner)

	err := repo.UpsertEdge(context.Background(), Edge{From: "a", To: "b", Label: "NEXT"})
	require.NoError(t, err)
	assert.Equal(t, "a_next_b", runner.calls[0].params["edgeID"])
}

func TestUpsertEdgeMissingEndpoint(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{{rows: nil}}}
	repo := newTestRepository(runner)

	err := repo.UpsertEdge(context.Background(), Edge{From: "a", To: "ghost", Label: "NEXT"})
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeNotFound))
}

func TestUpdateNodeNeverTouchesPartitionKey(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{{rows: okRow()}}}
	repo := newTestRepository(runner)

	err := repo.UpdateNode(context.Background(), "Case_1", Properties{
		"pk":     String("rewrite-attempt"),
		"status": String("open"),
	}, "batch-7")
	require.NoError(t, err)

	call := runner.calls[0]
	assert.Contains(t, call.query, "{id: $id, pk: $pk}")
	assert.NotContains(t, strings.Split(call.query, "MATCH")[1], "SET n.pk")
	assert.Equal(t, "batch-7", call.params["pk"])
	props := call.params["props"].(map[string]interface{})
	assert.NotContains(t, props, "pk")
}

func TestUpdateNodeResolvesUnusableHint(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{{"pk": "batch-7"}}}, // pk lookup
		{rows: okRow()}, // update
	}}
	repo := newTestRepository(runner)

	// A uuid-shaped hint is a guess, not a key
	err := repo.UpdateNode(context.Background(), "Case_1", Properties{"status": String("open")},
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	assert.False(t, runner.calls[0].write)
	assert.Contains(t, runner.calls[0].query, "RETURN n.pk AS pk")
	assert.Equal(t, "batch-7", runner.calls[1].params["pk"])
}

func TestUpdateNodeHintEqualToIDIsRejected(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{{"pk": "batch-1"}}},
		{rows: okRow()},
	}}
	repo := newTestRepository(runner)

	err := repo.UpdateNode(context.Background(), "Case_1", Properties{}, "Case_1")
	require.NoError(t, err)
	assert.Len(t, runner.calls, 2)
	assert.Equal(t, "batch-1", runner.calls[1].params["pk"])
}

func TestUpdateNodeMissingNode(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{{rows: nil}}}
	repo := newTestRepository(runner)

	err := repo.UpdateNode(context.Background(), "ghost", Properties{}, "")
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeNotFound))
}

func TestDeleteNodeUsesResolvedKey(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{{"pk": "batch-3"}}},
		{rows: []map[string]interface{}{{"deleted": int64(1)}}},
	}}
	repo := newTestRepository(runner)

	err := repo.DeleteNode(context.Background(), "Case_1", "")
	require.NoError(t, err)
	assert.Contains(t, runner.calls[1].query, "DETACH DELETE n")
	assert.Equal(t, "batch-3", runner.calls[1].params["pk"])
}

func TestDeleteEdge(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{{"deleted": int64(1)}}},
	}}
	repo := newTestRepository(runner)

	require.NoError(t, repo.DeleteEdge(context.Background(), "seq_doc_1_a_b"))
	assert.Equal(t, "seq_doc_1_a_b", runner.calls[0].params["edgeID"])
}

func TestDeleteEdgeNotFound(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{{"deleted": int64(0)}}},
	}}
	repo := newTestRepository(runner)

	err := repo.DeleteEdge(context.Background(), "ghost")
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeNotFound))
}

func TestUsablePartitionKey(t *testing.T) {
	assert.False(t, usablePartitionKey("", "Case_1"))
	assert.False(t, usablePartitionKey("Case_1", "Case_1"))
	assert.False(t, usablePartitionKey("6ba7b810-9dad-11d1-80b4-00c04fd430c8", "Case_1"))
	assert.True(t, usablePartitionKey("doc-1", "Case_1"))
}

func TestDeleteByDocumentConverges(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{{"deleted": int64(100)}}},   // batch 1
		{rows: []map[string]interface{}{{"remaining": int64(50)}}},  // recount
		{rows: []map[string]interface{}{{"deleted": int64(50)}}},    // batch 2
		{rows: []map[string]interface{}{{"remaining": int64(0)}}},   // done
	}}
	repo := newTestRepository(runner, WithDeleteBatchSize(100))

	total, err := repo.DeleteByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)
	assert.Len(t, runner.calls, 4)
	assert.Equal(t, int64(100), runner.calls[0].params["batch"])
}

func TestDeleteByDocumentRequiresID(t *testing.T) {
	repo := newTestRepository(&fakeRunner{})
	_, err := repo.DeleteByDocument(context.Background(), "")
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeValidation))
}

func TestClearScopeInvalid(t *testing.T) {
	repo := newTestRepository(&fakeRunner{})
	_, err := repo.ClearScope(context.Background(), "everything")
	assert.True(t, pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeValidation))
}

func TestClearScopeRelationships(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{{"deleted": int64(4)}}},
	}}
	repo := newTestRepository(runner, WithDeleteBatchSize(100))

	total, err := repo.ClearScope(context.Background(), "relationships")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Contains(t, runner.calls[0].query, "DELETE rel")
	assert.NotContains(t, runner.calls[0].query, "DETACH")
}

func TestFetchMapsViews(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{{
			"id": "Case_1", "label": "1", "type": "Case", "pk": "doc-1",
			"props": map[string]interface{}{"doc": "doc-1", "id": "Case_1", "status": "open"},
		}}},
		{rows: []map[string]interface{}{{
			"id": "e1", "label": "NEXT", "from": "a", "to": "b",
			"props": map[string]interface{}{"riskCategory": "Process", "edge_id": "e1"},
		}}},
	}}
	repo := newTestRepository(runner)

	view, err := repo.Fetch(context.Background(), 0, nil, "")
	require.NoError(t, err)

	require.Len(t, view.Nodes, 1)
	node := view.Nodes[0]
	assert.Equal(t, "Case_1", node.ID)
	assert.Equal(t, "doc-1", node.Document)
	assert.Equal(t, "open", node.Properties["status"])
	assert.NotContains(t, node.Properties, "id")

	require.Len(t, view.Edges, 1)
	edge := view.Edges[0]
	assert.Equal(t, "Process", edge.RiskCategory)
	assert.NotContains(t, edge.Properties, "edge_id")

	// Default limit applies when the caller passes none
	assert.Equal(t, int64(500), runner.calls[0].params["limit"])
}

func TestReadsTolerateEmptyStore(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{{}, {}, {}, {}, {}, {}, {}}}
	repo := newTestRepository(runner)
	ctx := context.Background()

	view, err := repo.Fetch(ctx, 10, nil, "")
	require.NoError(t, err)
	assert.Empty(t, view.Nodes)
	assert.Empty(t, view.Edges)

	nodes, err := repo.Search(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.NodeCount)

	neighborhood, err := repo.Neighbors(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, neighborhood.Nodes)

	node, err := repo.GetNode(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestNeighborsDeduplicates(t *testing.T) {
	center := map[string]interface{}{
		"center_id": "Case_1", "center_label": "1", "center_type": "Case",
		"center_pk": "doc-1", "center_props": map[string]interface{}{},
	}
	row1 := map[string]interface{}{
		"id": "Activity_A", "label": "A", "type": "Activity", "pk": "doc-1",
		"props":     map[string]interface{}{},
		"edge_id":   "e1", "edge_label": "PERFORMS",
		"edge_from": "Case_1", "edge_to": "Activity_A",
		"edge_props": map[string]interface{}{},
	}
	for k, v := range center {
		row1[k] = v
	}
	row2 := map[string]interface{}{}
	for k, v := range row1 {
		row2[k] = v
	}

	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{row1, row2}},
	}}
	repo := newTestRepository(runner)

	view, err := repo.Neighbors(context.Background(), "Case_1")
	require.NoError(t, err)
	assert.Len(t, view.Nodes, 2)
	assert.Len(t, view.Edges, 1)
	assert.Equal(t, "Case_1", view.Nodes[0].ID)
}

func TestStatsAggregates(t *testing.T) {
	runner := &fakeRunner{results: []fakeResult{
		{rows: []map[string]interface{}{
			{"type": "Case", "count": int64(3)},
			{"type": "Activity", "count": int64(5)},
		}},
		{rows: []map[string]interface{}{
			{"label": "NEXT", "count": int64(4)},
			{"label": "PERFORMS", "count": int64(5)},
		}},
	}}
	repo := newTestRepository(runner)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.NodeCount)
	assert.Equal(t, int64(9), stats.EdgeCount)
	assert.Equal(t, int64(3), stats.NodesByType["Case"])
	assert.Equal(t, int64(4), stats.EdgesByLabel["NEXT"])
}

func TestRiskCategoryForLabel(t *testing.T) {
	assert.Equal(t, RiskCause, RiskCategoryForLabel("CAUSES"))
	assert.Equal(t, RiskEffect, RiskCategoryForLabel("resulted_in"))
	assert.Equal(t, RiskProcess, RiskCategoryForLabel(" NEXT "))
	assert.Equal(t, "", RiskCategoryForLabel("PERFORMS"))
}
