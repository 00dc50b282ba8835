package graph

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "kgraph/backend/pkg/errors"
	"kgraph/backend/pkg/logger"
	"go.uber.org/zap"
)

// Repository performs all remote graph store operations: idempotent
// upserts under partition-key discipline, partition-key auto-discovery for
// mutations, throttling recovery and batched document-scoped deletion.
type Repository struct {
	runner QueryRunner
	logger *zap.Logger

	maxRetries  int
	retryBase   time.Duration
	deleteBatch int
	sleep       func(time.Duration)
	jitter      func(time.Duration) time.Duration
}

// Option configures a Repository
type Option func(*Repository)

// WithMaxRetries sets the retry ceiling for throttled calls
func WithMaxRetries(n int) Option {
	return func(r *Repository) { r.maxRetries = n }
}

// WithRetryBase sets the base backoff unit
func WithRetryBase(d time.Duration) Option {
	return func(r *Repository) { r.retryBase = d }
}

// WithDeleteBatchSize bounds the per-request size of batched deletions
func WithDeleteBatchSize(n int) Option {
	return func(r *Repository) { r.deleteBatch = n }
}

// WithSleep substitutes the backoff sleep, for tests
func WithSleep(fn func(time.Duration)) Option {
	return func(r *Repository) { r.sleep = fn }
}

// NewRepository creates a new graph repository
func NewRepository(runner QueryRunner, opts ...Option) *Repository {
	r := &Repository{
		runner:      runner,
		logger:      logger.Get(),
		maxRetries:  5,
		retryBase:   200 * time.Millisecond,
		deleteBatch: 100,
		sleep:       time.Sleep,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the underlying store connection
func (r *Repository) Close(ctx context.Context) error {
	return r.runner.Close(ctx)
}

// ============================================================================
// Validation
// ============================================================================

var identifierPattern = regexp.MustCompile(`^[^\x00-\x1f'"]{1,512}$`)

func validIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}

func validateNode(n Node) error {
	if n.ID == "" {
		return pkgerrors.NewValidationFailed("id", "node id is required")
	}
	if !validIdentifier(n.ID) {
		return pkgerrors.NewValidationFailed("id", fmt.Sprintf("malformed node id: %q", n.ID))
	}
	if n.Type == "" {
		return pkgerrors.NewValidationFailed("type", "node type is required")
	}
	return nil
}

func validateEdge(e Edge) error {
	switch {
	case e.From == "":
		return pkgerrors.NewValidationFailed("from", "edge source is required")
	case e.To == "":
		return pkgerrors.NewValidationFailed("to", "edge target is required")
	case e.Label == "":
		return pkgerrors.NewValidationFailed("label", "edge label is required")
	}
	if !validIdentifier(e.From) || !validIdentifier(e.To) {
		return pkgerrors.NewValidationFailed("from/to", "malformed endpoint id")
	}
	return nil
}

// stripReserved removes repository-managed keys from a caller property map
func stripReserved(props Properties) Properties {
	if props == nil {
		return Properties{}
	}
	out := props.Clone()
	for _, key := range []string{KeyID, KeyPartitionKey, KeyType, KeyLabel, KeyEdgeID, KeyRiskCategory} {
		delete(out, key)
	}
	return out
}

// ============================================================================
// Retry policy
// ============================================================================

// withRetry wraps a remote call with exponential backoff + jitter on
// throttling signals, up to the retry ceiling. Other errors pass through
// unmodified on the first attempt.
func (r *Repository) withRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.retryBase*(1<<uint(attempt-1)) + r.jitter(r.retryBase)
			r.logger.Warn("Remote store throttled, backing off",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			r.sleep(backoff)
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !pkgerrors.IsRetryable(err) {
			return err
		}
	}
	return pkgerrors.NewRemoteFatal(operation, r.maxRetries+1, err)
}

// ============================================================================
// Write operations
// ============================================================================

// UpsertNode creates the node if absent, fixing its partition key at
// creation, or updates only its mutable properties if present. The stored
// partition key is never rewritten.
func (r *Repository) UpsertNode(ctx context.Context, n Node) error {
	if err := validateNode(n); err != nil {
		return err
	}
	pk := n.PartitionKey
	if pk == "" {
		pk = n.ID
	}
	label := n.Label
	if label == "" {
		label = n.ID
	}

	query := `
		MERGE (n:Entity {id: $id})
		ON CREATE SET n.pk = $pk, n.created_at = datetime()
		SET n.type = $type, n.label = $label, n += $props
		RETURN n.id AS id
	`
	params := map[string]interface{}{
		"id":    n.ID,
		"pk":    pk,
		"type":  n.Type,
		"label": label,
		"props": stripReserved(n.Properties).Native(),
	}

	err := r.withRetry(ctx, "upsert node "+n.ID, func() error {
		_, runErr := r.runner.WriteQuery(ctx, query, params)
		return runErr
	})
	if err != nil {
		return err
	}

	r.logger.Debug("Node upserted",
		zap.String("id", n.ID),
		zap.String("type", n.Type),
	)
	return nil
}

var relTypePattern = regexp.MustCompile(`[^A-Z0-9_]+`)

// sanitizeRelType folds an edge label into a safe relationship type.
// Relationship types cannot be parameterized, so this is the one place the
// repository falls back to escaping instead of query parameters.
func sanitizeRelType(label string) string {
	relType := strings.ToUpper(strings.TrimSpace(label))
	relType = relTypePattern.ReplaceAllString(relType, "_")
	relType = strings.Trim(relType, "_")
	if relType == "" || relType[0] >= '0' && relType[0] <= '9' {
		return "RELATED_TO"
	}
	return relType
}

// UpsertEdge creates or updates an edge between two existing nodes. The
// risk category is always derived from the label here, never accepted from
// the caller. An explicit edge id keeps parallel edges distinct; an empty
// id collapses repeats of the same (from, label, to) triple.
func (r *Repository) UpsertEdge(ctx context.Context, e Edge) error {
	if err := validateEdge(e); err != nil {
		return err
	}

	edgeID := e.ID
	if edgeID == "" {
		edgeID = fmt.Sprintf("%s_%s_%s", e.From, strings.ToLower(sanitizeRelType(e.Label)), e.To)
	}

	props := stripReserved(e.Properties)
	delete(props, KeyDocument) // doc is carried explicitly below when present
	params := map[string]interface{}{
		"from":   e.From,
		"to":     e.To,
		"edgeID": edgeID,
		"label":  e.Label,
		"props":  props.Native(),
		"risk":   RiskCategoryForLabel(e.Label),
		"doc":    docProperty(e.Properties),
	}

	query := fmt.Sprintf(`
		MATCH (a:Entity {id: $from})
		MATCH (b:Entity {id: $to})
		MERGE (a)-[r:%s {edge_id: $edgeID}]->(b)
		SET r.label = $label, r.riskCategory = $risk, r.doc = $doc, r += $props
		RETURN r.edge_id AS edge_id
	`, sanitizeRelType(e.Label))

	var rows []map[string]interface{}
	err := r.withRetry(ctx, fmt.Sprintf("upsert edge %s-[%s]->%s", e.From, e.Label, e.To), func() error {
		var runErr error
		rows, runErr = r.runner.WriteQuery(ctx, query, params)
		return runErr
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		// MERGE produced nothing: one of the endpoints does not exist yet
		return pkgerrors.NewNodeNotFound(e.From+" or "+e.To, "")
	}

	r.logger.Debug("Edge upserted",
		zap.String("from", e.From),
		zap.String("label", e.Label),
		zap.String("to", e.To),
	)
	return nil
}

func docProperty(props Properties) string {
	if props == nil {
		return ""
	}
	if v, ok := props[KeyDocument]; ok {
		return v.AsString()
	}
	return ""
}

// UpdateNode mutates the properties of an existing node. The partition key
// hint is validated first; an unusable hint triggers a lookup of the true
// stored key, because the store requires the exact key to locate the node.
func (r *Repository) UpdateNode(ctx context.Context, id string, props Properties, pkHint string) error {
	if id == "" || !validIdentifier(id) {
		return pkgerrors.NewValidationFailed("id", "malformed node id")
	}

	pk, err := r.resolvePartitionKey(ctx, id, pkHint)
	if err != nil {
		return err
	}

	query := `
		MATCH (n:Entity {id: $id, pk: $pk})
		SET n += $props
		RETURN n.id AS id
	`
	params := map[string]interface{}{
		"id":    id,
		"pk":    pk,
		"props": stripReserved(props).Native(),
	}

	var rows []map[string]interface{}
	err = r.withRetry(ctx, "update node "+id, func() error {
		var runErr error
		rows, runErr = r.runner.WriteQuery(ctx, query, params)
		return runErr
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return pkgerrors.NewNodeNotFound(id, pk)
	}

	r.logger.Info("Node updated", zap.String("id", id), zap.String("pk", pk))
	return nil
}

// DeleteNode removes a node and all its attached edges
func (r *Repository) DeleteNode(ctx context.Context, id string, pkHint string) error {
	if id == "" || !validIdentifier(id) {
		return pkgerrors.NewValidationFailed("id", "malformed node id")
	}

	pk, err := r.resolvePartitionKey(ctx, id, pkHint)
	if err != nil {
		return err
	}

	query := `
		MATCH (n:Entity {id: $id, pk: $pk})
		DETACH DELETE n
		RETURN count(*) AS deleted
	`
	params := map[string]interface{}{"id": id, "pk": pk}

	var rows []map[string]interface{}
	err = r.withRetry(ctx, "delete node "+id, func() error {
		var runErr error
		rows, runErr = r.runner.WriteQuery(ctx, query, params)
		return runErr
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 || asInt64(rows[0]["deleted"]) == 0 {
		return pkgerrors.NewNodeNotFound(id, pk)
	}

	r.logger.Info("Node deleted", zap.String("id", id), zap.String("pk", pk))
	return nil
}

// DeleteEdge removes a single edge by its explicit id
func (r *Repository) DeleteEdge(ctx context.Context, edgeID string) error {
	if edgeID == "" || !validIdentifier(edgeID) {
		return pkgerrors.NewValidationFailed("edgeId", "malformed edge id")
	}

	query := `
		MATCH (:Entity)-[rel {edge_id: $edgeID}]->(:Entity)
		DELETE rel
		RETURN count(*) AS deleted
	`
	var rows []map[string]interface{}
	err := r.withRetry(ctx, "delete edge "+edgeID, func() error {
		var runErr error
		rows, runErr = r.runner.WriteQuery(ctx, query, map[string]interface{}{"edgeID": edgeID})
		return runErr
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 || asInt64(rows[0]["deleted"]) == 0 {
		return pkgerrors.NewNodeNotFound(edgeID, "")
	}

	r.logger.Info("Edge deleted", zap.String("edge_id", edgeID))
	return nil
}

// ============================================================================
// Partition key resolution
// ============================================================================

// usablePartitionKey rejects hints that are plainly guesses: empty values,
// the node's own id (manual edit paths often echo it back) and values
// shaped like random unique identifiers.
func usablePartitionKey(hint, id string) bool {
	if hint == "" || hint == id {
		return false
	}
	if _, err := uuid.Parse(hint); err == nil {
		return false
	}
	return true
}

// resolvePartitionKey returns a key the store will accept for locating the
// node: the caller's hint when plausible, otherwise the stored key
// discovered by lookup.
func (r *Repository) resolvePartitionKey(ctx context.Context, id, hint string) (string, error) {
	if usablePartitionKey(hint, id) {
		return hint, nil
	}

	query := `
		MATCH (n:Entity {id: $id})
		RETURN n.pk AS pk
		LIMIT 1
	`
	var rows []map[string]interface{}
	err := r.withRetry(ctx, "resolve partition key "+id, func() error {
		var runErr error
		rows, runErr = r.runner.ReadQuery(ctx, query, map[string]interface{}{"id": id})
		return runErr
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", pkgerrors.NewNodeNotFound(id, hint)
	}

	pk := asString(rows[0]["pk"])
	if pk == "" {
		// Legacy node written before partition discipline: fall back to id
		pk = id
	}
	return pk, nil
}
