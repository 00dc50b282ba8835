package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	pkgerrors "kgraph/backend/pkg/errors"
	"kgraph/backend/pkg/logger"
	"go.uber.org/zap"
)

// QueryRunner executes parameterized queries against the remote graph
// store. The repository depends on this interface rather than the driver so
// tests can substitute a fake.
type QueryRunner interface {
	ReadQuery(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error)
	WriteQuery(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error)
	Close(ctx context.Context) error
}

// Neo4jRunner is the production QueryRunner. One driver instance is shared
// for the process lifetime; sessions are cheap and opened per operation.
type Neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewNeo4jRunner creates a runner and verifies connectivity
func NewNeo4jRunner(ctx context.Context, uri, user, password, database string) (*Neo4jRunner, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}
	return &Neo4jRunner{
		driver:   driver,
		database: database,
		logger:   logger.Get(),
	}, nil
}

// ReadQuery runs a read-mode query and collects all records
func (r *Neo4jRunner) ReadQuery(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return r.run(ctx, query, params, neo4j.AccessModeRead)
}

// WriteQuery runs a write-mode query and collects all records
func (r *Neo4jRunner) WriteQuery(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return r.run(ctx, query, params, neo4j.AccessModeWrite)
}

func (r *Neo4jRunner) run(ctx context.Context, query string, params map[string]interface{}, mode neo4j.AccessMode) ([]map[string]interface{}, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, r.mapError(err)
	}

	var rows []map[string]interface{}
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		return nil, r.mapError(err)
	}
	return rows, nil
}

// mapError translates driver errors into the local taxonomy. Transient
// signals (rate limiting, leader switches) become throttling errors so the
// repository's retry policy picks them up.
func (r *Neo4jRunner) mapError(err error) error {
	if neo4j.IsRetryable(err) {
		return pkgerrors.NewThrottled("query", 0, err)
	}
	return fmt.Errorf("query failed: %w", err)
}

// Close tears down the shared driver at process shutdown
func (r *Neo4jRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
