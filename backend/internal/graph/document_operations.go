package graph

import (
	"context"
	"time"

	pkgerrors "kgraph/backend/pkg/errors"
	"go.uber.org/zap"
)

// ============================================================================
// Document-scoped operations
// ============================================================================

// maxDeleteIterations bounds the batched deletion loop. One iteration
// removes at most deleteBatch nodes, so this covers very large documents
// while still converging (or failing loudly) in finite time.
const maxDeleteIterations = 1000

// ListDocuments returns every Document node with its batch metadata
func (r *Repository) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	query := `
		MATCH (d:Entity {type: 'Document'})
		RETURN d.id AS id, d.filename AS filename, d.processed_at AS processed_at,
		       d.node_count AS node_count, d.edge_count AS edge_count
		ORDER BY d.processed_at DESC
	`
	var rows []map[string]interface{}
	err := r.withRetry(ctx, "list documents", func() error {
		var runErr error
		rows, runErr = r.runner.ReadQuery(ctx, query, nil)
		return runErr
	})
	if err != nil {
		return nil, err
	}

	docs := []DocumentInfo{}
	for _, row := range rows {
		doc := DocumentInfo{
			ID:        asString(row["id"]),
			Filename:  asString(row["filename"]),
			NodeCount: asInt64(row["node_count"]),
			EdgeCount: asInt64(row["edge_count"]),
		}
		if t, ok := row["processed_at"].(time.Time); ok {
			doc.ProcessedAt = t
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteByDocument removes the Document node and every node carrying its
// documentId, edges included, in bounded-size batches. The remaining count
// is re-checked after each batch so one request never exceeds the store's
// throughput budget; the loop must converge to zero or fail.
func (r *Repository) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	if documentID == "" {
		return 0, pkgerrors.NewValidationFailed("documentId", "document id is required")
	}

	deleteQuery := `
		MATCH (n:Entity)
		WHERE n.doc = $doc OR n.id = $doc
		WITH n LIMIT $batch
		DETACH DELETE n
		RETURN count(*) AS deleted
	`
	countQuery := `
		MATCH (n:Entity)
		WHERE n.doc = $doc OR n.id = $doc
		RETURN count(n) AS remaining
	`
	params := map[string]interface{}{
		"doc":   documentID,
		"batch": int64(r.deleteBatch),
	}

	var total int64
	for iteration := 0; iteration < maxDeleteIterations; iteration++ {
		var rows []map[string]interface{}
		err := r.withRetry(ctx, "delete document batch "+documentID, func() error {
			var runErr error
			rows, runErr = r.runner.WriteQuery(ctx, deleteQuery, params)
			return runErr
		})
		if err != nil {
			return total, err
		}
		if len(rows) > 0 {
			total += asInt64(rows[0]["deleted"])
		}

		var countRows []map[string]interface{}
		err = r.withRetry(ctx, "count document remainder "+documentID, func() error {
			var runErr error
			countRows, runErr = r.runner.ReadQuery(ctx, countQuery, params)
			return runErr
		})
		if err != nil {
			return total, err
		}
		remaining := int64(0)
		if len(countRows) > 0 {
			remaining = asInt64(countRows[0]["remaining"])
		}
		if remaining == 0 {
			r.logger.Info("Document data deleted",
				zap.String("document_id", documentID),
				zap.Int64("nodes_deleted", total),
				zap.Int("batches", iteration+1),
			)
			return total, nil
		}
	}

	return total, pkgerrors.NewRemoteFatal("delete document "+documentID, maxDeleteIterations, nil)
}

// ClearScope removes graph data by scope: all entities, only documents,
// only non-document entities, or only relationships
func (r *Repository) ClearScope(ctx context.Context, scope string) (int64, error) {
	var query string
	switch scope {
	case "all":
		query = `
			MATCH (n:Entity)
			WITH n LIMIT $batch
			DETACH DELETE n
			RETURN count(*) AS deleted
		`
	case "documents":
		query = `
			MATCH (n:Entity {type: 'Document'})
			WITH n LIMIT $batch
			DETACH DELETE n
			RETURN count(*) AS deleted
		`
	case "entities":
		query = `
			MATCH (n:Entity)
			WHERE n.type <> 'Document'
			WITH n LIMIT $batch
			DETACH DELETE n
			RETURN count(*) AS deleted
		`
	case "relationships":
		query = `
			MATCH (:Entity)-[rel]->(:Entity)
			WITH rel LIMIT $batch
			DELETE rel
			RETURN count(*) AS deleted
		`
	default:
		return 0, pkgerrors.NewValidationFailed("scope", "must be one of: all, documents, entities, relationships")
	}

	params := map[string]interface{}{"batch": int64(r.deleteBatch)}

	var total int64
	for iteration := 0; iteration < maxDeleteIterations; iteration++ {
		var rows []map[string]interface{}
		err := r.withRetry(ctx, "clear scope "+scope, func() error {
			var runErr error
			rows, runErr = r.runner.WriteQuery(ctx, query, params)
			return runErr
		})
		if err != nil {
			return total, err
		}
		deleted := int64(0)
		if len(rows) > 0 {
			deleted = asInt64(rows[0]["deleted"])
		}
		total += deleted
		if deleted < int64(r.deleteBatch) {
			r.logger.Info("Graph cleared", zap.String("scope", scope), zap.Int64("deleted", total))
			return total, nil
		}
	}

	return total, pkgerrors.NewRemoteFatal("clear scope "+scope, maxDeleteIterations, nil)
}
