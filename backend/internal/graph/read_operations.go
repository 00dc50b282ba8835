package graph

import (
	"context"

	"go.uber.org/zap"
)

// ============================================================================
// Read operations
// ============================================================================
//
// All reads tolerate an empty store: missing nodes and empty partitions
// come back as empty collections, never as errors.

// Fetch returns a combined view of nodes and edges, optionally filtered by
// node type and document scope
func (r *Repository) Fetch(ctx context.Context, limit int, types []string, documentID string) (*View, error) {
	if limit < 1 {
		limit = 500
	}
	if types == nil {
		types = []string{}
	}

	nodeQuery := `
		MATCH (n:Entity)
		WHERE (size($types) = 0 OR n.type IN $types)
		  AND ($doc = '' OR n.doc = $doc)
		RETURN n.id AS id, n.label AS label, n.type AS type, n.pk AS pk, properties(n) AS props
		LIMIT $limit
	`
	edgeQuery := `
		MATCH (a:Entity)-[rel]->(b:Entity)
		WHERE ($doc = '' OR rel.doc = $doc)
		RETURN rel.edge_id AS id, coalesce(rel.label, type(rel)) AS label,
		       a.id AS from, b.id AS to, properties(rel) AS props
		LIMIT $edgeLimit
	`
	params := map[string]interface{}{
		"types":     types,
		"doc":       documentID,
		"limit":     int64(limit),
		"edgeLimit": int64(limit * 2),
	}

	var nodeRows, edgeRows []map[string]interface{}
	err := r.withRetry(ctx, "fetch graph", func() error {
		var runErr error
		nodeRows, runErr = r.runner.ReadQuery(ctx, nodeQuery, params)
		if runErr != nil {
			return runErr
		}
		edgeRows, runErr = r.runner.ReadQuery(ctx, edgeQuery, params)
		return runErr
	})
	if err != nil {
		return nil, err
	}

	view := &View{Nodes: []NodeView{}, Edges: []EdgeView{}}
	for _, row := range nodeRows {
		view.Nodes = append(view.Nodes, nodeViewFromRow(row))
	}
	for _, row := range edgeRows {
		view.Edges = append(view.Edges, edgeViewFromRow(row))
	}

	r.logger.Info("Graph fetched",
		zap.Int("nodes", len(view.Nodes)),
		zap.Int("edges", len(view.Edges)),
	)
	return view, nil
}

// Search returns nodes whose id, display label or type contains the
// keyword, case-insensitively
func (r *Repository) Search(ctx context.Context, keyword string, limit int) ([]NodeView, error) {
	if limit < 1 {
		limit = 20
	}

	query := `
		MATCH (n:Entity)
		WHERE toLower(n.id) CONTAINS toLower($q)
		   OR toLower(n.label) CONTAINS toLower($q)
		   OR toLower(n.type) CONTAINS toLower($q)
		RETURN n.id AS id, n.label AS label, n.type AS type, n.pk AS pk, properties(n) AS props
		LIMIT $limit
	`
	params := map[string]interface{}{"q": keyword, "limit": int64(limit)}

	var rows []map[string]interface{}
	err := r.withRetry(ctx, "search nodes", func() error {
		var runErr error
		rows, runErr = r.runner.ReadQuery(ctx, query, params)
		return runErr
	})
	if err != nil {
		return nil, err
	}

	results := []NodeView{}
	for _, row := range rows {
		results = append(results, nodeViewFromRow(row))
	}
	return results, nil
}

// Stats returns total node/edge counts plus per-type and per-label breakdowns
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	nodeQuery := `
		MATCH (n:Entity)
		RETURN n.type AS type, count(n) AS count
	`
	edgeQuery := `
		MATCH (:Entity)-[rel]->(:Entity)
		RETURN coalesce(rel.label, type(rel)) AS label, count(rel) AS count
	`

	var nodeRows, edgeRows []map[string]interface{}
	err := r.withRetry(ctx, "graph stats", func() error {
		var runErr error
		nodeRows, runErr = r.runner.ReadQuery(ctx, nodeQuery, nil)
		if runErr != nil {
			return runErr
		}
		edgeRows, runErr = r.runner.ReadQuery(ctx, edgeQuery, nil)
		return runErr
	})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		NodesByType:  map[string]int64{},
		EdgesByLabel: map[string]int64{},
	}
	for _, row := range nodeRows {
		nodeType := asString(row["type"])
		if nodeType == "" {
			nodeType = "Concept"
		}
		count := asInt64(row["count"])
		stats.NodesByType[nodeType] += count
		stats.NodeCount += count
	}
	for _, row := range edgeRows {
		label := asString(row["label"])
		count := asInt64(row["count"])
		stats.EdgesByLabel[label] += count
		stats.EdgeCount += count
	}
	return stats, nil
}

// Neighbors returns a node plus every directly connected node and edge,
// for incremental expansion in a caller UI. A missing node yields an
// empty view.
func (r *Repository) Neighbors(ctx context.Context, nodeID string) (*View, error) {
	query := `
		MATCH (n:Entity {id: $id})
		OPTIONAL MATCH (n)-[rel]-(m:Entity)
		RETURN n.id AS center_id, n.label AS center_label, n.type AS center_type,
		       n.pk AS center_pk, properties(n) AS center_props,
		       m.id AS id, m.label AS label, m.type AS type, m.pk AS pk, properties(m) AS props,
		       rel.edge_id AS edge_id, coalesce(rel.label, type(rel)) AS edge_label,
		       startNode(rel).id AS edge_from, endNode(rel).id AS edge_to,
		       properties(rel) AS edge_props
	`
	var rows []map[string]interface{}
	err := r.withRetry(ctx, "node neighbors "+nodeID, func() error {
		var runErr error
		rows, runErr = r.runner.ReadQuery(ctx, query, map[string]interface{}{"id": nodeID})
		return runErr
	})
	if err != nil {
		return nil, err
	}

	view := &View{Nodes: []NodeView{}, Edges: []EdgeView{}}
	if len(rows) == 0 {
		return view, nil
	}

	seenNodes := map[string]bool{}
	seenEdges := map[string]bool{}

	center := nodeViewFromRow(map[string]interface{}{
		"id":    rows[0]["center_id"],
		"label": rows[0]["center_label"],
		"type":  rows[0]["center_type"],
		"pk":    rows[0]["center_pk"],
		"props": rows[0]["center_props"],
	})
	view.Nodes = append(view.Nodes, center)
	seenNodes[center.ID] = true

	for _, row := range rows {
		if id := asString(row["id"]); id != "" && !seenNodes[id] {
			seenNodes[id] = true
			view.Nodes = append(view.Nodes, nodeViewFromRow(row))
		}
		edgeFrom := asString(row["edge_from"])
		if edgeFrom == "" {
			continue
		}
		edge := edgeViewFromRow(map[string]interface{}{
			"id":    row["edge_id"],
			"label": row["edge_label"],
			"from":  row["edge_from"],
			"to":    row["edge_to"],
			"props": row["edge_props"],
		})
		key := edge.ID
		if key == "" {
			key = edge.From + "|" + edge.Label + "|" + edge.To
		}
		if !seenEdges[key] {
			seenEdges[key] = true
			view.Edges = append(view.Edges, edge)
		}
	}
	return view, nil
}

// GetNode returns a single node view, or nil when the node does not exist
func (r *Repository) GetNode(ctx context.Context, nodeID string) (*NodeView, error) {
	query := `
		MATCH (n:Entity {id: $id})
		RETURN n.id AS id, n.label AS label, n.type AS type, n.pk AS pk, properties(n) AS props
		LIMIT 1
	`
	var rows []map[string]interface{}
	err := r.withRetry(ctx, "get node "+nodeID, func() error {
		var runErr error
		rows, runErr = r.runner.ReadQuery(ctx, query, map[string]interface{}{"id": nodeID})
		return runErr
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	view := nodeViewFromRow(rows[0])
	return &view, nil
}
