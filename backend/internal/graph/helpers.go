package graph

// ============================================================================
// Record coercion helpers
// ============================================================================

func asString(val interface{}) string {
	if val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func asInt64(val interface{}) int64 {
	switch t := val.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asPropertyMap(val interface{}) map[string]interface{} {
	if m, ok := val.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// nodeViewFromRow builds a NodeView from a query row that projected
// id, label, type, pk and props columns
func nodeViewFromRow(row map[string]interface{}) NodeView {
	props := asPropertyMap(row["props"])
	view := NodeView{
		ID:           asString(row["id"]),
		Label:        asString(row["label"]),
		Type:         asString(row["type"]),
		PartitionKey: asString(row["pk"]),
		Document:     asString(props[KeyDocument]),
		Properties:   map[string]interface{}{},
	}
	for k, v := range props {
		switch k {
		case KeyID, KeyPartitionKey, KeyType, KeyLabel:
			continue
		}
		view.Properties[k] = v
	}
	return view
}

// edgeViewFromRow builds an EdgeView from a query row that projected
// id, label, from, to and props columns
func edgeViewFromRow(row map[string]interface{}) EdgeView {
	props := asPropertyMap(row["props"])
	view := EdgeView{
		ID:           asString(row["id"]),
		Label:        asString(row["label"]),
		From:         asString(row["from"]),
		To:           asString(row["to"]),
		RiskCategory: asString(props[KeyRiskCategory]),
		Properties:   map[string]interface{}{},
	}
	for k, v := range props {
		switch k {
		case KeyEdgeID, KeyLabel, KeyRiskCategory:
			continue
		}
		view.Properties[k] = v
	}
	return view
}
