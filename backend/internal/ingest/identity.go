package ingest

import (
	"regexp"
	"strings"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	idUnsafePattern   = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// NormalizeLabel canonicalizes a raw label for the given type. Idempotent:
// the same (rawLabel, type) pair always yields the same result. A leading
// qualifier word equal to the type name is stripped, so "Activity Sale
// Closed" under type Activity resolves to "Sale Closed" whether it arrives
// as a node label or as a relationship endpoint string.
func NormalizeLabel(rawLabel string, t NodeType) string {
	label := whitespacePattern.ReplaceAllString(strings.TrimSpace(rawLabel), " ")

	words := strings.SplitN(label, " ", 2)
	if len(words) == 2 && strings.EqualFold(words[0], string(t)) {
		label = words[1]
	}
	return label
}

// GenerateID derives the stable node id from a type and a normalized
// label. Purely a function of its inputs - never of row position, batch or
// timestamp - so repeated ingestion of the same logical entity merges
// instead of duplicating. Non-alphanumeric runs fold to single
// underscores, which keeps ids safe for the storage key format.
func GenerateID(t NodeType, normalizedLabel string) string {
	slug := strings.Trim(idUnsafePattern.ReplaceAllString(normalizedLabel, "_"), "_")
	if slug == "" {
		slug = "unknown"
	}
	return string(t) + "_" + slug
}

// IdentityFor runs both steps for a raw label
func IdentityFor(rawLabel string, t NodeType) (id, normalized string) {
	normalized = NormalizeLabel(rawLabel, t)
	return GenerateID(t, normalized), normalized
}
