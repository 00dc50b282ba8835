package ingest

import (
	"strings"

	"kgraph/backend/internal/graph"
)

// Curated keyword sets for transition classification. Scanned in order
// against the incoming activity's display label, first match wins.
var (
	riskKeywords = []string{
		"fail", "error", "fraud", "reject", "complaint", "damage", "anomaly",
		"dispute", "chargeback",
	}
	terminalKeywords = []string{
		"closed", "suspend", "terminated", "cleared", "resolution", "resolved",
		"settled",
	}
)

// ClassifyTransition scans the incoming activity's display label for the
// curated keyword sets and returns the risk category plus whether any
// keyword actually matched. An unmatched label is a visible Process
// default, not a swallowed failure.
func ClassifyTransition(currentLabel string) (category string, matched bool) {
	label := strings.ToLower(currentLabel)

	for _, keyword := range riskKeywords {
		if strings.Contains(label, keyword) {
			return graph.RiskCause, true
		}
	}
	for _, keyword := range terminalKeywords {
		if strings.Contains(label, keyword) {
			return graph.RiskEffect, true
		}
	}
	return graph.RiskProcess, false
}

// EdgeLabelForCategory maps a risk category to its fixed sequence edge label
func EdgeLabelForCategory(category string) string {
	switch category {
	case graph.RiskCause:
		return graph.LabelCauses
	case graph.RiskEffect:
		return graph.LabelResultedIn
	default:
		return graph.LabelNext
	}
}

// Transition is one classified step between two adjacent activities in a
// case timeline. RowIndex is the originating source row: it becomes part
// of the edge identity so repeated transitions between the same two
// activities from different cases stay distinct.
type Transition struct {
	From     string
	To       string
	Category string
	RowIndex int
}

// sequencer is the per-case state machine: NONE until the first activity
// is seen, then HAS_PREVIOUS; each later, different activity emits exactly
// one transition.
type sequencer struct {
	prevID      string
	hasPrevious bool
}

func (s *sequencer) observe(activityID, displayLabel string, rowIndex int) (Transition, bool) {
	if !s.hasPrevious {
		s.prevID = activityID
		s.hasPrevious = true
		return Transition{}, false
	}
	if activityID == s.prevID {
		return Transition{}, false
	}

	category, _ := ClassifyTransition(displayLabel)
	t := Transition{
		From:     s.prevID,
		To:       activityID,
		Category: category,
		RowIndex: rowIndex,
	}
	s.prevID = activityID
	return t, true
}
