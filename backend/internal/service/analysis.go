package service

import (
	"context"
	"fmt"
	"strings"

	"kgraph/backend/internal/graph"
	"kgraph/backend/pkg/logger"
	"go.uber.org/zap"
)

// NeighborhoodReader is the read slice the analysis service needs
type NeighborhoodReader interface {
	Neighbors(ctx context.Context, nodeID string) (*graph.View, error)
}

// Summarizer produces a free-text summary from a prompt; nil means
// logic-only summaries
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// AnalysisService explains a node's role in the process graph: what leads
// into it and what follows. The AI summary is best-effort; the
// deterministic summary is always available.
type AnalysisService struct {
	reader     NeighborhoodReader
	summarizer Summarizer
	logger     *zap.Logger
}

// NewAnalysisService creates an analysis service; summarizer may be nil
func NewAnalysisService(reader NeighborhoodReader, summarizer Summarizer) *AnalysisService {
	return &AnalysisService{
		reader:     reader,
		summarizer: summarizer,
		logger:     logger.Get(),
	}
}

// AnalyzeNode summarizes the node's neighborhood. A missing node yields an
// explanatory message, not an error.
func (s *AnalysisService) AnalyzeNode(ctx context.Context, nodeID string) (string, error) {
	view, err := s.reader.Neighbors(ctx, nodeID)
	if err != nil {
		return "", err
	}
	if len(view.Nodes) == 0 {
		return fmt.Sprintf("Node %q could not be found; it may have been deleted.", nodeID), nil
	}

	center := view.Nodes[0]
	name := center.Label
	if name == "" {
		name = center.ID
	}

	var incoming, outgoing []string
	for _, edge := range view.Edges {
		switch {
		case edge.To == center.ID:
			incoming = append(incoming, fmt.Sprintf("- %s (%s)", edge.From, edge.Label))
		case edge.From == center.ID:
			outgoing = append(outgoing, fmt.Sprintf("- (%s) -> %s", edge.Label, edge.To))
		}
	}

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, analysisPrompt(center, name, incoming, outgoing))
		if err == nil && summary != "" {
			return summary, nil
		}
		s.logger.Warn("AI summary failed, using logic summary",
			zap.String("node_id", nodeID),
			zap.Error(err),
		)
	}

	return logicSummary(name, len(incoming), len(outgoing)), nil
}

func analysisPrompt(center graph.NodeView, name string, incoming, outgoing []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing a knowledge graph.\n\n")
	fmt.Fprintf(&b, "SUBJECT NODE: %s (ID: %s)\nTYPE: %s\n\n", name, center.ID, center.Type)
	fmt.Fprintf(&b, "INCOMING LINKS (PREDECESSORS):\n%s\n\n", linkList(incoming, "(None - this is a start node)"))
	fmt.Fprintf(&b, "OUTGOING LINKS (SUCCESSORS):\n%s\n\n", linkList(outgoing, "(None - this is an end node)"))
	fmt.Fprintf(&b, "Write a concise 2-3 sentence summary of this node's role in the process: what leads to it and what happens next.")
	return b.String()
}

func linkList(links []string, empty string) string {
	if len(links) == 0 {
		return empty
	}
	return strings.Join(links, "\n")
}

// logicSummary is the deterministic fallback when no AI is available
func logicSummary(name string, incoming, outgoing int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is a key node in the graph. ", name)
	if incoming > 0 {
		fmt.Fprintf(&b, "It is triggered by %d upstream events. ", incoming)
	} else {
		b.WriteString("It appears to be a starting point. ")
	}
	if outgoing > 0 {
		fmt.Fprintf(&b, "It leads to %d downstream outcomes.", outgoing)
	} else {
		b.WriteString("It represents a terminal state.")
	}
	return b.String()
}
