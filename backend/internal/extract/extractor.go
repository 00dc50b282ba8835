package extract

import (
	"context"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"kgraph/backend/internal/graph"
	pkgerrors "kgraph/backend/pkg/errors"
	"kgraph/backend/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Entity is one candidate entity returned by the extraction service,
// already validated and with its property values coerced to primitives
type Entity struct {
	Label      string
	Type       string
	Properties graph.Properties
}

// Relationship is one candidate relationship between two entity labels
type Relationship struct {
	From       string
	To         string
	Type       string
	Confidence float64
}

// Extraction is the validated output for one or more text chunks
type Extraction struct {
	Entities      []Entity
	Relationships []Relationship
	FailedChunks  int
}

// chatClient is the slice of the OpenAI client the extractor needs;
// tests substitute a scripted fake
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor calls the text-extraction service and normalizes its output.
// The service is an opaque collaborator: everything it returns is
// validated before it is trusted.
type Extractor struct {
	client  chatClient
	model   string
	workers int
	logger  *zap.Logger
}

// NewExtractor creates an extractor against an OpenAI-compatible endpoint
func NewExtractor(baseURL, apiKey, model string, workers int) *Extractor {
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}
	if workers < 1 {
		workers = 3
	}
	return &Extractor{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		workers: workers,
		logger:  logger.Get(),
	}
}

const systemPrompt = `Extract entities and relationships as JSON.

{
  "entities": [{"label": "Name", "type": "Type", "properties": {"description": "brief"}}],
  "relationships": [{"from": "Entity1", "to": "Entity2", "type": "RELATION", "confidence": 0.9}]
}

Rules:
- Match "from"/"to" to entity labels exactly
- UPPER_CASE relationship types (WORKS_AT, USES, MANAGES, etc.)
- Keep descriptions under 10 words
- Return only valid JSON`

// ExtractChunk processes one text chunk through the extraction service
func (e *Extractor) ExtractChunk(ctx context.Context, chunkIndex int, text string) (*Extraction, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Extract all entities and their relationships:\n\n" + text},
		},
		Temperature: 0.0,
		MaxTokens:   4096,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, pkgerrors.NewExtractionFailed(chunkIndex, err)
	}
	if len(resp.Choices) == 0 {
		return nil, pkgerrors.NewExtractionFailed(chunkIndex, nil)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		e.logger.Warn("Extraction response truncated",
			zap.Int("chunk", chunkIndex),
			zap.Int("length", len(content)),
		)
	}

	data, ok := parsePayload(content)
	if !ok {
		return nil, pkgerrors.NewExtractionFailed(chunkIndex, nil)
	}
	return validatePayload(data), nil
}

// ExtractText chunks the text and processes the chunks with bounded
// concurrency. A chunk whose extraction fails is skipped deterministically
// so the rest of the batch still lands; only a total failure is an error.
func (e *Extractor) ExtractText(ctx context.Context, text string) (*Extraction, error) {
	chunks := ChunkText(text)
	if len(chunks) == 0 {
		return &Extraction{}, nil
	}

	var mu sync.Mutex
	merged := &Extraction{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			result, err := e.ExtractChunk(gctx, i, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Skip path: the chunk is lost, the batch continues
				e.logger.Warn("Skipping chunk after extraction failure",
					zap.Int("chunk", i),
					zap.Error(err),
				)
				merged.FailedChunks++
				return nil
			}
			merged.Entities = append(merged.Entities, result.Entities...)
			merged.Relationships = append(merged.Relationships, result.Relationships...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if merged.FailedChunks == len(chunks) {
		return nil, pkgerrors.NewExtractionFailed(0, nil)
	}

	e.logger.Info("Text extraction complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("failed_chunks", merged.FailedChunks),
		zap.Int("entities", len(merged.Entities)),
		zap.Int("relationships", len(merged.Relationships)),
	)
	return merged, nil
}

// Summarize asks the model for a short free-text summary. Used by the
// node analysis endpoint; callers fall back to a deterministic summary
// when this fails.
func (e *Extractor) Summarize(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a process analyst summarizing graph data."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		return "", pkgerrors.NewExtractionFailed(0, err)
	}
	if len(resp.Choices) == 0 {
		return "", pkgerrors.NewExtractionFailed(0, nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// validatePayload drops malformed entries and coerces property values to
// primitives. Entities need a non-empty label; relationships need
// non-empty from, to and type.
func validatePayload(data map[string]interface{}) *Extraction {
	out := &Extraction{}

	if rawEntities, ok := data["entities"].([]interface{}); ok {
		for _, raw := range rawEntities {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			label := strings.TrimSpace(stringField(entry, "label"))
			if label == "" {
				continue
			}
			entity := Entity{
				Label:      label,
				Type:       strings.TrimSpace(stringField(entry, "type")),
				Properties: graph.Properties{},
			}
			if props, ok := entry["properties"].(map[string]interface{}); ok {
				for k, v := range props {
					if v == nil {
						continue
					}
					entity.Properties[k] = graph.Coerce(v)
				}
			}
			out.Entities = append(out.Entities, entity)
		}
	}

	if rawRels, ok := data["relationships"].([]interface{}); ok {
		for _, raw := range rawRels {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			rel := Relationship{
				From:       strings.TrimSpace(stringField(entry, "from")),
				To:         strings.TrimSpace(stringField(entry, "to")),
				Type:       strings.TrimSpace(stringField(entry, "type")),
				Confidence: 0.9,
			}
			if rel.From == "" || rel.To == "" || rel.Type == "" {
				continue
			}
			if confidence, ok := entry["confidence"].(float64); ok {
				rel.Confidence = confidence
			}
			out.Relationships = append(out.Relationships, rel)
		}
	}

	return out
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
