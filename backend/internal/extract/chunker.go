package extract

import "strings"

// Chunk size tuned so the extraction response fits the model's output
// budget alongside the prompt.
const (
	maxTokensPerChunk   = 600
	approxCharsPerToken = 4
	maxCharsPerChunk    = maxTokensPerChunk * approxCharsPerToken
)

// ChunkText splits large text into pieces suitable for the extraction
// service. Paragraph boundaries first, character slicing as a last resort.
func ChunkText(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxCharsPerChunk {
		return []string{text}
	}

	var chunks []string
	var current []string
	currentLength := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = current[:0]
			currentLength = 0
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > maxCharsPerChunk {
			flush()
			for i := 0; i < len(para); i += maxCharsPerChunk {
				end := i + maxCharsPerChunk
				if end > len(para) {
					end = len(para)
				}
				chunks = append(chunks, para[i:end])
			}
			continue
		}

		if currentLength+len(para) > maxCharsPerChunk {
			flush()
		}
		current = append(current, para)
		currentLength += len(para)
	}
	flush()

	return chunks
}
