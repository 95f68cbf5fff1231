package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// lensQuery is the comparison framing every lens embedding is anchored to,
// so stored analysis vectors and later queries live in the same region of
// the embedding space.
const lensQuery = "Task: compare strengths, weaknesses, niches, trends, and expectations for customer vs competitor."

const lensChunkChars = 1200

// competitionLens embeds an analysis narrative into the comparison lens:
// the text is split into paragraph chunks, each chunk is embedded together
// with the comparison framing, and the chunk vectors are averaged.
func (p *Pipeline) competitionLens(ctx context.Context, analysis string) ([]float32, error) {
	chunks := splitParagraphs(analysis, lensChunkChars)
	if len(chunks) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(chunks))
	for i, chunk := range chunks {
		inputs[i] = "Evidence: " + chunk + ". " + lensQuery
	}

	vectors, err := p.embed.EmbedTexts(ctx, inputs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: embed competition lens")
	}
	return averageVectors(vectors), nil
}

// splitParagraphs packs blank-line separated paragraphs into chunks of at
// most maxChars, splitting oversized paragraphs mid-text.
func splitParagraphs(text string, maxChars int) []string {
	var paragraphs []string
	for _, part := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	var chunks []string
	current := ""
	for _, paragraph := range paragraphs {
		joined := paragraph
		if current != "" {
			joined = current + "\n\n" + paragraph
		}
		if len(joined) <= maxChars {
			current = joined
			continue
		}
		if current != "" {
			chunks = append(chunks, current)
		}
		for len(paragraph) > maxChars {
			chunks = append(chunks, paragraph[:maxChars])
			paragraph = paragraph[maxChars:]
		}
		current = paragraph
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func averageVectors(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	avg := make([]float32, len(vectors[0]))
	for _, vec := range vectors {
		for i := range avg {
			avg[i] += vec[i]
		}
	}
	for i := range avg {
		avg[i] /= float32(len(vectors))
	}
	return avg
}

// buildAnalysisContext concatenates an analysis with retrieved sibling
// excerpts, respecting a hard character budget. The base text comes first;
// extras fill the remainder and the last fitting piece is truncated.
func buildAnalysisContext(base string, extras []string, maxChars int) string {
	var parts []string
	size := 0

	for _, text := range append([]string{base}, extras...) {
		next := strings.TrimSpace(text)
		if next == "" {
			continue
		}
		sep := 0
		if len(parts) > 0 {
			sep = 2
		}
		if size+sep+len(next) > maxChars {
			remaining := maxChars - size - sep
			if remaining > 0 {
				parts = append(parts, next[:remaining])
			}
			break
		}
		parts = append(parts, next)
		size += sep + len(next)
	}

	return strings.Join(parts, "\n\n")
}
