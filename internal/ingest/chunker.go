// Package ingest fetches source documents, splits them into retrieval-sized
// chunks, and indexes them into external storage areas via asynchronous file
// batches.
package ingest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Chunker splits document text into word-bounded chunks with a trailing
// overlap carried into the next chunk, so retrieval never loses context at a
// chunk boundary.
type Chunker struct {
	maxWords     int
	overlapWords int
}

// NewChunker creates a chunker. Overlap is clamped below maxWords; a zero or
// negative maxWords falls back to the default.
func NewChunker(maxWords, overlapWords int) *Chunker {
	if maxWords <= 0 {
		maxWords = 120
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= maxWords {
		overlapWords = maxWords / 4
	}
	return &Chunker{maxWords: maxWords, overlapWords: overlapWords}
}

// Chunk splits text into chunks of at most maxWords words. Sentences are
// kept whole where possible; a single sentence longer than the budget is
// split on word boundaries. Each chunk after the first starts with the last
// overlapWords words of its predecessor.
func (c *Chunker) Chunk(text string) []string {
	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	var chunks []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))
		if c.overlapWords > 0 && len(current) > c.overlapWords {
			current = append([]string(nil), current[len(current)-c.overlapWords:]...)
		} else {
			current = nil
		}
	}

	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		for len(words) > 0 {
			space := c.maxWords - len(current)
			if space <= 0 {
				flush()
				continue
			}
			take := len(words)
			if take > space {
				// Only split mid-sentence when the sentence cannot fit a
				// fresh chunk either.
				if len(current) > c.overlapWords && len(words) <= c.maxWords-c.overlapWords {
					flush()
					continue
				}
				take = space
			}
			current = append(current, words[:take]...)
			words = words[take:]
		}
	}
	if len(current) > 0 {
		// The residue may be pure overlap already emitted with the last chunk.
		if len(chunks) == 0 || len(current) > c.overlapWords || strings.Join(current, " ") != lastWords(chunks[len(chunks)-1], c.overlapWords) {
			chunks = append(chunks, strings.Join(current, " "))
		}
	}
	return chunks
}

// splitSentences splits on terminal punctuation, keeping the punctuation
// with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		s := strings.TrimSpace(text[start : i+1])
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func lastWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
