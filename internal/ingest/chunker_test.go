package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordCount(s string) int { return len(strings.Fields(s)) }

func TestChunkEmptyInput(t *testing.T) {
	c := NewChunker(120, 25)
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunkShortTextIsOneChunk(t *testing.T) {
	c := NewChunker(120, 25)
	chunks := c.Chunk("One sentence. Another sentence here.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "One sentence. Another sentence here.", chunks[0])
}

func TestChunkRespectsWordBudget(t *testing.T) {
	c := NewChunker(120, 25)

	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("This sentence has exactly seven words in it. ")
	}
	chunks := c.Chunk(b.String())
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, wordCount(chunk), 120, "chunk %d over budget", i)
	}
}

func TestChunkOverlapCarriesTrailingWords(t *testing.T) {
	c := NewChunker(20, 5)

	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("Alpha beta gamma delta epsilon. ")
	}
	chunks := c.Chunk(b.String())
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		tail := strings.Join(prev[len(prev)-5:], " ")
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d does not start with its predecessor's tail", i)
	}
}

func TestChunkSplitsOversizedSentence(t *testing.T) {
	c := NewChunker(10, 2)
	long := strings.Repeat("word ", 35) // one 35-word "sentence", no punctuation
	chunks := c.Chunk(long)
	require.Greater(t, len(chunks), 2)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, wordCount(chunk), 10)
	}

	// No words lost: unique words per position reconstruct the input length.
	total := 0
	for i, chunk := range chunks {
		n := wordCount(chunk)
		if i > 0 {
			n -= 2 // overlap repeats the previous tail
		}
		total += n
	}
	assert.Equal(t, 35, total)
}

func TestChunkNormalizesUnicode(t *testing.T) {
	c := NewChunker(120, 25)
	// Combining acute accent; NFC folds it into the precomposed rune.
	chunks := c.Chunk("Café culture thrives.")
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "Café")
}

func TestNewChunkerClampsOverlap(t *testing.T) {
	c := NewChunker(20, 50)
	assert.Equal(t, 20, c.maxWords)
	assert.Equal(t, 5, c.overlapWords)

	c = NewChunker(0, -1)
	assert.Equal(t, 120, c.maxWords)
	assert.Equal(t, 0, c.overlapWords)
}
