// Package embed wraps an OpenAI-compatible embedding API behind a small
// interface so stores and lens builders don't depend on a concrete provider.
package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns text into dense vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures the langchaingo-backed embedder.
type Options struct {
	APIKey string
	Model  string
	// BaseURL overrides the provider endpoint, e.g. for local
	// OpenAI-compatible services. Empty means the provider default.
	BaseURL string
}

type lcEmbedder struct {
	embedder embeddings.Embedder
}

// NewEmbedder creates an embedder backed by langchaingo's OpenAI client.
func NewEmbedder(opts Options) (Embedder, error) {
	clientOpts := []openai.Option{
		openai.WithToken(opts.APIKey),
		openai.WithEmbeddingModel(opts.Model),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}

	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create client")
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, eris.Wrap(err, "embed: create embedder")
	}

	return &lcEmbedder{embedder: embedder}, nil
}

func (e *lcEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, eris.Wrap(err, "embed: embed text")
	}
	if len(vecs) == 0 {
		return nil, eris.New("embed: provider returned no vectors")
	}
	return vecs[0], nil
}

func (e *lcEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, eris.Wrap(err, "embed: embed texts")
	}
	return vecs, nil
}
