// Package ollama provides a core.EmbeddingClient backed by a local Ollama
// embedding model via langchaingo.
package ollama

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/hupe1980/roundtable/core"
)

// Options configure the Ollama embedder.
type Options struct {
	Model     string
	ServerURL string
}

// Embedder produces embedding vectors through an Ollama server.
type Embedder struct {
	llm *ollama.LLM
}

// New creates an Embedder for a local Ollama server.
func New(optFns ...func(o *Options)) (*Embedder, error) {
	opts := Options{
		Model:     "nomic-embed-text",
		ServerURL: "http://localhost:11434",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	llm, err := ollama.New(
		ollama.WithModel(opts.Model),
		ollama.WithServerURL(opts.ServerURL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize ollama embedder: %w", err)
	}
	return &Embedder{llm: llm}, nil
}

// Embed implements core.EmbeddingClient.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return vectors[0], nil
}

var _ core.EmbeddingClient = (*Embedder)(nil)
