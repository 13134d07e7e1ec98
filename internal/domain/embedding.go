package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Completer produces a chat completion for a system prompt plus user text.
// Used only by the classifier's AI fallback.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// DualEmbeddingResult is the cached pair of embeddings for one catalog entity:
// a natural-language rendering and a structured JSON projection of the same
// attributes, embedded independently.
type DualEmbeddingResult struct {
	DocumentID     string
	NaturalText    string
	NaturalVector  []float32
	NaturalPointID string

	StructuredText    string
	StructuredVector  []float32
	StructuredPointID string

	CacheHit bool
	Stale    bool
}
