package domain

import "errors"

var (
	// ErrNotFound signals a missing catalog object.
	ErrNotFound = errors.New("not found")
	// ErrNodeNotFound signals a missing lineage graph node.
	ErrNodeNotFound = errors.New("graph node not found")
	// ErrInvalidRequest signals a malformed search request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCompletionProviderError signals a chat-completion provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrVectorIndexError signals a vector index backend failure.
	ErrVectorIndexError = errors.New("vector index error")
	// ErrStoreError signals a catalog store failure.
	ErrStoreError = errors.New("catalog store error")
	// ErrUpdateInProgress signals that a learning update is already running.
	ErrUpdateInProgress = errors.New("learning update already in progress")
)
