// Package qdrant is a thin HTTP client for the vector index backend.
// It performs no retries; retry policy belongs to the caller.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
)

// Point is one indexed vector with its payload.
type Point struct {
	ID      string            `json:"id"`
	Vector  []float32         `json:"vector"`
	Payload map[string]string `json:"payload,omitempty"`
}

// ScoredPoint is one ranked search hit returned by the backend.
type ScoredPoint struct {
	ID      string            `json:"id"`
	Score   float64           `json:"score"`
	Payload map[string]string `json:"payload,omitempty"`
}

// CollectionInfo describes a collection's current state.
type CollectionInfo struct {
	Name        string `json:"name"`
	VectorSize  int    `json:"vector_size"`
	PointsCount int    `json:"points_count"`
}

// Client is the vector index HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a vector index client.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type createCollectionRequest struct {
	Vectors struct {
		Size     int    `json:"size"`
		Distance string `json:"distance"`
	} `json:"vectors"`
}

// EnsureCollection creates the collection if it does not exist (check-then-create).
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if _, err := c.GetCollectionInfo(ctx, name); err == nil {
		return nil
	}

	var req createCollectionRequest
	req.Vectors.Size = vectorSize
	req.Vectors.Distance = "Cosine"

	if err := c.do(ctx, http.MethodPut, "/collections/"+name, req, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	c.logger.Info("vector collection created",
		zap.String("collection", name),
		zap.Int("vector_size", vectorSize))
	return nil
}

// GetCollectionInfo returns collection metadata, or an error when the
// collection does not exist.
func (c *Client) GetCollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	var resp struct {
		Result CollectionInfo `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, &resp); err != nil {
		return CollectionInfo{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	if resp.Result.Name == "" {
		resp.Result.Name = name
	}
	return resp.Result, nil
}

// UpsertPoint writes a single point.
func (c *Client) UpsertPoint(ctx context.Context, collection string, p Point) error {
	return c.UpsertBatch(ctx, collection, []Point{p})
}

// UpsertBatch writes points in one request (last-writer-wins per id).
func (c *Client) UpsertBatch(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []Point `json:"points"`
	}{Points: points}
	if err := c.do(ctx, http.MethodPut, "/collections/"+collection+"/points", body, nil); err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// DeletePoint removes a point by id.
func (c *Client) DeletePoint(ctx context.Context, collection, id string) error {
	body := struct {
		Points []string `json:"points"`
	}{Points: []string{id}}
	if err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete", body, nil); err != nil {
		return fmt.Errorf("delete point %s from %s: %w", id, collection, err)
	}
	return nil
}

// HealthCheck verifies the backend is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/collections", nil, nil); err != nil {
		return fmt.Errorf("vector index health check: %w", err)
	}
	return nil
}

type searchRequest struct {
	Vector      []float32         `json:"vector"`
	Limit       int               `json:"limit"`
	WithPayload bool              `json:"with_payload"`
	Filter      map[string]string `json:"filter,omitempty"`
}

// Search runs a nearest-neighbor query. filters is an exact-match
// conjunction over payload fields; nil means unfiltered.
func (c *Client) Search(
	ctx context.Context, collection string,
	vector []float32, topK int, filters map[string]string,
) ([]ScoredPoint, error) {
	req := searchRequest{
		Vector:      vector,
		Limit:       topK,
		WithPayload: true,
		Filter:      filters,
	}
	var resp struct {
		Result []ScoredPoint `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	return resp.Result, nil
}

// do executes one request against the backend. Non-2xx responses surface the
// backend's error body wrapped with domain.ErrVectorIndexError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, err, domain.ErrVectorIndexError)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend status %s: %s: %w",
			resp.Status, strings.TrimSpace(string(respBody)), domain.ErrVectorIndexError)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
