// Package rag implements retrieval-augmented generation: parallel hybrid
// search against the vector store, deterministic aggregation, and LLM-based
// synthesis of the retrieved fragments.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/models"
)

// DocumentChunk is one scored fragment returned by hybrid search.
type DocumentChunk struct {
	Score    float64           `json:"score"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NaturalKey returns the chunk's source natural key, used as the
// deterministic tie-break when two chunks share a score.
func (c DocumentChunk) NaturalKey() string {
	return c.Metadata["naturalKey"]
}

// SearchContext scopes a hybrid search to a tenant and tunes its cutoffs.
type SearchContext struct {
	ClientID  models.ClientID
	ProjectID *models.ProjectID
	Limit     int
	MinScore  float64
	// HybridAlpha weighs vector against keyword sub-scores, [0,1].
	HybridAlpha float64
}

// Document is one unit of content pushed to the store during indexing.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// VectorStore is the hybrid vector+keyword store contract. The store applies
// minScore and limit server-side.
type VectorStore interface {
	HybridSearch(ctx context.Context, text string, sc SearchContext) ([]DocumentChunk, error)
	Insert(ctx context.Context, clientID models.ClientID, doc Document) error
}

// HTTPVectorStore talks to the vector store service over its JSON API.
type HTTPVectorStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPVectorStore creates a store client from configuration.
func NewHTTPVectorStore(cfg *config.VectorStoreConfig) *HTTPVectorStore {
	return &HTTPVectorStore{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type searchRequest struct {
	Query       string  `json:"query"`
	ClientID    string  `json:"clientId"`
	ProjectID   string  `json:"projectId,omitempty"`
	Limit       int     `json:"limit"`
	MinScore    float64 `json:"minScore"`
	HybridAlpha float64 `json:"hybridAlpha"`
}

type searchResponse struct {
	Chunks []DocumentChunk `json:"chunks"`
}

type insertRequest struct {
	ClientID string   `json:"clientId"`
	Document Document `json:"document"`
}

// HybridSearch runs one hybrid query.
func (s *HTTPVectorStore) HybridSearch(ctx context.Context, text string, sc SearchContext) ([]DocumentChunk, error) {
	req := searchRequest{
		Query:       text,
		ClientID:    sc.ClientID.Hex(),
		Limit:       sc.Limit,
		MinScore:    sc.MinScore,
		HybridAlpha: sc.HybridAlpha,
	}
	if sc.ProjectID != nil {
		req.ProjectID = sc.ProjectID.Hex()
	}

	var resp searchResponse
	if err := s.post(ctx, "/v1/search", req, &resp); err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}
	return resp.Chunks, nil
}

// Insert pushes one document to the store.
func (s *HTTPVectorStore) Insert(ctx context.Context, clientID models.ClientID, doc Document) error {
	if err := s.post(ctx, "/v1/documents", insertRequest{ClientID: clientID.Hex(), Document: doc}, nil); err != nil {
		return fmt.Errorf("document insert failed: %w", err)
	}
	return nil
}

func (s *HTTPVectorStore) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vector store returned %d: %s", resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
