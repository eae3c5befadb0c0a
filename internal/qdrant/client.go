// Package qdrant wraps the vector database's REST wire protocol: collection
// lifecycle, point upsert, similarity search, deletion, and full
// cursor-paginated enumeration.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/intraline/kbcore/internal/domain"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultScrollPageSize  = 100
	defaultDeleteBatchSize = 100
	deleteBatchMaxRetries  = 3
)

// Config holds the connection settings for the vector store.
type Config struct {
	URL        string
	APIKey     string
	VectorSize int
	Timeout    time.Duration

	// ScrollPageSize bounds points fetched per scroll page.
	ScrollPageSize int
	// DeleteBatchSize bounds ids per delete request.
	DeleteBatchSize int
}

// Client is a REST client to the vector store. Reconfiguration constructs a
// new Client; instances are immutable after creation.
type Client struct {
	url             string
	apiKey          string
	vectorSize      int
	scrollPageSize  int
	deleteBatchSize int
	http            *http.Client
}

// NewClient creates a vector store client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	scrollPageSize := cfg.ScrollPageSize
	if scrollPageSize <= 0 {
		scrollPageSize = defaultScrollPageSize
	}
	deleteBatchSize := cfg.DeleteBatchSize
	if deleteBatchSize <= 0 {
		deleteBatchSize = defaultDeleteBatchSize
	}
	return &Client{
		url:             cfg.URL,
		apiKey:          cfg.APIKey,
		vectorSize:      cfg.VectorSize,
		scrollPageSize:  scrollPageSize,
		deleteBatchSize: deleteBatchSize,
		http:            &http.Client{Timeout: timeout},
	}
}

// pointPayload is the wire shape of a point's payload. Decoding tolerates
// partially populated legacy records: missing fields default to zero values.
type pointPayload struct {
	Content     string `json:"content"`
	Source      string `json:"source"`
	Filename    string `json:"filename"`
	Type        string `json:"type"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	DateAdded   string `json:"dateAdded"`
	Category    string `json:"category,omitempty"`
	Importance  string `json:"importance,omitempty"`
}

func payloadFromMetadata(content string, md domain.ChunkMetadata) pointPayload {
	return pointPayload{
		Content:     content,
		Source:      md.Source,
		Filename:    md.Filename,
		Type:        string(md.Type),
		ChunkIndex:  md.ChunkIndex,
		TotalChunks: md.TotalChunks,
		DateAdded:   md.DateAdded,
		Category:    md.Category,
		Importance:  md.Importance,
	}
}

func (p pointPayload) metadata() domain.ChunkMetadata {
	return domain.ChunkMetadata{
		Source:      p.Source,
		Filename:    p.Filename,
		Type:        domain.SourceType(p.Type),
		ChunkIndex:  p.ChunkIndex,
		TotalChunks: p.TotalChunks,
		DateAdded:   p.DateAdded,
		Category:    p.Category,
		Importance:  p.Importance,
	}
}

// EnsureCollection checks whether the named collection exists and creates it
// with the configured vector size and cosine distance if absent. Idempotent;
// safe to call on every startup.
func (c *Client) EnsureCollection(ctx context.Context, collection string) error {
	var list struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections", nil, &list); err != nil {
		return err
	}

	for _, existing := range list.Result.Collections {
		if existing.Name == collection {
			return nil
		}
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.vectorSize,
			"distance": "Cosine",
		},
	}
	return c.do(ctx, http.MethodPut, "/collections/"+collection, body, nil)
}

// Upsert inserts or replaces items by id. No-op on empty input. Every item
// must carry an embedding matching the collection's vector size.
func (c *Client) Upsert(ctx context.Context, collection string, items []domain.KnowledgeItem) error {
	if len(items) == 0 {
		return nil
	}

	points := make([]map[string]any, len(items))
	for i, item := range items {
		if len(item.Embedding) != c.vectorSize {
			return domain.ErrSchemaMismatch
		}
		points[i] = map[string]any{
			"id":      item.ID,
			"vector":  item.Embedding,
			"payload": payloadFromMetadata(item.Content, item.Metadata),
		}
	}

	body := map[string]any{"points": points}
	return c.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil)
}

// Search returns up to limit nearest neighbors by cosine similarity.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      string       `json:"id"`
			Score   float64      `json:"score"`
			Payload pointPayload `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req, &resp); err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			ID:       r.ID,
			Content:  r.Payload.Content,
			Metadata: r.Payload.metadata(),
			Score:    r.Score,
		})
	}
	return results, nil
}

// DeleteVectors deletes points by explicit id list in bounded batches.
// No-op on empty input.
func (c *Client) DeleteVectors(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	for start := 0; start < len(ids); start += c.deleteBatchSize {
		end := start + c.deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := c.deleteBatch(ctx, collection, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBySource removes every point whose payload source matches exactly.
//
// The store has no server-side filtered delete in this design, so this
// enumerates the entire collection page by page and filters locally: O(N)
// in collection size. Call it as a batch/background operation, never on a
// hot path. Returns the number of points deleted; a partial failure reports
// how many were actually removed.
func (c *Client) DeleteBySource(ctx context.Context, collection, source string) (int, error) {
	var matched []string
	err := c.scroll(ctx, collection, func(p scrollPoint) {
		if p.Payload.Source == source {
			matched = append(matched, p.ID)
		}
	})
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		return 0, nil
	}

	deleted := 0
	for start := 0; start < len(matched); start += c.deleteBatchSize {
		end := start + c.deleteBatchSize
		if end > len(matched) {
			end = len(matched)
		}
		if err := c.deleteBatch(ctx, collection, matched[start:end]); err != nil {
			return deleted, &domain.PartialDeletionError{
				Deleted:   deleted,
				Requested: len(matched),
				Err:       err,
			}
		}
		deleted += end - start
	}
	return deleted, nil
}

// ListItems enumerates every stored item via cursor pagination. Intended for
// registry migration and audit, not interactive queries: O(N) in collection
// size.
func (c *Client) ListItems(ctx context.Context, collection string) ([]domain.KnowledgeItem, error) {
	var items []domain.KnowledgeItem
	err := c.scroll(ctx, collection, func(p scrollPoint) {
		items = append(items, domain.KnowledgeItem{
			ID:       p.ID,
			Content:  p.Payload.Content,
			Metadata: p.Payload.metadata(),
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

type scrollPoint struct {
	ID      string       `json:"id"`
	Payload pointPayload `json:"payload"`
}

// scroll walks the whole collection, invoking visit for every point. The
// cursor returned by one page is passed verbatim as the offset of the next;
// a null cursor signals exhaustion. An empty page with a live cursor is
// valid and continues the walk.
func (c *Client) scroll(ctx context.Context, collection string, visit func(scrollPoint)) error {
	var offset json.RawMessage
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req := map[string]any{
			"limit":        c.scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []scrollPoint   `json:"points"`
				NextPageOffset json.RawMessage `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", req, &resp); err != nil {
			return err
		}

		for _, p := range resp.Result.Points {
			visit(p)
		}

		next := resp.Result.NextPageOffset
		if len(next) == 0 || string(next) == "null" {
			return nil
		}
		offset = next
	}
}

// deleteBatch deletes one bounded batch of ids, retrying transient failures
// so a long pagination scan does not restart on a flaky delete.
func (c *Client) deleteBatch(ctx context.Context, collection string, ids []string) error {
	body := map[string]any{"points": ids}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(250*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
		), deleteBatchMaxRetries),
		ctx,
	)

	return backoff.Retry(func() error {
		return c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil)
	}, policy)
}

// do executes one JSON request against the store.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.StoreUnreachable("vector store", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.StoreUnreachable("vector store",
			fmt.Errorf("%s %s returned %s: %s", method, path, resp.Status, bytes.TrimSpace(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
