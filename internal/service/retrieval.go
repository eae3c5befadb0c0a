package service

import (
	"context"
	"strings"

	"github.com/intraline/kbcore/internal/domain"
	"github.com/intraline/kbcore/internal/telemetry"
)

const defaultSearchLimit = 5

// RetrievalService answers semantic queries against the vector store.
type RetrievalService struct {
	store      VectorStore
	embedder   Embedder
	collection string
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(store VectorStore, embedder Embedder, collection string) *RetrievalService {
	return &RetrievalService{
		store:      store,
		embedder:   embedder,
		collection: collection,
	}
}

// Query embeds the query text and returns the top matches ordered by
// similarity, best first. Results are returned as-is: relevance filtering
// is the caller's concern.
func (s *RetrievalService) Query(ctx context.Context, text string, limit int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Query", telemetry.SpanAttributes{
		Collection: s.collection,
		Operation:  "search",
	})
	defer span.End()

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	results, err := s.store.Search(ctx, s.collection, vector, limit)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return results, nil
}
