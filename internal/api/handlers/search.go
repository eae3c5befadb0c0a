package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/intraline/kbcore/internal/api"
	"github.com/intraline/kbcore/internal/domain"
)

type SearchService interface {
	Query(ctx context.Context, text string, limit int) ([]domain.SearchResult, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query    string  `json:"query"`
	Limit    int     `json:"limit,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

type SearchResultResponse struct {
	ID       string               `json:"id"`
	Content  string               `json:"content"`
	Score    float64              `json:"score"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

type SearchResponse struct {
	Results []*SearchResultResponse `json:"results"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MinScore < 0 || req.MinScore > 1 {
		api.Error(w, http.StatusBadRequest, "min_score must be between 0 and 1")
		return
	}

	results, err := h.svc.Query(r.Context(), req.Query, req.Limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchResultResponse, 0, len(results))
	for _, res := range results {
		if res.Score < req.MinScore {
			continue
		}
		responses = append(responses, &SearchResultResponse{
			ID:       res.ID,
			Content:  res.Content,
			Score:    res.Score,
			Metadata: res.Metadata,
		})
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: responses})
}
