package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/intraline/kbcore/internal/api"
	"github.com/intraline/kbcore/internal/domain"
	"github.com/intraline/kbcore/internal/pagination"
	"github.com/intraline/kbcore/internal/registry"
)

type DocumentService interface {
	Ingest(ctx context.Context, doc domain.ParsedDocument) (*domain.KnowledgeDocument, error)
	Delete(ctx context.Context, source string) (int, error)
	ListDocuments(ctx context.Context) ([]*domain.KnowledgeDocument, error)
}

// DocumentPager serves keyset-paginated listings straight from the registry.
type DocumentPager interface {
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*registry.DocumentPage, error)
}

type DocumentsHandler struct {
	svc   DocumentService
	pager DocumentPager
}

func NewDocumentsHandler(svc DocumentService, pager DocumentPager) *DocumentsHandler {
	return &DocumentsHandler{svc: svc, pager: pager}
}

type IngestRequest struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Filename   string `json:"filename"`
	Type       string `json:"type"`
	Category   string `json:"category,omitempty"`
	Importance string `json:"importance,omitempty"`
}

type DocumentResponse struct {
	ID         string `json:"id,omitempty"`
	Source     string `json:"source"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	ChunkCount int    `json:"chunk_count"`
	DateAdded  string `json:"date_added"`
	UpdatedAt  string `json:"updated_at"`
}

func documentToResponse(d *domain.KnowledgeDocument) *DocumentResponse {
	return &DocumentResponse{
		ID:         d.ID,
		Source:     d.Source,
		Title:      d.Title,
		Type:       string(d.Type),
		ChunkCount: d.ChunkCount,
		DateAdded:  d.DateAdded.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:  d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *DocumentsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Source == "" {
		api.Error(w, http.StatusBadRequest, "source is required")
		return
	}
	if !domain.IsValidSourceType(domain.SourceType(req.Type)) {
		api.Error(w, http.StatusBadRequest, "invalid source type")
		return
	}

	doc := domain.ParsedDocument{
		Content:    req.Content,
		Source:     req.Source,
		Filename:   req.Filename,
		Type:       domain.SourceType(req.Type),
		Category:   req.Category,
		Importance: req.Importance,
	}

	registered, err := h.svc.Ingest(r.Context(), doc)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(registered))
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	cursorStr := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")

	// Paginate only when the caller asks for it; a bare GET serves the
	// full listing with the vector-store fallback behind it.
	if cursorStr == "" && limitStr == "" {
		docs, err := h.svc.ListDocuments(r.Context())
		if err != nil {
			api.HandleError(w, err)
			return
		}
		responses := make([]*DocumentResponse, len(docs))
		for i, d := range docs {
			responses[i] = documentToResponse(d)
		}
		api.Success(w, http.StatusOK, DocumentListResponse{Items: responses})
		return
	}

	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var cursor *pagination.Cursor
	if cursorStr != "" {
		decoded, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		cursor = decoded
	}

	page, err := h.pager.ListWithCursor(r.Context(), cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(page.Items))
	for i, d := range page.Items {
		responses[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   responses,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

type DeleteDocumentResponse struct {
	Source  string `json:"source"`
	Deleted int    `json:"deleted"`
}

func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		api.Error(w, http.StatusBadRequest, "source is required")
		return
	}

	deleted, err := h.svc.Delete(r.Context(), source)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DeleteDocumentResponse{Source: source, Deleted: deleted})
}
