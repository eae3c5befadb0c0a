package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/intraline/kbcore/internal/domain"
	"github.com/intraline/kbcore/internal/pagination"
	"github.com/intraline/kbcore/internal/registry"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Ingest(ctx context.Context, doc domain.ParsedDocument) (*domain.KnowledgeDocument, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeDocument), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, source string) (int, error) {
	args := m.Called(ctx, source)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentService) ListDocuments(ctx context.Context) ([]*domain.KnowledgeDocument, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeDocument), args.Error(1)
}

type MockDocumentPager struct {
	mock.Mock
}

func (m *MockDocumentPager) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*registry.DocumentPage, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.DocumentPage), args.Error(1)
}

func newTestDocument() *domain.KnowledgeDocument {
	now := time.Now().UTC()
	return &domain.KnowledgeDocument{
		ID:         "doc-123",
		Source:     "notes/fox.md",
		Title:      "fox.md",
		Type:       domain.SourceTypeMarkdown,
		ChunkCount: 3,
		DateAdded:  now,
		UpdatedAt:  now,
	}
}

func TestDocumentsHandler_Ingest_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentsHandler(mockSvc, nil)

	expected := newTestDocument()
	mockSvc.On("Ingest", mock.Anything, mock.MatchedBy(func(doc domain.ParsedDocument) bool {
		return doc.Source == "notes/fox.md" &&
			doc.Type == domain.SourceTypeMarkdown &&
			doc.Content != ""
	})).Return(expected, nil)

	body, _ := json.Marshal(IngestRequest{
		Content:  "The quick brown fox.",
		Source:   "notes/fox.md",
		Filename: "fox.md",
		Type:     "md",
	})
	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Ingest(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data DocumentResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "notes/fox.md", resp.Data.Source)
	assert.Equal(t, 3, resp.Data.ChunkCount)
	mockSvc.AssertExpectations(t)
}

func TestDocumentsHandler_Ingest_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"missing content", IngestRequest{Source: "a.md", Type: "md"}},
		{"missing source", IngestRequest{Content: "text", Type: "md"}},
		{"invalid type", IngestRequest{Content: "text", Source: "a.md", Type: "docx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockDocumentService)
			handler := NewDocumentsHandler(mockSvc, nil)

			body, _ := json.Marshal(tt.req)
			req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			handler.Ingest(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			mockSvc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
		})
	}
}

func TestDocumentsHandler_Ingest_InvalidJSON(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentsHandler(mockSvc, nil)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	handler.Ingest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentsHandler_Ingest_ModelUnavailable(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentsHandler(mockSvc, nil)

	mockSvc.On("Ingest", mock.Anything, mock.Anything).Return(nil, domain.ErrModelUnavailable)

	body, _ := json.Marshal(IngestRequest{Content: "text", Source: "a.md", Type: "md"})
	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Ingest(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDocumentsHandler_List_Full(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentsHandler(mockSvc, nil)

	mockSvc.On("ListDocuments", mock.Anything).
		Return([]*domain.KnowledgeDocument{newTestDocument()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data DocumentListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "notes/fox.md", resp.Data.Items[0].Source)
	assert.False(t, resp.Data.HasMore)
}

func TestDocumentsHandler_List_Paginated(t *testing.T) {
	mockSvc := new(MockDocumentService)
	mockPager := new(MockDocumentPager)
	handler := NewDocumentsHandler(mockSvc, mockPager)

	doc := newTestDocument()
	next := pagination.EncodeCursor(doc.Source, doc.DateAdded)
	mockPager.On("ListWithCursor", mock.Anything, (*pagination.Cursor)(nil), 1).
		Return(&registry.DocumentPage{
			Items:      []*domain.KnowledgeDocument{doc},
			NextCursor: next,
			HasMore:    true,
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents?limit=1", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data DocumentListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data.Items, 1)
	assert.True(t, resp.Data.HasMore)
	assert.NotEmpty(t, resp.Data.Cursor)
	mockSvc.AssertNotCalled(t, "ListDocuments", mock.Anything)
}

func TestDocumentsHandler_List_InvalidCursor(t *testing.T) {
	mockSvc := new(MockDocumentService)
	mockPager := new(MockDocumentPager)
	handler := NewDocumentsHandler(mockSvc, mockPager)

	req := httptest.NewRequest(http.MethodGet, "/documents?cursor=%21%21not-base64", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockPager.AssertNotCalled(t, "ListWithCursor", mock.Anything, mock.Anything, mock.Anything)
}

func TestDocumentsHandler_Delete_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentsHandler(mockSvc, nil)

	mockSvc.On("Delete", mock.Anything, "notes/fox.md").Return(3, nil)

	req := httptest.NewRequest(http.MethodDelete, "/documents?source=notes%2Ffox.md", nil)
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data DeleteDocumentResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Data.Deleted)
	mockSvc.AssertExpectations(t)
}

func TestDocumentsHandler_Delete_MissingSource(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentsHandler(mockSvc, nil)

	req := httptest.NewRequest(http.MethodDelete, "/documents", nil)
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockSvc.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDocumentsHandler_Delete_PartialFailure(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentsHandler(mockSvc, nil)

	partial := &domain.PartialDeletionError{Deleted: 1, Requested: 3, Err: errors.New("batch failed")}
	mockSvc.On("Delete", mock.Anything, "notes/fox.md").Return(1, partial)

	req := httptest.NewRequest(http.MethodDelete, "/documents?source=notes%2Ffox.md", nil)
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
