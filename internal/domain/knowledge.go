package domain

import (
	"strings"
	"time"
)

// SourceType enumerates the origins a document can be ingested from.
type SourceType string

const (
	SourceTypeText     SourceType = "txt"
	SourceTypeMarkdown SourceType = "md"
	SourceTypePDF      SourceType = "pdf"
	SourceTypeURL      SourceType = "url"
	SourceTypeNotion   SourceType = "notion"
	SourceTypeMemory   SourceType = "memory"
)

// ValidSourceTypes lists all accepted source types.
var ValidSourceTypes = []SourceType{
	SourceTypeText,
	SourceTypeMarkdown,
	SourceTypePDF,
	SourceTypeURL,
	SourceTypeNotion,
	SourceTypeMemory,
}

// IsValidSourceType checks whether t is a known source type.
func IsValidSourceType(t SourceType) bool {
	for _, valid := range ValidSourceTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// ParsedDocument is the input boundary: normalized UTF-8 text plus the
// minimal metadata produced by an external parser (file reader, PDF
// extractor, web scraper, Notion flattener).
type ParsedDocument struct {
	Content  string
	Source   string
	Filename string
	Type     SourceType

	// Optional markers carried through for memory-style entries.
	Category   string
	Importance string
}

// Chunk is a contiguous slice of a document's normalized text plus its
// ordinal position. Chunks are ephemeral: produced by the chunker and
// consumed immediately by embedding, never persisted on their own.
type Chunk struct {
	Text  string
	Index int
}

// ChunkMetadata carries the per-chunk attributes stored alongside each
// vector point. ChunkIndex < TotalChunks holds for every chunk of a source.
type ChunkMetadata struct {
	Source      string     `json:"source"`
	Filename    string     `json:"filename"`
	Type        SourceType `json:"type"`
	ChunkIndex  int        `json:"chunkIndex"`
	TotalChunks int        `json:"totalChunks"`
	DateAdded   string     `json:"dateAdded"`

	// Optional fields for specialized content such as memory entries.
	Category   string `json:"category,omitempty"`
	Importance string `json:"importance,omitempty"`
}

// KnowledgeItem is the unit persisted to the vector store: chunk content,
// metadata payload, and (transiently, during write) its embedding.
// Items are never mutated in place; an update is a delete-then-reinsert
// of all chunks for the source.
type KnowledgeItem struct {
	ID        string
	Content   string
	Metadata  ChunkMetadata
	Embedding []float32
}

// KnowledgeDocument is the unit persisted to the metadata registry: one row
// per source. ChunkCount mirrors the number of live vector points for the
// source; the vector store is the source of truth and the registry is a
// rebuildable derived index.
type KnowledgeDocument struct {
	ID         string
	Source     string
	Title      string
	Type       SourceType
	ChunkCount int
	DateAdded  time.Time
	UpdatedAt  time.Time
}

// SearchResult is a read-only projection of a vector-store hit: cosine
// similarity score in [-1, 1], practically [0, 1] for normalized embeddings.
type SearchResult struct {
	ID       string
	Content  string
	Metadata ChunkMetadata
	Score    float64
}

// ValidateParsedDocument checks the input boundary contract for ingestion.
func ValidateParsedDocument(doc ParsedDocument) error {
	if strings.TrimSpace(doc.Content) == "" {
		return ErrEmptyContent
	}
	if strings.TrimSpace(doc.Source) == "" {
		return ErrMissingSource
	}
	if !IsValidSourceType(doc.Type) {
		return ErrInvalidSourceType
	}
	return nil
}
