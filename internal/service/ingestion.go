package service

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intraline/kbcore/internal/chunker"
	"github.com/intraline/kbcore/internal/domain"
	"github.com/intraline/kbcore/internal/telemetry"
)

// VectorStore defines the vector database operations the coordinator needs.
// The vector store is the source of truth for document existence.
type VectorStore interface {
	EnsureCollection(ctx context.Context, collection string) error
	Upsert(ctx context.Context, collection string, items []domain.KnowledgeItem) error
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.SearchResult, error)
	DeleteVectors(ctx context.Context, collection string, ids []string) error
	DeleteBySource(ctx context.Context, collection, source string) (int, error)
	ListItems(ctx context.Context, collection string) ([]domain.KnowledgeItem, error)
}

// MetadataRegistry defines the document-listing operations the coordinator
// needs. The registry is a rebuildable cache derived from the vector store.
type MetadataRegistry interface {
	Register(ctx context.Context, doc *domain.KnowledgeDocument) error
	Unregister(ctx context.Context, source string) error
	List(ctx context.Context) ([]*domain.KnowledgeDocument, error)
	GetBySource(ctx context.Context, source string) (*domain.KnowledgeDocument, error)
	UpdateChunkCount(ctx context.Context, source string, count int) error
}

// Embedder turns text into fixed-length normalized vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// IngestionCoordinator orchestrates chunking, embedding, and the dual-store
// write path, and owns the consistency contract between the vector store
// and the metadata registry.
type IngestionCoordinator struct {
	store      VectorStore
	registry   MetadataRegistry
	embedder   Embedder
	collection string
	chunkCfg   chunker.Config
	uuidGen    UUIDGenerator

	// locks serializes operations per source; different sources proceed
	// in parallel.
	locks sync.Map
}

// NewIngestionCoordinator creates a new IngestionCoordinator instance
func NewIngestionCoordinator(store VectorStore, registry MetadataRegistry, embedder Embedder, collection string) *IngestionCoordinator {
	return &IngestionCoordinator{
		store:      store,
		registry:   registry,
		embedder:   embedder,
		collection: collection,
		chunkCfg:   chunker.DefaultConfig(),
		uuidGen:    &DefaultUUIDGenerator{},
	}
}

// NewIngestionCoordinatorWithOptions creates a coordinator with a custom
// chunking configuration and UUID generator (for testing).
func NewIngestionCoordinatorWithOptions(store VectorStore, registry MetadataRegistry, embedder Embedder, collection string, chunkCfg chunker.Config, uuidGen UUIDGenerator) *IngestionCoordinator {
	c := NewIngestionCoordinator(store, registry, embedder, collection)
	if chunkCfg.TargetSize > 0 {
		c.chunkCfg = chunkCfg
	}
	if uuidGen != nil {
		c.uuidGen = uuidGen
	}
	return c
}

// EnsureReady provisions the vector-store collection. Idempotent; call on
// startup.
func (c *IngestionCoordinator) EnsureReady(ctx context.Context) error {
	return c.store.EnsureCollection(ctx, c.collection)
}

// Ingest chunks and embeds a parsed document, replaces any existing vectors
// for its source, and registers it in the metadata registry.
//
// If the vector-store write succeeds but the registry write fails, the
// document is ingested but unlisted: a detectable, recoverable state that
// Reconcile repairs. The registry error is logged, not returned.
func (c *IngestionCoordinator) Ingest(ctx context.Context, doc domain.ParsedDocument) (*domain.KnowledgeDocument, error) {
	if err := domain.ValidateParsedDocument(doc); err != nil {
		return nil, err
	}

	unlock := c.lockSource(doc.Source)
	defer unlock()

	ctx, span := telemetry.StartSpan(ctx, "IngestionCoordinator.Ingest", telemetry.SpanAttributes{
		Source:     doc.Source,
		Collection: c.collection,
		Operation:  "ingest",
	})
	defer span.End()

	chunks := chunker.Split(doc.Content, c.chunkCfg)
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyContent
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	now := time.Now().UTC()
	dateAdded := now.Format(time.RFC3339)
	items := make([]domain.KnowledgeItem, len(chunks))
	for i, ch := range chunks {
		items[i] = domain.KnowledgeItem{
			ID:      c.uuidGen.NewString(),
			Content: ch.Text,
			Metadata: domain.ChunkMetadata{
				Source:      doc.Source,
				Filename:    doc.Filename,
				Type:        doc.Type,
				ChunkIndex:  ch.Index,
				TotalChunks: len(chunks),
				DateAdded:   dateAdded,
				Category:    doc.Category,
				Importance:  doc.Importance,
			},
			Embedding: vectors[i],
		}
	}

	// Full replace: clear any previous chunks for this source so a
	// re-ingest leaves no orphans.
	if _, err := c.store.DeleteBySource(ctx, c.collection, doc.Source); err != nil {
		span.SetError(err)
		return nil, err
	}

	if err := c.store.Upsert(ctx, c.collection, items); err != nil {
		span.SetError(err)
		return nil, err
	}

	registered := &domain.KnowledgeDocument{
		Source:     doc.Source,
		Title:      doc.Filename,
		Type:       doc.Type,
		ChunkCount: len(items),
		DateAdded:  now,
		UpdatedAt:  now,
	}
	if err := c.registry.Register(ctx, registered); err != nil {
		// Vectors are committed; the registry is a rebuildable cache.
		log.Printf("ingestion: registry write failed for %q (reconcile will repair): %v", doc.Source, err)
		telemetry.CaptureError(ctx, err)
	}

	return registered, nil
}

// Delete removes every chunk for a source from the vector store, then
// unregisters it. The order is deliberate: the registry row must never
// disappear while vectors may still exist. Returns the number of points
// deleted.
//
// This enumerates the whole collection (see VectorStore.DeleteBySource);
// treat it as a batch operation.
func (c *IngestionCoordinator) Delete(ctx context.Context, source string) (int, error) {
	unlock := c.lockSource(source)
	defer unlock()

	ctx, span := telemetry.StartSpan(ctx, "IngestionCoordinator.Delete", telemetry.SpanAttributes{
		Source:     source,
		Collection: c.collection,
		Operation:  "delete",
	})
	defer span.End()

	deleted, err := c.store.DeleteBySource(ctx, c.collection, source)
	if err != nil {
		span.SetError(err)
		return deleted, err
	}

	if err := c.registry.Unregister(ctx, source); err != nil {
		span.SetError(err)
		return deleted, err
	}

	return deleted, nil
}

// ListDocuments returns the document listing, newest first. On registry
// failure it silently falls back to deriving the listing from the vector
// store, which callers must be able to rely on.
func (c *IngestionCoordinator) ListDocuments(ctx context.Context) ([]*domain.KnowledgeDocument, error) {
	docs, err := c.registry.List(ctx)
	if err == nil {
		return docs, nil
	}

	log.Printf("ingestion: registry listing failed, deriving from vector store: %v", err)
	telemetry.CaptureError(ctx, err)

	items, storeErr := c.store.ListItems(ctx, c.collection)
	if storeErr != nil {
		return nil, storeErr
	}
	return documentsFromItems(items), nil
}

// Reconcile rebuilds the metadata registry from the vector store's
// authoritative contents: every distinct source is (re)registered with its
// live chunk count. Used to populate a fresh registry or to repair drift.
// Returns the number of sources registered.
func (c *IngestionCoordinator) Reconcile(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionCoordinator.Reconcile", telemetry.SpanAttributes{
		Collection: c.collection,
		Operation:  "reconcile",
	})
	defer span.End()

	items, err := c.store.ListItems(ctx, c.collection)
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	docs := documentsFromItems(items)
	for _, doc := range docs {
		if err := c.registry.Register(ctx, doc); err != nil {
			span.SetError(err)
			return 0, err
		}
	}
	return len(docs), nil
}

// CheckDrift compares registry chunk counts against live vector-store
// counts and returns one DriftError per disagreeing source. Drift is
// reported, never silently corrected; Reconcile repairs it.
func (c *IngestionCoordinator) CheckDrift(ctx context.Context) ([]*domain.DriftError, error) {
	docs, err := c.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	items, err := c.store.ListItems(ctx, c.collection)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, item := range items {
		counts[item.Metadata.Source]++
	}

	var drift []*domain.DriftError
	for _, doc := range docs {
		if live := counts[doc.Source]; live != doc.ChunkCount {
			drift = append(drift, &domain.DriftError{
				Source:        doc.Source,
				RegistryCount: doc.ChunkCount,
				StoreCount:    live,
			})
		}
		delete(counts, doc.Source)
	}
	// Sources with vectors but no registry row are also drift.
	for source, live := range counts {
		drift = append(drift, &domain.DriftError{
			Source:        source,
			RegistryCount: 0,
			StoreCount:    live,
		})
	}

	sort.Slice(drift, func(i, j int) bool { return drift[i].Source < drift[j].Source })
	return drift, nil
}

// lockSource acquires the per-source mutex, creating it on first use.
func (c *IngestionCoordinator) lockSource(source string) func() {
	v, _ := c.locks.LoadOrStore(source, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// documentsFromItems groups vector-store items by source into document
// rows, newest first.
func documentsFromItems(items []domain.KnowledgeItem) []*domain.KnowledgeDocument {
	bySource := make(map[string]*domain.KnowledgeDocument)
	for _, item := range items {
		md := item.Metadata
		doc, ok := bySource[md.Source]
		if !ok {
			doc = &domain.KnowledgeDocument{
				Source: md.Source,
				Title:  md.Filename,
				Type:   md.Type,
			}
			if added, err := time.Parse(time.RFC3339, md.DateAdded); err == nil {
				doc.DateAdded = added
				doc.UpdatedAt = added
			}
			bySource[md.Source] = doc
		}
		doc.ChunkCount++
	}

	docs := make([]*domain.KnowledgeDocument, 0, len(bySource))
	for _, doc := range bySource {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].DateAdded.Equal(docs[j].DateAdded) {
			return docs[i].DateAdded.After(docs[j].DateAdded)
		}
		return docs[i].Source > docs[j].Source
	})
	return docs
}
