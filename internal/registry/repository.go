// Package registry persists one summary row per logical document for fast
// listing without scanning the vector store. The registry is a derived,
// rebuildable index: the vector store remains the source of truth.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intraline/kbcore/internal/domain"
	"github.com/intraline/kbcore/internal/pagination"
)

// dbtx abstracts pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles document rows keyed by unique source.
type Repository struct {
	db dbtx
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func NewRepositoryWithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

// DocumentPage is one page of a cursor-paginated listing.
type DocumentPage struct {
	Items      []*domain.KnowledgeDocument
	NextCursor string
	HasMore    bool
}

// Register upserts the row for a source: re-ingesting an existing document
// updates its row rather than duplicating it. The original date_added is
// preserved on update.
func (r *Repository) Register(ctx context.Context, doc *domain.KnowledgeDocument) error {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	dateAdded := doc.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, source, title, type, chunk_count, date_added, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (source) DO UPDATE SET
			title = EXCLUDED.title,
			type = EXCLUDED.type,
			chunk_count = EXCLUDED.chunk_count,
			updated_at = now()`,
		id, doc.Source, doc.Title, doc.Type, doc.ChunkCount, dateAdded,
	)
	if err != nil {
		return domain.StoreUnreachable("metadata registry", err)
	}
	return nil
}

// Unregister deletes the row for a source. Idempotent: deleting a
// non-existent source is not an error.
func (r *Repository) Unregister(ctx context.Context, source string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM documents WHERE source = $1`, source)
	if err != nil {
		return domain.StoreUnreachable("metadata registry", err)
	}
	return nil
}

// GetBySource returns the row for a source.
func (r *Repository) GetBySource(ctx context.Context, source string) (*domain.KnowledgeDocument, error) {
	var doc domain.KnowledgeDocument
	err := r.db.QueryRow(ctx,
		`SELECT id, source, title, type, chunk_count, date_added, updated_at
		 FROM documents WHERE source = $1`,
		source,
	).Scan(&doc.ID, &doc.Source, &doc.Title, &doc.Type, &doc.ChunkCount, &doc.DateAdded, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, domain.StoreUnreachable("metadata registry", err)
	}
	return &doc, nil
}

// List returns all rows ordered by recency, newest first.
func (r *Repository) List(ctx context.Context) ([]*domain.KnowledgeDocument, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source, title, type, chunk_count, date_added, updated_at
		 FROM documents ORDER BY date_added DESC, source DESC`,
	)
	if err != nil {
		return nil, domain.StoreUnreachable("metadata registry", err)
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

// ListWithCursor returns one page of rows, newest first, resuming after the
// cursor position.
func (r *Repository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*DocumentPage, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, source, title, type, chunk_count, date_added, updated_at
			 FROM documents
			 WHERE (date_added, source) < ($1, $2)
			 ORDER BY date_added DESC, source DESC
			 LIMIT $3`,
			cursor.AddedAt, cursor.LastSource, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, source, title, type, chunk_count, date_added, updated_at
			 FROM documents
			 ORDER BY date_added DESC, source DESC
			 LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		return nil, domain.StoreUnreachable("metadata registry", err)
	}
	defer rows.Close()

	items, err := scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}

	nextCursor := pagination.CreateNextCursor(items, limit,
		func(d *domain.KnowledgeDocument) string { return d.Source },
		func(d *domain.KnowledgeDocument) time.Time { return d.DateAdded },
	)

	return &DocumentPage{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// UpdateChunkCount sets the chunk count for a source after a re-sync where
// the count changed without a full unregister/register cycle.
func (r *Repository) UpdateChunkCount(ctx context.Context, source string, count int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET chunk_count = $2, updated_at = now() WHERE source = $1`,
		source, count,
	)
	if err != nil {
		return domain.StoreUnreachable("metadata registry", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.KnowledgeDocument, error) {
	var docs []*domain.KnowledgeDocument
	for rows.Next() {
		var doc domain.KnowledgeDocument
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.Title, &doc.Type, &doc.ChunkCount, &doc.DateAdded, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreUnreachable("metadata registry", err)
	}
	return docs, nil
}
