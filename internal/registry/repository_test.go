//go:build integration

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intraline/kbcore/internal/domain"
	"github.com/intraline/kbcore/internal/pagination"
	"github.com/intraline/kbcore/internal/testutil"
)

func setupRepo(t *testing.T) (*Repository, *pgxpool.Pool) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)

	return NewRepository(pool), pool
}

func docFixture(source string, chunkCount int, addedAt time.Time) *domain.KnowledgeDocument {
	return &domain.KnowledgeDocument{
		Source:     source,
		Title:      source,
		Type:       domain.SourceTypeMarkdown,
		ChunkCount: chunkCount,
		DateAdded:  addedAt,
	}
}

func TestRegisterUpsertsOnSource(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	added := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Register(ctx, docFixture("/notes/a.md", 3, added)))

	// Re-ingest with a different chunk count: one row, updated in place.
	require.NoError(t, repo.Register(ctx, docFixture("/notes/a.md", 7, added)))

	doc, err := repo.GetBySource(ctx, "/notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, 7, doc.ChunkCount)
	assert.Equal(t, added, doc.DateAdded.UTC().Truncate(time.Microsecond), "date_added preserved on update")

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, docFixture("/notes/b.md", 2, time.Now().UTC())))
	require.NoError(t, repo.Unregister(ctx, "/notes/b.md"))
	require.NoError(t, repo.Unregister(ctx, "/notes/b.md"), "deleting a missing source is not an error")

	_, err := repo.GetBySource(ctx, "/notes/b.md")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestListOrdersNewestFirst(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Register(ctx, docFixture("/old.md", 1, base)))
	require.NoError(t, repo.Register(ctx, docFixture("/mid.md", 1, base.Add(10*time.Minute))))
	require.NoError(t, repo.Register(ctx, docFixture("/new.md", 1, base.Add(20*time.Minute))))

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "/new.md", docs[0].Source)
	assert.Equal(t, "/mid.md", docs[1].Source)
	assert.Equal(t, "/old.md", docs[2].Source)
}

func TestListWithCursorPaginates(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	sources := []string{"/a.md", "/b.md", "/c.md", "/d.md", "/e.md"}
	for i, s := range sources {
		require.NoError(t, repo.Register(ctx, docFixture(s, 1, base.Add(time.Duration(i)*time.Minute))))
	}

	seen := make(map[string]bool)
	var cursor *pagination.Cursor
	pages := 0
	for {
		page, err := repo.ListWithCursor(ctx, cursor, 2)
		require.NoError(t, err)
		pages++
		for _, doc := range page.Items {
			assert.False(t, seen[doc.Source], "source %s listed twice", doc.Source)
			seen[doc.Source] = true
		}
		if !page.HasMore {
			break
		}
		cursor, err = pagination.DecodeCursor(page.NextCursor)
		require.NoError(t, err)
	}

	assert.Len(t, seen, len(sources))
	assert.Equal(t, 3, pages)
}

func TestUpdateChunkCount(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, docFixture("/notes/c.md", 4, time.Now().UTC())))
	require.NoError(t, repo.UpdateChunkCount(ctx, "/notes/c.md", 9))

	doc, err := repo.GetBySource(ctx, "/notes/c.md")
	require.NoError(t, err)
	assert.Equal(t, 9, doc.ChunkCount)

	err = repo.UpdateChunkCount(ctx, "/missing.md", 1)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
