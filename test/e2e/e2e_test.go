//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_IngestAndSearch covers the full pipeline: ingest, list, search,
// re-ingest, delete.
func TestE2E_IngestAndSearch(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("health", func(t *testing.T) {
		resp, status, err := env.Get("/health")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)

		var health map[string]string
		require.NoError(t, json.Unmarshal(resp.Data, &health))
		assert.Equal(t, "ok", health["status"])
	})

	t.Run("ingest a document", func(t *testing.T) {
		resp, status, err := env.Post("/documents", map[string]string{
			"content":  "The quick brown fox jumps over the lazy dog.",
			"source":   "notes/fox.md",
			"filename": "fox.md",
			"type":     "md",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, status)

		var doc struct {
			Source     string `json:"source"`
			ChunkCount int    `json:"chunk_count"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &doc))
		assert.Equal(t, "notes/fox.md", doc.Source)
		assert.Equal(t, 1, doc.ChunkCount)
	})

	t.Run("document appears in listing", func(t *testing.T) {
		resp, status, err := env.Get("/documents")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var listing struct {
			Items []struct {
				Source     string `json:"source"`
				ChunkCount int    `json:"chunk_count"`
			} `json:"items"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &listing))
		require.Len(t, listing.Items, 1)
		assert.Equal(t, "notes/fox.md", listing.Items[0].Source)
	})

	t.Run("search finds the document", func(t *testing.T) {
		resp, status, err := env.Post("/search", map[string]interface{}{
			"query": "The quick brown fox jumps over the lazy dog.",
			"limit": 3,
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var search struct {
			Results []struct {
				Content string  `json:"content"`
				Score   float64 `json:"score"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &search))
		require.NotEmpty(t, search.Results)
		assert.Equal(t, "The quick brown fox jumps over the lazy dog.", search.Results[0].Content)
		assert.InDelta(t, 1.0, search.Results[0].Score, 1e-3)
	})

	t.Run("re-ingest replaces, never duplicates", func(t *testing.T) {
		_, status, err := env.Post("/documents", map[string]string{
			"content":  "A completely rewritten fox document.",
			"source":   "notes/fox.md",
			"filename": "fox.md",
			"type":     "md",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, status)

		resp, _, err := env.Post("/search", map[string]interface{}{
			"query": "The quick brown fox jumps over the lazy dog.",
			"limit": 10,
		})
		require.NoError(t, err)

		var search struct {
			Results []struct {
				Content string `json:"content"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &search))
		for _, res := range search.Results {
			assert.NotEqual(t, "The quick brown fox jumps over the lazy dog.", res.Content,
				"stale chunk survived re-ingest")
		}
	})

	t.Run("delete removes document and listing entry", func(t *testing.T) {
		resp, status, err := env.Delete("/documents?source=notes%2Ffox.md")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)

		var del struct {
			Deleted int `json:"deleted"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &del))
		assert.Equal(t, 1, del.Deleted)

		listResp, _, err := env.Get("/documents")
		require.NoError(t, err)
		var listing struct {
			Items []json.RawMessage `json:"items"`
		}
		require.NoError(t, json.Unmarshal(listResp.Data, &listing))
		assert.Empty(t, listing.Items)
	})
}

// TestE2E_Reconcile verifies the registry can be rebuilt from the vector
// store after it loses rows.
func TestE2E_Reconcile(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	ctx := context.Background()

	_, status, err := env.Post("/documents", map[string]string{
		"content": "Reconciliation test content.",
		"source":  "notes/recon.txt",
		"type":    "txt",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)

	// Simulate registry loss: drop the row while the vectors stay put.
	require.NoError(t, env.Registry.Unregister(ctx, "notes/recon.txt"))

	driftResp, _, err := env.Get("/drift")
	require.NoError(t, err)
	var drift struct {
		Drift []struct {
			Source     string `json:"source"`
			StoreCount int    `json:"store_count"`
		} `json:"drift"`
	}
	require.NoError(t, json.Unmarshal(driftResp.Data, &drift))
	require.Len(t, drift.Drift, 1)
	assert.Equal(t, "notes/recon.txt", drift.Drift[0].Source)

	reconResp, status, err := env.Post("/reconcile", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	var recon struct {
		Registered int `json:"registered"`
	}
	require.NoError(t, json.Unmarshal(reconResp.Data, &recon))
	assert.Equal(t, 1, recon.Registered)

	listResp, _, err := env.Get("/documents")
	require.NoError(t, err)
	var listing struct {
		Items []struct {
			Source string `json:"source"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(listResp.Data, &listing))
	require.Len(t, listing.Items, 1)
	assert.Equal(t, "notes/recon.txt", listing.Items[0].Source)
}
