//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intraline/kbcore/internal/api/handlers"
	"github.com/intraline/kbcore/internal/qdrant"
	"github.com/intraline/kbcore/internal/registry"
	"github.com/intraline/kbcore/internal/server"
	"github.com/intraline/kbcore/internal/service"
	"github.com/intraline/kbcore/internal/testutil"
)

const (
	e2eCollection = "knowledge"
	e2eVectorSize = 8
)

// E2EEnv wires the full pipeline against a real Postgres container and an
// in-memory vector store speaking the Qdrant REST dialect.
type E2EEnv struct {
	Server      *httptest.Server
	Registry    *registry.Repository
	Coordinator *service.IngestionCoordinator

	vectorStore *fakeVectorStore
	cleanups    []func()
}

// SetupE2EEnv boots the environment. Fails the test if Docker is absent.
func SetupE2EEnv(t *testing.T) *E2EEnv {
	t.Helper()
	ctx := context.Background()

	env := &E2EEnv{}

	pgContainer := testutil.NewPostgresContainer(ctx, t)
	env.cleanups = append(env.cleanups, func() { pgContainer.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pgContainer, "../../migrations")
	env.cleanups = append(env.cleanups, pool.Close)

	env.vectorStore = newFakeVectorStore()
	storeSrv := httptest.NewServer(env.vectorStore)
	env.cleanups = append(env.cleanups, storeSrv.Close)

	store := qdrant.NewClient(qdrant.Config{
		URL:        storeSrv.URL,
		VectorSize: e2eVectorSize,
	})

	env.Registry = registry.NewRepository(pool)
	env.Coordinator = service.NewIngestionCoordinator(store, env.Registry, hashEmbedder{}, e2eCollection)
	retrieval := service.NewRetrievalService(store, hashEmbedder{}, e2eCollection)

	require.NoError(t, env.Coordinator.EnsureReady(ctx))

	router := server.NewRouter(server.RouterConfig{
		DocumentsHandler: handlers.NewDocumentsHandler(env.Coordinator, env.Registry),
		SearchHandler:    handlers.NewSearchHandler(retrieval),
		AdminHandler:     handlers.NewAdminHandler(env.Coordinator),
	})
	env.Server = httptest.NewServer(router)
	env.cleanups = append(env.cleanups, env.Server.Close)

	return env
}

// Cleanup tears everything down in reverse order.
func (e *E2EEnv) Cleanup() {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
}

// APIResponse is the envelope every endpoint uses.
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (e *E2EEnv) do(method, path string, body interface{}) (*APIResponse, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.Server.URL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, resp.StatusCode, err
	}
	return &out, resp.StatusCode, nil
}

func (e *E2EEnv) Post(path string, body interface{}) (*APIResponse, int, error) {
	return e.do(http.MethodPost, path, body)
}

func (e *E2EEnv) Get(path string) (*APIResponse, int, error) {
	return e.do(http.MethodGet, path, nil)
}

func (e *E2EEnv) Delete(path string) (*APIResponse, int, error) {
	return e.do(http.MethodDelete, path, nil)
}

// hashEmbedder derives a deterministic unit vector from the text so
// identical text always lands on the same point in embedding space.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, e2eVectorSize)
	var norm float64
	for i := range vec {
		bits := binary.LittleEndian.Uint32(sum[i*4 : i*4+4])
		vec[i] = float32(bits%2000)/1000 - 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (h hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// fakeVectorStore is a minimal in-memory Qdrant REST stand-in.
type fakeVectorStore struct {
	mu          sync.Mutex
	collections map[string]int
	points      map[string]fakePoint
}

type fakePoint struct {
	vector  []float32
	payload map[string]interface{}
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		collections: make(map[string]int),
		points:      make(map[string]fakePoint),
	}
}

func (f *fakeVectorStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections":
		names := make([]map[string]string, 0, len(f.collections))
		for name := range f.collections {
			names = append(names, map[string]string{"name": name})
		}
		writeJSON(w, map[string]interface{}{
			"result": map[string]interface{}{"collections": names},
		})

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/collections/") && !strings.Contains(r.URL.Path, "/points"):
		name := strings.TrimPrefix(r.URL.Path, "/collections/")
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.collections[name] = body.Vectors.Size
		writeJSON(w, map[string]interface{}{"result": true})

	case strings.HasSuffix(r.URL.Path, "/points") && r.Method == http.MethodPut:
		var body struct {
			Points []struct {
				ID      string                 `json:"id"`
				Vector  []float32              `json:"vector"`
				Payload map[string]interface{} `json:"payload"`
			} `json:"points"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p.ID] = fakePoint{vector: p.Vector, payload: p.Payload}
		}
		writeJSON(w, map[string]interface{}{"result": map[string]string{"status": "completed"}})

	case strings.HasSuffix(r.URL.Path, "/points/search"):
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		type scored struct {
			id    string
			score float64
			point fakePoint
		}
		var all []scored
		for id, p := range f.points {
			all = append(all, scored{id: id, score: cosine(body.Vector, p.vector), point: p})
		}
		for i := 0; i < len(all); i++ {
			for j := i + 1; j < len(all); j++ {
				if all[j].score > all[i].score {
					all[i], all[j] = all[j], all[i]
				}
			}
		}
		if body.Limit > 0 && len(all) > body.Limit {
			all = all[:body.Limit]
		}
		results := make([]map[string]interface{}, len(all))
		for i, s := range all {
			results[i] = map[string]interface{}{
				"id":      s.id,
				"score":   s.score,
				"payload": s.point.payload,
			}
		}
		writeJSON(w, map[string]interface{}{"result": results})

	case strings.HasSuffix(r.URL.Path, "/points/scroll"):
		ids := make([]string, 0, len(f.points))
		for id := range f.points {
			ids = append(ids, id)
		}
		points := make([]map[string]interface{}, len(ids))
		for i, id := range ids {
			points[i] = map[string]interface{}{
				"id":      id,
				"payload": f.points[id].payload,
			}
		}
		writeJSON(w, map[string]interface{}{
			"result": map[string]interface{}{
				"points":           points,
				"next_page_offset": nil,
			},
		})

	case strings.HasSuffix(r.URL.Path, "/points/delete"):
		var body struct {
			Points []string `json:"points"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.Points {
			delete(f.points, id)
		}
		writeJSON(w, map[string]interface{}{"result": map[string]string{"status": "completed"}})

	default:
		http.Error(w, fmt.Sprintf("unexpected request: %s %s", r.Method, r.URL.Path), http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		if i < len(b) {
			dot += float64(a[i]) * float64(b[i])
		}
	}
	return dot
}
