// Package cli wires the knowledge pipeline together for the kbcored daemon
// and its direct commands.
package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	openaiapi "github.com/sashabaranov/go-openai"
	"github.com/spf13/pflag"

	"github.com/intraline/kbcore/internal/chunker"
	"github.com/intraline/kbcore/internal/config"
	"github.com/intraline/kbcore/internal/database"
	"github.com/intraline/kbcore/internal/embedding"
	"github.com/intraline/kbcore/internal/openai"
	"github.com/intraline/kbcore/internal/qdrant"
	"github.com/intraline/kbcore/internal/registry"
	"github.com/intraline/kbcore/internal/service"
)

const embeddingCacheTTL = 24 * time.Hour

// stack is the assembled pipeline shared by serve and the direct commands.
type stack struct {
	cfg         *config.Config
	pool        *pgxpool.Pool
	store       *qdrant.Client
	registry    *registry.Repository
	coordinator *service.IngestionCoordinator
	retrieval   *service.RetrievalService
}

// buildStack constructs the full pipeline from config. The returned cleanup
// closes the pool and the Redis connection if one was opened.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, func(), error) {
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := qdrant.NewClient(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		VectorSize: cfg.EmbeddingDimensions,
	})

	generator := embedding.NewGenerator(modelFactory(cfg), cfg.EmbeddingDimensions, embedding.Options{})

	var embedder embedding.Embedder = generator
	var rdb *redis.Client
	if cfg.HasRedis() {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		embedder = embedding.NewCachedEmbedder(generator, rdb, "kbcore:"+embeddingModel(cfg), embeddingCacheTTL)
		log.Println("embedding cache enabled")
	}

	repo := registry.NewRepository(pool)
	coordinator := service.NewIngestionCoordinatorWithOptions(
		store, repo, embedder, cfg.Collection,
		chunker.Config{
			TargetSize: cfg.ChunkTargetSize,
			Overlap:    cfg.ChunkOverlap,
			MinSize:    cfg.ChunkMinSize,
		},
		nil,
	)
	retrieval := service.NewRetrievalService(store, embedder, cfg.Collection)

	cleanup := func() {
		pool.Close()
		if rdb != nil {
			rdb.Close()
		}
	}

	return &stack{
		cfg:         cfg,
		pool:        pool,
		store:       store,
		registry:    repo,
		coordinator: coordinator,
		retrieval:   retrieval,
	}, cleanup, nil
}

// modelFactory acquires the embedding backend: construct the client, then
// probe it so a bad key or unreachable endpoint fails initialization and
// gets retried by the generator instead of surfacing mid-ingest.
func modelFactory(cfg *config.Config) embedding.ClientFactory {
	return func(ctx context.Context) (embedding.Client, error) {
		if !cfg.HasOpenAI() {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			EmbeddingModel:      openaiapi.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
		})
		if _, err := client.GenerateEmbeddings(ctx, []string{"ping"}); err != nil {
			return nil, fmt.Errorf("embedding model probe failed: %w", err)
		}
		return client, nil
	}
}

func embeddingModel(cfg *config.Config) string {
	if cfg.EmbeddingModel != "" {
		return cfg.EmbeddingModel
	}
	return string(openai.DefaultEmbeddingModel)
}

// chunkFlags holds per-command chunking overrides; zero means "use config".
type chunkFlags struct {
	targetSize int
	overlap    int
	minSize    int
}

func (f *chunkFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.targetSize, "chunk-size", 0, "Target chunk size in characters (overrides config)")
	fs.IntVar(&f.overlap, "chunk-overlap", 0, "Overlap between consecutive chunks (overrides config)")
	fs.IntVar(&f.minSize, "chunk-min-size", 0, "Smallest chunk worth keeping (overrides config)")
}

func (f *chunkFlags) apply(cfg *config.Config) {
	if f.targetSize > 0 {
		cfg.ChunkTargetSize = f.targetSize
	}
	if f.overlap > 0 {
		cfg.ChunkOverlap = f.overlap
	}
	if f.minSize > 0 {
		cfg.ChunkMinSize = f.minSize
	}
}
