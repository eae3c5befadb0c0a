package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	QdrantURL    string `envconfig:"QDRANT_URL" default:"http://localhost:6333"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`
	Collection   string `envconfig:"COLLECTION" default:"knowledge"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	// Optional embedding cache; empty disables it.
	RedisURL string `envconfig:"REDIS_URL"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	ChunkTargetSize int `envconfig:"CHUNK_TARGET_SIZE" default:"2000"`
	ChunkOverlap    int `envconfig:"CHUNK_OVERLAP" default:"200"`
	ChunkMinSize    int `envconfig:"CHUNK_MIN_SIZE" default:"50"`

	DriftCheckInterval string `envconfig:"DRIFT_CHECK_INTERVAL" default:"10m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("KBCORE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}
