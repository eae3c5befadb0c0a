package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedEmbedder wraps an Embedder with a Redis vector cache so re-ingesting
// unchanged content skips redundant model calls. Cache failures are never
// fatal; they fall through to the inner embedder.
type CachedEmbedder struct {
	inner     Embedder
	rdb       redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewCachedEmbedder creates a cache over inner. keyPrefix should identify
// the model so a model change never serves stale vectors.
func NewCachedEmbedder(inner Embedder, rdb redis.Cmdable, keyPrefix string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner:     inner,
		rdb:       rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("embedding cache: mget failed, bypassing cache: %v", err)
		return c.inner.EmbedBatch(ctx, texts)
	}

	dim := c.inner.Dimensions()
	for i, raw := range cached {
		s, ok := raw.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		v, decodeErr := decodeVector([]byte(s), dim)
		if decodeErr != nil {
			missIdx = append(missIdx, i)
			continue
		}
		vectors[i] = v
	}

	if len(missIdx) == 0 {
		return vectors, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		vectors[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("embedding cache: write-back failed: %v", err)
	}

	return vectors, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.keyPrefix + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, errBadCacheEntry
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

var errBadCacheEntry = errors.New("malformed cache entry")
