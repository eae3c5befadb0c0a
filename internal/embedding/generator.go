// Package embedding turns text into fixed-length, L2-normalized dense
// vectors using a lazily initialized backing model.
package embedding

import (
	"context"
	"log"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/intraline/kbcore/internal/domain"
)

// State tracks model initialization. Ready is terminal for the process
// lifetime; a failed initialization falls back to Uninitialized so a later
// call can retry from scratch.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

// Client is the backing embedding model. Acquisition (construction plus a
// verification probe) happens inside the ClientFactory so the generator can
// retry the whole thing.
type Client interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// ClientFactory acquires the backing model, verifying it is usable before
// returning.
type ClientFactory func(ctx context.Context) (Client, error)

// Embedder is the consumer-facing contract: Embed and an order-preserving
// batch variant.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
)

// Generator lazily initializes its model on first use. Concurrent first
// calls share a single in-flight initialization; once Ready it never
// re-initializes.
type Generator struct {
	factory     ClientFactory
	dimensions  int
	maxAttempts int
	backoffBase time.Duration

	state  atomic.Int32
	client atomic.Pointer[clientBox]
	init   singleflight.Group
}

// clientBox exists because atomic.Pointer needs a concrete type.
type clientBox struct {
	client Client
}

// Options tune generator initialization behavior.
type Options struct {
	// MaxAttempts bounds model acquisition retries per initialization.
	MaxAttempts int
	// BackoffBase is the first retry delay; subsequent delays grow
	// linearly (base, 2*base, ...).
	BackoffBase time.Duration
}

// NewGenerator creates a generator over the given model factory.
// dimensions is the vector size the collection schema is provisioned with.
func NewGenerator(factory ClientFactory, dimensions int, opts Options) *Generator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	return &Generator{
		factory:     factory,
		dimensions:  dimensions,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
	}
}

// State reports the current initialization state.
func (g *Generator) State() State {
	return State(g.state.Load())
}

// Dimensions returns the configured embedding size.
func (g *Generator) Dimensions() int {
	return g.dimensions
}

// Embed generates a normalized embedding for a single text.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates normalized embeddings for texts, one vector per
// input in input order.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	client, err := g.ready(ctx)
	if err != nil {
		return nil, err
	}

	vectors, err := client.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeModelUnavailable, "embedding generation failed", err)
	}

	for i, v := range vectors {
		if len(v) != g.dimensions {
			return nil, domain.ErrSchemaMismatch
		}
		vectors[i] = Normalize(v)
	}
	return vectors, nil
}

// ready returns the initialized client, performing lazy initialization on
// the first call. Concurrent callers await the same in-flight attempt.
func (g *Generator) ready(ctx context.Context) (Client, error) {
	if box := g.client.Load(); box != nil {
		return box.client, nil
	}

	result, err, _ := g.init.Do("init", func() (interface{}, error) {
		// A racing call may have finished while we queued.
		if box := g.client.Load(); box != nil {
			return box.client, nil
		}
		return g.acquire(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(Client), nil
}

// acquire attempts model acquisition up to maxAttempts times with linearly
// increasing backoff. On total failure the generator returns to
// Uninitialized so a later call retries from scratch.
func (g *Generator) acquire(ctx context.Context) (Client, error) {
	g.state.Store(int32(StateLoading))

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		client, err := g.factory(ctx)
		if err == nil {
			g.client.Store(&clientBox{client: client})
			g.state.Store(int32(StateReady))
			return client, nil
		}
		lastErr = err
		log.Printf("embedding: model load attempt %d/%d failed: %v", attempt, g.maxAttempts, err)

		if attempt == g.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			g.state.Store(int32(StateUninitialized))
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * g.backoffBase):
		}
	}

	g.state.Store(int32(StateUninitialized))
	return nil, domain.NewDomainErrorWithCause(domain.ErrCodeModelUnavailable, "embedding model failed to initialize", lastErr)
}

// Normalize scales v to unit L2 length. Zero vectors pass through unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
