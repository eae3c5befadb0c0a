package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intraline/kbcore/internal/domain"
)

// stubClient returns canned vectors in input order.
type stubClient struct {
	dimensions int
	calls      atomic.Int32
}

func (s *stubClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, s.dimensions)
		v[0] = float32(i + 1) // distinct, non-normalized
		v[1] = 3
		vectors[i] = v
	}
	return vectors, nil
}

func (s *stubClient) Dimensions() int { return s.dimensions }

func flakyFactory(failures int, client Client) (ClientFactory, *atomic.Int32) {
	var attempts atomic.Int32
	return func(ctx context.Context) (Client, error) {
		n := attempts.Add(1)
		if int(n) <= failures {
			return nil, errors.New("model download failed")
		}
		return client, nil
	}, &attempts
}

func fastOpts() Options {
	return Options{MaxAttempts: 3, BackoffBase: time.Millisecond}
}

func TestEmbedLazyInitRetriesThenSucceeds(t *testing.T) {
	client := &stubClient{dimensions: 4}
	factory, attempts := flakyFactory(2, client)
	gen := NewGenerator(factory, 4, fastOpts())

	assert.Equal(t, StateUninitialized, gen.State())

	v, err := gen.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, StateReady, gen.State())
	assert.Equal(t, int32(3), attempts.Load())

	// Subsequent calls take no further initialization attempts.
	_, err = gen.Embed(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestEmbedAllAttemptsFail(t *testing.T) {
	factory, attempts := flakyFactory(100, nil)
	gen := NewGenerator(factory, 4, fastOpts())

	_, err := gen.Embed(context.Background(), "hello")
	require.Error(t, err)

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeModelUnavailable, derr.Code)
	assert.Equal(t, int32(3), attempts.Load())

	// Generator remains Uninitialized so the next call retries from scratch.
	assert.Equal(t, StateUninitialized, gen.State())
	_, err = gen.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(6), attempts.Load())
}

func TestConcurrentFirstCallsShareOneInit(t *testing.T) {
	client := &stubClient{dimensions: 4}

	var attempts atomic.Int32
	factory := func(ctx context.Context) (Client, error) {
		attempts.Add(1)
		time.Sleep(10 * time.Millisecond) // hold the init open so callers pile up
		return client, nil
	}
	gen := NewGenerator(factory, 4, fastOpts())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gen.Embed(context.Background(), "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), attempts.Load())
}

func TestEmbedBatchPreservesOrderAndNormalizes(t *testing.T) {
	client := &stubClient{dimensions: 4}
	factory, _ := flakyFactory(0, client)
	gen := NewGenerator(factory, 4, fastOpts())

	vectors, err := gen.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for i, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "vector %d should be unit length", i)
	}

	// Order correspondence: the stub encodes the input position.
	assert.Less(t, vectors[0][0], vectors[1][0])
	assert.Less(t, vectors[1][0], vectors[2][0])
}

func TestEmbedBatchDimensionMismatch(t *testing.T) {
	client := &stubClient{dimensions: 8}
	factory, _ := flakyFactory(0, client)
	gen := NewGenerator(factory, 4, fastOpts())

	_, err := gen.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	factory, attempts := flakyFactory(0, &stubClient{dimensions: 4})
	gen := NewGenerator(factory, 4, fastOpts())

	vectors, err := gen.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, int32(0), attempts.Load(), "empty batch must not trigger initialization")
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, Normalize(zero))

	unit := Normalize([]float32{5, 0, 0})
	assert.InDelta(t, 1.0, float64(unit[0]), 1e-6)
	assert.True(t, math.Abs(float64(unit[1])) < 1e-9)
}
