package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingAPI is a mock implementation of EmbeddingAPI
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func vectorOf(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestGenerateEmbeddingsPreservesOrder(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := NewClientWithAPI(api, 4)

	api.On("CreateEmbeddings", mock.Anything, []string{"alpha", "beta"}).
		Return([][]float32{vectorOf(4, 1), vectorOf(4, 2)}, nil)

	vectors, err := client.GenerateEmbeddings(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
	api.AssertExpectations(t)
}

func TestGenerateEmbeddingsEmptyInput(t *testing.T) {
	client := NewClientWithAPI(new(MockEmbeddingAPI), 4)

	_, err := client.GenerateEmbeddings(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = client.GenerateEmbeddings(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestGenerateEmbeddingsWrongDimensions(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := NewClientWithAPI(api, 8)

	api.On("CreateEmbeddings", mock.Anything, []string{"alpha"}).
		Return([][]float32{vectorOf(4, 1)}, nil)

	_, err := client.GenerateEmbeddings(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 8")
}

func TestGenerateEmbeddingsAPIError(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := NewClientWithAPI(api, 4)

	apiErr := errors.New("rate limited")
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(nil, apiErr)

	_, err := client.GenerateEmbedding(context.Background(), "alpha")
	assert.ErrorIs(t, err, apiErr)
}
