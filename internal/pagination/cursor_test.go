package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	added := time.Date(2026, 8, 26, 10, 30, 0, 123456789, time.UTC)
	encoded := EncodeCursor("/notes/a.md", added)
	require.NotEmpty(t, encoded)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "/notes/a.md", decoded.LastSource)
	assert.True(t, decoded.AddedAt.Equal(added))
}

func TestDecodeCursorEmpty(t *testing.T) {
	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeCursorInvalid(t *testing.T) {
	_, err := DecodeCursor("not-base64!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("bm8tc2VwYXJhdG9y") // "no-separator"
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCreateNextCursor(t *testing.T) {
	type row struct {
		source string
		added  time.Time
	}
	now := time.Now().UTC()
	rows := []row{{"/a.md", now}, {"/b.md", now.Add(time.Minute)}}

	getSource := func(r row) string { return r.source }
	getAdded := func(r row) time.Time { return r.added }

	// Full page: more may follow.
	assert.NotEmpty(t, CreateNextCursor(rows, 2, getSource, getAdded))
	// Short page: exhausted.
	assert.Empty(t, CreateNextCursor(rows, 3, getSource, getAdded))
	assert.Empty(t, CreateNextCursor([]row{}, 2, getSource, getAdded))
}
