package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FormSink/internal/model"
)

func TestMemoryStoreColumns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	cols, err := s.Columns(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, cols)

	require.NoError(t, s.AppendColumns(ctx, "t", []model.Column{{Name: "a"}, {Name: "b", Kind: model.KindFile}}))
	require.NoError(t, s.AppendColumns(ctx, "t", []model.Column{{Name: "b"}, {Name: "c"}}))

	cols, err = s.Columns(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []model.Column{{Name: "a"}, {Name: "b", Kind: model.KindFile}, {Name: "c"}}, cols)
}

func TestMemoryStoreRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Rows("t")
	assert.ErrorIs(t, err, ErrNotFound)

	cells := []string{"x", "y"}
	require.NoError(t, s.AppendRow(ctx, "t", cells))
	cells[0] = "mutated"

	rows, err := s.Rows("t")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x", "y"}}, rows)
}

func TestMemoryCounterExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCounterWithClock(func() time.Time { return now })

	n, _ := c.Incr(ctx, "k", time.Hour)
	assert.EqualValues(t, 1, n)
	n, _ = c.Incr(ctx, "k", time.Hour)
	assert.EqualValues(t, 2, n)

	now = now.Add(2 * time.Hour)
	got, _ := c.Get(ctx, "k")
	assert.EqualValues(t, 0, got)
	n, _ = c.Incr(ctx, "k", time.Hour)
	assert.EqualValues(t, 1, n)

	require.NoError(t, c.Delete(ctx, "k"))
	got, _ = c.Get(ctx, "k")
	assert.EqualValues(t, 0, got)
}

func TestMemoryBlobs(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBlobs("https://files.test")
	url, err := b.Store(ctx, "a/b.txt", []byte("hi"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/a/b.txt", url)

	obj, err := b.Get("a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), obj.Data)
	assert.Equal(t, "text/plain", obj.ContentType)

	_, err = b.URL(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLog(t *testing.T) {
	l := NewMemoryLog()
	require.NoError(t, l.Append(context.Background(), "t", "hello"))
	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "t", entries[0].Table)
	assert.Equal(t, "hello", entries[0].Message)
}
