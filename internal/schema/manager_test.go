package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FormSink/internal/model"
	"github.com/dharsanguruparan/FormSink/internal/storage"
)

type countingStore struct {
	*storage.MemoryStore
	appends int
}

func (c *countingStore) AppendColumns(ctx context.Context, table string, cols []model.Column) error {
	c.appends++
	return c.MemoryStore.AppendColumns(ctx, table, cols)
}

func TestResolveNewTable(t *testing.T) {
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	m := NewManager(store, nil)

	declared := []model.Column{{Name: "Name"}, {Name: "CV", Kind: model.KindFile}, {Name: "Name"}}
	cols, err := m.Resolve(context.Background(), "acme#jobs", declared)
	require.NoError(t, err)

	want := []model.Column{{Name: "Name"}, {Name: "CV", Kind: model.KindFile}}
	if diff := cmp.Diff(want, cols); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, store.appends)
}

func TestResolveIsIdempotent(t *testing.T) {
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	m := NewManager(store, nil)
	ctx := context.Background()
	declared := []model.Column{{Name: "A"}, {Name: "B"}}

	first, err := m.Resolve(ctx, "t", declared)
	require.NoError(t, err)
	second, err := m.Resolve(ctx, "t", declared)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.appends)
}

func TestResolveAppendsAtEndAndKeepsKinds(t *testing.T) {
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	m := NewManager(store, nil)
	ctx := context.Background()

	_, err := m.Resolve(ctx, "t", []model.Column{{Name: "A"}, {Name: "Photo", Kind: model.KindFile}})
	require.NoError(t, err)

	cols, err := m.Resolve(ctx, "t", []model.Column{{Name: "C"}, {Name: "Photo"}, {Name: "B"}})
	require.NoError(t, err)

	want := []model.Column{{Name: "A"}, {Name: "Photo", Kind: model.KindFile}, {Name: "C"}, {Name: "B"}}
	if diff := cmp.Diff(want, cols); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	stored, err := store.Columns(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, want, stored)
}

type brokenStore struct{ storage.MemoryStore }

func (b *brokenStore) Columns(context.Context, string) ([]model.Column, error) {
	return nil, errors.New("store unavailable")
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	m := NewManager(&brokenStore{}, nil)
	_, err := m.Resolve(context.Background(), "t", []model.Column{{Name: "A"}})
	assert.ErrorContains(t, err, "store unavailable")
}
