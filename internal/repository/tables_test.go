package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FormSink/internal/database"
	"github.com/dharsanguruparan/FormSink/internal/model"
)

// newTestRepo connects to FORMSINK_TEST_DATABASE_URL or skips.
func newTestRepo(t *testing.T) *TableRepository {
	t.Helper()
	dsn := os.Getenv("FORMSINK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FORMSINK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))
	return NewTableRepository(pool)
}

func TestTableRepositoryColumns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	table := "test#" + uuid.NewString()

	cols, err := repo.Columns(ctx, table)
	require.NoError(t, err)
	assert.Empty(t, cols)

	require.NoError(t, repo.AppendColumns(ctx, table, []model.Column{{Name: "Name"}, {Name: "CV", Kind: model.KindFile}}))
	require.NoError(t, repo.AppendColumns(ctx, table, []model.Column{{Name: "CV"}, {Name: "Phone"}}))

	cols, err = repo.Columns(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, []model.Column{{Name: "Name"}, {Name: "CV", Kind: model.KindFile}, {Name: "Phone"}}, cols)
}

func TestTableRepositoryRowsArePadded(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	table := "test#" + uuid.NewString()

	require.NoError(t, repo.AppendColumns(ctx, table, []model.Column{{Name: "A"}}))
	require.NoError(t, repo.AppendRow(ctx, table, []string{"1"}))
	require.NoError(t, repo.AppendColumns(ctx, table, []model.Column{{Name: "B"}}))
	require.NoError(t, repo.AppendRow(ctx, table, []string{"2", "x"}))

	rows, err := repo.Rows(ctx, table, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2", "x"}, rows[0].Cells)
	assert.Equal(t, []string{"1", ""}, rows[1].Cells)
}
