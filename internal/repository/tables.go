package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/FormSink/internal/model"
)

// TableRepository stores form table schemas and rows in Postgres.
type TableRepository struct {
	pool *pgxpool.Pool
}

// NewTableRepository constructs a repository.
func NewTableRepository(pool *pgxpool.Pool) *TableRepository {
	return &TableRepository{pool: pool}
}

// Columns returns the ordered schema of table; empty for an unknown table.
func (r *TableRepository) Columns(ctx context.Context, table string) ([]model.Column, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, kind FROM form_columns WHERE table_name=$1 ORDER BY position
	`, table)
	if err != nil {
		return nil, fmt.Errorf("select columns: %w", err)
	}
	return collectColumns(rows)
}

// AppendColumns adds cols after the current last column. The extension runs
// under a per-table advisory lock so concurrent callers append one after the
// other, and names already present are skipped.
func (r *TableRepository) AppendColumns(ctx context.Context, table string, cols []model.Column) error {
	if len(cols) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "form_columns|"+table); err != nil {
		return fmt.Errorf("lock table %s: %w", table, err)
	}
	var next int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM form_columns WHERE table_name=$1
	`, table).Scan(&next); err != nil {
		return fmt.Errorf("next position: %w", err)
	}
	for _, c := range cols {
		tag, err := tx.Exec(ctx, `
			INSERT INTO form_columns (table_name, position, name, kind)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (table_name, name) DO NOTHING
		`, table, next, c.Name, c.Kind.String())
		if err != nil {
			return fmt.Errorf("insert column %s: %w", c.Name, err)
		}
		if tag.RowsAffected() > 0 {
			next++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit columns: %w", err)
	}
	return nil
}

// AppendRow inserts cells as the next row of table.
func (r *TableRepository) AppendRow(ctx context.Context, table string, cells []string) error {
	data, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("marshal cells: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO form_rows (table_name, cells, created_at) VALUES ($1,$2,$3)
	`, table, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

// Row is a persisted row with its cells aligned to the current schema.
type Row struct {
	ID        int64     `json:"id"`
	Cells     []string  `json:"cells"`
	CreatedAt time.Time `json:"createdAt"`
}

// Rows returns the latest limit rows of table, newest first. Rows written
// before a column was added are padded with empty cells.
func (r *TableRepository) Rows(ctx context.Context, table string, limit int) ([]Row, error) {
	width, err := r.width(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, cells, created_at FROM form_rows WHERE table_name=$1 ORDER BY id DESC LIMIT $2
	`, table, limit)
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var (
			row Row
			raw []byte
		)
		if err := rows.Scan(&row.ID, &raw, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal(raw, &row.Cells); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", row.ID, err)
		}
		for len(row.Cells) < width {
			row.Cells = append(row.Cells, "")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *TableRepository) width(ctx context.Context, table string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM form_columns WHERE table_name=$1`, table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count columns: %w", err)
	}
	return n, nil
}

func collectColumns(rows pgx.Rows) ([]model.Column, error) {
	defer rows.Close()
	var out []model.Column
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, model.Column{Name: name, Kind: model.ParseKind(kind)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return out, nil
}
