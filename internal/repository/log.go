package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LogRepository is the per-table audit trail.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository constructs a LogRepository.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Append records message against table.
func (r *LogRepository) Append(ctx context.Context, table, message string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO submission_log (table_name, message, created_at) VALUES ($1,$2,$3)
	`, table, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}
