// Package schema keeps the append-only column list of each table.
package schema

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/FormSink/internal/model"
)

// Store persists table column lists. AppendColumns must add cols after the
// existing columns in the given order.
type Store interface {
	Columns(ctx context.Context, table string) ([]model.Column, error)
	AppendColumns(ctx context.Context, table string, cols []model.Column) error
}

// Manager resolves a table schema against the columns a submission declares.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger.Named("schema")}
}

// Resolve appends the declared columns missing from table, in declaration
// order, with a single store call and returns the full column list. Columns
// that already exist keep their recorded kind.
func (m *Manager) Resolve(ctx context.Context, table string, declared []model.Column) ([]model.Column, error) {
	current, err := m.store.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	missing := Missing(current, declared)
	if len(missing) == 0 {
		return current, nil
	}
	if err := m.store.AppendColumns(ctx, table, missing); err != nil {
		return nil, fmt.Errorf("append columns to %s: %w", table, err)
	}
	m.logger.Info("schema extended",
		zap.String("table", table),
		zap.Strings("columns", model.ColumnNames(missing)))
	// Re-read: a concurrent caller may have extended the table first.
	cols, err := m.store.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	return cols, nil
}

// Missing returns the entries of declared whose names are not in current,
// dropping repeated declarations.
func Missing(current, declared []model.Column) []model.Column {
	seen := make(map[string]bool, len(current)+len(declared))
	for _, c := range current {
		seen[c.Name] = true
	}
	var out []model.Column
	for _, c := range declared {
		if c.Name == "" || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out
}
