// Package rows builds and appends the row persisted for a submission.
package rows

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dharsanguruparan/FormSink/internal/files"
	"github.com/dharsanguruparan/FormSink/internal/model"
)

// TextGuard prefixes values that a spreadsheet-style reader would otherwise
// turn into numbers.
const TextGuard = "'"

var signedNumber = regexp.MustCompile(`^\+\d+$`)

// Store appends rows to a table.
type Store interface {
	AppendRow(ctx context.Context, table string, cells []string) error
}

// Ingester stores inline attachments.
type Ingester interface {
	Ingest(ctx context.Context, target files.Target, encoded string) files.Attachment
}

// Builder maps submission fields onto schema columns.
type Builder struct {
	store    Store
	ingester Ingester
}

// NewBuilder constructs a Builder.
func NewBuilder(store Store, ingester Ingester) *Builder {
	return &Builder{store: store, ingester: ingester}
}

// Build returns one cell per column of schema. Multi-valued fields keep every
// value; a column with no posted value gets a single empty value.
func (b *Builder) Build(ctx context.Context, target files.Target, sub *model.Submission, schema []model.Column) model.Row {
	row := model.Row{Cells: make([]model.Cell, len(schema))}
	for i, col := range schema {
		raw := sub.Fields.Values(col.Name)
		if len(raw) == 0 {
			raw = []string{""}
		}
		cell := model.Cell{Column: col, Values: make([]model.Value, len(raw))}
		for j, v := range raw {
			cell.Values[j] = b.value(ctx, target, col, v)
		}
		row.Cells[i] = cell
	}
	return row
}

func (b *Builder) value(ctx context.Context, target files.Target, col model.Column, raw string) model.Value {
	switch col.Kind {
	case model.KindFile:
		if raw == "" {
			return model.Value{}
		}
		att := b.ingester.Ingest(ctx, target, raw)
		switch att.Status {
		case files.StatusStored:
			file := att.File
			return model.Value{Text: file.DisplayURL(), Raw: file.Filename, File: &file}
		default:
			return model.Value{}
		}
	default:
		if signedNumber.MatchString(raw) {
			return model.Value{Text: TextGuard + raw, Raw: raw}
		}
		return model.Value{Text: raw, Raw: raw}
	}
}

// Append persists row as the next row of table, columns in schema order.
func (b *Builder) Append(ctx context.Context, table string, row model.Row) error {
	if err := b.store.AppendRow(ctx, table, row.Display()); err != nil {
		return fmt.Errorf("append row to %s: %w", table, err)
	}
	return nil
}
