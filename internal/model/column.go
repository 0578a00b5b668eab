package model

import (
	"fmt"
	"strings"
)

// Kind is the closed set of column kinds. The zero value is KindPlain.
type Kind int

const (
	KindPlain Kind = iota
	KindFile
)

// ParseKind maps a header type tag onto a Kind. Unrecognised tags are plain
// text columns.
func ParseKind(tag string) Kind {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "file":
		return KindFile
	default:
		return KindPlain
	}
}

// String returns the type tag persisted for the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindPlain:
		return ""
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	*k = ParseKind(string(text))
	return nil
}

// Column is one entry of a table schema. Names are unique within a table.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"type,omitempty"`
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
