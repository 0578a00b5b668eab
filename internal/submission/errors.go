package submission

import (
	"errors"
	"fmt"
)

var (
	ErrMissingDomain = errors.New("missing domain")
	ErrMissingFormID = errors.New("missing form id")
)

// Kind classifies pipeline failures. Spam rejections and degraded attachments
// are not errors and never carry a Kind.
type Kind int

const (
	// KindConfig is a malformed request detected before any spam check or
	// persistence.
	KindConfig Kind = iota + 1
	// KindPersistence covers schema, row, rate counter and blob failures.
	KindPersistence
	// KindNotify covers mail failures, including quota exhaustion.
	KindNotify
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindPersistence:
		return "persistence"
	case KindNotify:
		return "notify"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error wraps a pipeline failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind carried by err, or 0 for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
