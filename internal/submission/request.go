// Package submission runs the processing pipeline for one form post: spam
// gate, schema resolution, row build and append, notification.
package submission

import (
	"time"

	"github.com/dharsanguruparan/FormSink/internal/files"
	"github.com/dharsanguruparan/FormSink/internal/model"
)

// Request is the request-scoped context threaded through every stage.
type Request struct {
	Submission *model.Submission
	Domain     string
	FormID     string
	Table      string
	Columns    []model.Column
	ReceivedAt time.Time
}

// NewRequest checks the domain and form id of sub. Every returned error is of
// KindConfig. Columns stays empty until DeclareColumns runs.
func NewRequest(sub *model.Submission, now time.Time) (*Request, error) {
	if sub.Domain() == "" {
		return nil, wrap(KindConfig, ErrMissingDomain)
	}
	if sub.FormID() == "" {
		return nil, wrap(KindConfig, ErrMissingFormID)
	}
	return &Request{
		Submission: sub,
		Domain:     sub.Domain(),
		FormID:     sub.FormID(),
		Table:      sub.TableName(),
		ReceivedAt: now,
	}, nil
}

// DeclareColumns decodes the header declarations and derives the column
// list. It runs after the spam gate so a rejected submission never surfaces
// a decode error. Errors are of KindConfig.
func (r *Request) DeclareColumns() error {
	cols, err := r.Submission.DeclaredColumns()
	if err != nil {
		return wrap(KindConfig, err)
	}
	r.Columns = cols
	return nil
}

// Target returns the attachment namespace of the request.
func (r *Request) Target() files.Target {
	return files.Target{Table: r.Table, Domain: r.Domain, FormID: r.FormID}
}
