package submission

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/FormSink/internal/files"
	"github.com/dharsanguruparan/FormSink/internal/model"
	"github.com/dharsanguruparan/FormSink/internal/spam"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"

	successMessage = "submission received"
)

// Gate decides whether a submission is spam.
type Gate interface {
	Evaluate(ctx context.Context, sub *model.Submission, rateKey string) (spam.Verdict, error)
}

// Schema resolves the column list of a table.
type Schema interface {
	Resolve(ctx context.Context, table string, declared []model.Column) ([]model.Column, error)
}

// Rows builds and appends rows.
type Rows interface {
	Build(ctx context.Context, target files.Target, sub *model.Submission, schema []model.Column) model.Row
	Append(ctx context.Context, table string, row model.Row) error
}

// Notifier mails the summary of a stored row.
type Notifier interface {
	Notify(ctx context.Context, table string, sub *model.Submission, row model.Row) (bool, error)
}

// AuditLog keeps the per-table trail of processed submissions.
type AuditLog interface {
	Append(ctx context.Context, table, message string) error
}

// QuotaReporter reports the remaining mail quota for diagnostics.
type QuotaReporter interface {
	RemainingQuota(ctx context.Context) (int, error)
}

// Alert describes a failed submission for the operator.
type Alert struct {
	Table          string    `json:"table"`
	Kind           string    `json:"kind"`
	Error          string    `json:"error"`
	RemainingQuota int       `json:"remaining_quota"`
	At             time.Time `json:"at"`
}

// Alerter forwards alerts to the operator. Delivery is best effort.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// Outcome is the result of a processed submission. Row and Notified are only
// set for accepted submissions.
type Outcome struct {
	Table    string
	Verdict  spam.Verdict
	Row      model.Row
	Notified bool
}

// Accepted reports whether the submission passed the spam gate.
func (o Outcome) Accepted() bool { return o.Verdict.Accepted() }

// Response is the caller-visible result. Spam rejections are indistinguishable
// from accepted submissions.
type Response struct {
	Status  int    `json:"-"`
	Result  string `json:"result"`
	Message string `json:"message"`
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Gate     Gate
	Schema   Schema
	Rows     Rows
	Notifier Notifier
	Audit    AuditLog
	Quota    QuotaReporter
	Alerter  Alerter
}

// Processor runs the pipeline. It holds no per-request state and is safe for
// concurrent use when its collaborators are.
type Processor struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// NewProcessor constructs a Processor.
func NewProcessor(deps Deps, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{deps: deps, logger: logger.Named("submission"), now: time.Now}
}

// Process runs every stage for sub. Errors are *Error values; nothing is
// persisted when the error is of KindConfig or comes from the spam gate.
// Only a missing domain or form id is reported before the gate runs.
func (p *Processor) Process(ctx context.Context, sub *model.Submission) (Outcome, error) {
	req, err := NewRequest(sub, p.now())
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Table: req.Table}

	verdict, err := p.deps.Gate.Evaluate(ctx, sub, req.Table)
	if err != nil {
		return out, wrap(KindPersistence, err)
	}
	out.Verdict = verdict
	if !verdict.Accepted() {
		p.logger.Info("submission rejected",
			zap.String("table", req.Table),
			zap.String("reason", string(verdict.Reason)),
			zap.String("detail", verdict.Detail))
		p.audit(ctx, req.Table, fmt.Sprintf("rejected (%s)", verdict.Reason))
		return out, nil
	}
	if err := req.DeclareColumns(); err != nil {
		return out, err
	}

	schema, err := p.deps.Schema.Resolve(ctx, req.Table, req.Columns)
	if err != nil {
		return out, wrap(KindPersistence, err)
	}
	row := p.deps.Rows.Build(ctx, req.Target(), sub, schema)
	if err := p.deps.Rows.Append(ctx, req.Table, row); err != nil {
		return out, wrap(KindPersistence, err)
	}
	out.Row = row

	if p.deps.Notifier != nil {
		sent, err := p.deps.Notifier.Notify(ctx, req.Table, sub, row)
		if err != nil {
			return out, wrap(KindNotify, err)
		}
		out.Notified = sent
	}
	p.logger.Info("submission stored",
		zap.String("table", req.Table),
		zap.Int("columns", len(schema)),
		zap.Bool("notified", out.Notified))
	p.audit(ctx, req.Table, fmt.Sprintf("stored row (%d columns, notified=%t)", len(schema), out.Notified))
	return out, nil
}

// Handle runs Process and maps its result onto the response contract: 200
// success for accepted and rejected submissions, 400 error otherwise.
// Non-config failures are logged with the remaining mail quota, audited and
// forwarded to the operator.
func (p *Processor) Handle(ctx context.Context, sub *model.Submission) Response {
	out, err := p.Process(ctx, sub)
	if err == nil {
		return Response{Status: http.StatusOK, Result: ResultSuccess, Message: successMessage}
	}
	kind := KindOf(err)
	if kind == KindConfig {
		p.logger.Warn("submission refused", zap.Error(err))
		return Response{Status: http.StatusBadRequest, Result: ResultError, Message: err.Error()}
	}

	quota := -1
	if p.deps.Quota != nil {
		if q, qerr := p.deps.Quota.RemainingQuota(ctx); qerr == nil {
			quota = q
		}
	}
	p.logger.Error("submission failed",
		zap.String("table", out.Table),
		zap.Stringer("kind", kind),
		zap.Int("remaining_quota", quota),
		zap.Error(err))
	p.audit(ctx, out.Table, "error: "+err.Error())
	if p.deps.Alerter != nil {
		alert := Alert{Table: out.Table, Kind: kind.String(), Error: err.Error(), RemainingQuota: quota, At: p.now().UTC()}
		if aerr := p.deps.Alerter.Alert(ctx, alert); aerr != nil {
			p.logger.Warn("operator alert failed", zap.Error(aerr))
		}
	}
	return Response{Status: http.StatusBadRequest, Result: ResultError, Message: err.Error()}
}

func (p *Processor) audit(ctx context.Context, table, message string) {
	if p.deps.Audit == nil {
		return
	}
	if err := p.deps.Audit.Append(ctx, table, message); err != nil {
		p.logger.Warn("audit log append failed", zap.String("table", table), zap.Error(err))
	}
}
