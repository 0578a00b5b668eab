// Package spam decides whether a submission is accepted before anything is
// persisted. Layers run in a fixed order and the first match wins: honeypot,
// freshness token, content heuristics, email shape, hourly rate limit.
package spam

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/FormSink/internal/model"
)

// Reason names the layer that rejected a submission.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonHoneypot Reason = "honeypot"
	ReasonToken    Reason = "token"
	ReasonLinks    Reason = "links"
	ReasonScript   Reason = "script"
	ReasonKeyword  Reason = "keyword"
	ReasonEmail    Reason = "email"
	ReasonRate     Reason = "rate"
)

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Reason Reason
	Detail string
}

// Accepted reports whether no layer rejected the submission.
func (v Verdict) Accepted() bool { return v.Reason == ReasonNone }

func reject(reason Reason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}

// Counter is the shared store behind rate buckets. Incr returns the value
// after incrementing and (re)arms the key expiry.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, key string) error
}

// Options configures a Gate.
type Options struct {
	// Limit returns the hourly cap for a table.
	Limit          func(table string) int
	MaxURLs        int
	Blocklist      []string
	BlockedScripts []string
}

// Gate evaluates the spam layers.
type Gate struct {
	counter Counter
	limit   func(string) int
	content *contentFilter
	logger  *zap.Logger
	now     func() time.Time
}

// NewGate constructs a Gate.
func NewGate(counter Counter, opts Options, logger *zap.Logger) *Gate {
	limit := opts.Limit
	if limit == nil {
		limit = func(string) int { return 20 }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		counter: counter,
		limit:   limit,
		content: newContentFilter(opts.MaxURLs, opts.Blocklist, opts.BlockedScripts),
		logger:  logger.Named("spam"),
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// Evaluate runs every layer against sub. rateKey identifies the table whose
// hourly bucket is charged. An error is returned only when the rate counter
// store fails.
func (g *Gate) Evaluate(ctx context.Context, sub *model.Submission, rateKey string) (Verdict, error) {
	if sub.Honeypot() != "" {
		return reject(ReasonHoneypot, ""), nil
	}
	now := g.now()
	if token := sub.Token(); token != "" {
		if err := CheckToken(token, now); err != nil {
			return reject(ReasonToken, err.Error()), nil
		}
	}
	if text := formText(sub); text != "" {
		if reason, detail := g.content.check(text); reason != ReasonNone {
			return reject(reason, detail), nil
		}
	}
	for _, addr := range sub.ApplicantEmails() {
		if !validEmail(addr) {
			return reject(ReasonEmail, addr), nil
		}
	}
	return g.chargeRate(ctx, rateKey, now)
}

func (g *Gate) chargeRate(ctx context.Context, table string, now time.Time) (Verdict, error) {
	hour := now.Hour()
	count, err := g.counter.Incr(ctx, BucketKey(table, hour), time.Hour)
	if err != nil {
		return Verdict{}, fmt.Errorf("rate bucket %s: %w", table, err)
	}
	if count == 1 {
		prev := BucketKey(table, (hour+23)%24)
		if err := g.counter.Delete(ctx, prev); err != nil {
			g.logger.Warn("drop previous rate bucket", zap.String("key", prev), zap.Error(err))
		}
	}
	if limit := g.limit(table); count > int64(limit) {
		return reject(ReasonRate, fmt.Sprintf("%d/%d", count, limit)), nil
	}
	return Verdict{}, nil
}

// BucketKey is the rate bucket key for table at hour-of-day hour.
func BucketKey(table string, hour int) string {
	return fmt.Sprintf("rate:%s:%02d", table, hour)
}

// formText concatenates the form field values the content heuristics look at.
// Declared file fields and inline data URIs are skipped: base64 payloads
// would trip the keyword list by chance.
func formText(sub *model.Submission) string {
	fileFields := make(map[string]bool)
	if headers, err := sub.Headers(); err == nil {
		for _, h := range headers {
			if model.ParseKind(h.Type) == model.KindFile {
				fileFields[h.Name] = true
			}
		}
	}
	var parts []string
	for _, name := range sub.FormFields() {
		if fileFields[name] {
			continue
		}
		for _, v := range sub.Fields.Values(name) {
			if v != "" && !strings.HasPrefix(v, "data:") {
				parts = append(parts, v)
			}
		}
	}
	return strings.Join(parts, " ")
}
