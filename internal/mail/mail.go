// Package mail delivers notification emails and tracks the daily send quota.
package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQuotaExceeded is returned once the daily quota is used up.
var ErrQuotaExceeded = errors.New("daily mail quota exhausted")

// Message is one outgoing HTML email.
type Message struct {
	To         []string
	BCC        []string
	ReplyTo    []string
	Subject    string
	HTML       string
	SenderName string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	RemainingQuota(ctx context.Context) (int, error)
}

// Counter is the daily sent counter backing the quota.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// Quota tracks sends per UTC day against a fixed limit.
type Quota struct {
	counter Counter
	limit   int
	now     func() time.Time
}

// NewQuota constructs a Quota allowing limit sends per day.
func NewQuota(counter Counter, limit int) *Quota {
	return &Quota{counter: counter, limit: limit, now: time.Now}
}

func (q *Quota) key() string {
	return "mail:sent:" + q.now().UTC().Format("2006-01-02")
}

// Remaining returns how many messages may still be sent today.
func (q *Quota) Remaining(ctx context.Context) (int, error) {
	sent, err := q.counter.Get(ctx, q.key())
	if err != nil {
		return 0, fmt.Errorf("read mail quota: %w", err)
	}
	if left := q.limit - int(sent); left > 0 {
		return left, nil
	}
	return 0, nil
}

// Take reserves one send or returns ErrQuotaExceeded.
func (q *Quota) Take(ctx context.Context) error {
	n, err := q.counter.Incr(ctx, q.key(), 25*time.Hour)
	if err != nil {
		return fmt.Errorf("charge mail quota: %w", err)
	}
	if int(n) > q.limit {
		return ErrQuotaExceeded
	}
	return nil
}

// Record charges one completed send without checking the limit.
func (q *Quota) Record(ctx context.Context) error {
	if _, err := q.counter.Incr(ctx, q.key(), 25*time.Hour); err != nil {
		return fmt.Errorf("charge mail quota: %w", err)
	}
	return nil
}

// Outbox is a Sender that keeps messages in memory. It is used when no SMTP
// relay is configured and by tests.
type Outbox struct {
	mu    sync.Mutex
	sent  []Message
	quota *Quota
}

// NewOutbox constructs an Outbox charging quota, which may be nil.
func NewOutbox(quota *Quota) *Outbox {
	return &Outbox{quota: quota}
}

// Send records msg.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	if o.quota != nil {
		if err := o.quota.Take(ctx); err != nil {
			return err
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// RemainingQuota reports the quota left, or -1 when unlimited.
func (o *Outbox) RemainingQuota(ctx context.Context) (int, error) {
	if o.quota == nil {
		return -1, nil
	}
	return o.quota.Remaining(ctx)
}

// Sent returns a copy of the recorded messages.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}
