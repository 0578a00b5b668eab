// Package processing runs operator alerts on an in-process worker pool. It is
// used when no Redis server is configured for the asynq queue.
package processing

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/FormSink/internal/mail"
	"github.com/dharsanguruparan/FormSink/internal/queue"
	"github.com/dharsanguruparan/FormSink/internal/submission"
)

// ErrQueueFull is returned by Alert when every buffered slot is taken.
var ErrQueueFull = errors.New("alert queue full")

// Dispatcher consumes alerts and mails them to the operator.
type Dispatcher struct {
	sender   mail.Sender
	operator string
	logger   *zap.Logger
	queue    chan submission.Alert
	workers  int
	wg       sync.WaitGroup
	once     sync.Once
}

// New builds a Dispatcher with queue capacity tied to worker count.
func New(sender mail.Sender, operator string, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender:   sender,
		operator: operator,
		logger:   logger.Named("alerts"),
		queue:    make(chan submission.Alert, workers*4),
		workers:  workers,
	}
}

// Start launches worker goroutines. They exit when ctx is cancelled; Wait
// blocks until they have.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx)
		}
	})
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Alert queues alert without blocking.
func (d *Dispatcher) Alert(_ context.Context, alert submission.Alert) error {
	select {
	case d.queue <- alert:
		return nil
	default:
		d.logger.Warn("alert queue full, dropping alert", zap.String("table", alert.Table))
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			d.process(ctx, alert)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, alert submission.Alert) {
	if d.operator == "" {
		d.logger.Warn("no operator address, alert dropped", zap.String("table", alert.Table), zap.String("error", alert.Error))
		return
	}
	if err := d.sender.Send(ctx, queue.AlertMessage(alert, d.operator)); err != nil {
		d.logger.Error("alert delivery failed", zap.String("table", alert.Table), zap.Error(err))
	}
}
