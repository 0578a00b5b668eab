package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/FormSink/internal/mail"
	"github.com/dharsanguruparan/FormSink/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	sender   mail.Sender
	operator string
	logger   *zap.Logger
}

// NewProcessor constructs a worker processor that mails alerts to operator.
func NewProcessor(sender mail.Sender, operator string, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sender: sender, operator: operator, logger: logger.Named("worker")}
}

// Handler registers the alert job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.OperatorAlertTask, p.handleAlert)
	return mux
}

func (p *Processor) handleAlert(ctx context.Context, task *asynq.Task) error {
	alert, err := queue.DecodeAlert(task)
	if err != nil {
		// A malformed payload will never decode; do not retry it.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if p.operator == "" {
		p.logger.Warn("no operator address, alert dropped", zap.String("table", alert.Table), zap.String("error", alert.Error))
		return nil
	}
	if err := p.sender.Send(ctx, queue.AlertMessage(alert, p.operator)); err != nil {
		p.logger.Error("alert delivery failed", zap.String("table", alert.Table), zap.Error(err))
		return err
	}
	p.logger.Info("operator alerted", zap.String("table", alert.Table))
	return nil
}
