package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/FormSink/internal/mail"
	"github.com/dharsanguruparan/FormSink/internal/submission"
)

const (
	// OperatorAlertTask is scheduled each time a submission fails after the
	// spam gate.
	OperatorAlertTask = "alert:operator"
)

// EnqueueAlert enqueues an operator alert.
func EnqueueAlert(ctx context.Context, client *asynq.Client, alert submission.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	task := asynq.NewTask(OperatorAlertTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.Timeout(time.Minute)); err != nil {
		return fmt.Errorf("enqueue alert task: %w", err)
	}
	return nil
}

// DecodeAlert reads the payload of an OperatorAlertTask.
func DecodeAlert(task *asynq.Task) (submission.Alert, error) {
	var alert submission.Alert
	if err := json.Unmarshal(task.Payload(), &alert); err != nil {
		return alert, fmt.Errorf("decode alert: %w", err)
	}
	return alert, nil
}

// Alerter hands alerts to the asynq worker.
type Alerter struct {
	client *asynq.Client
}

// NewAlerter constructs an Alerter.
func NewAlerter(client *asynq.Client) *Alerter {
	return &Alerter{client: client}
}

// Alert enqueues alert.
func (a *Alerter) Alert(ctx context.Context, alert submission.Alert) error {
	return EnqueueAlert(ctx, a.client, alert)
}

// AlertMessage renders the email sent to the operator for alert.
func AlertMessage(alert submission.Alert, operator string) mail.Message {
	body := fmt.Sprintf(
		"<p>A submission to <b>%s</b> failed at %s.</p><p>Kind: %s<br>Remaining mail quota: %d</p><pre>%s</pre>",
		html.EscapeString(alert.Table),
		alert.At.Format(time.RFC3339),
		html.EscapeString(alert.Kind),
		alert.RemainingQuota,
		html.EscapeString(alert.Error),
	)
	return mail.Message{
		To:         []string{operator},
		Subject:    "FormSink failure: " + alert.Table,
		HTML:       body,
		SenderName: "FormSink",
	}
}
