package processing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dharsanguruparan/FormSink/internal/mail"
	"github.com/dharsanguruparan/FormSink/internal/submission"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatcherDeliversAlerts(t *testing.T) {
	out := mail.NewOutbox(nil)
	d := New(out, "ops@acme.com", 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	require.NoError(t, d.Alert(ctx, submission.Alert{Table: "acme#contact", Error: "boom"}))
	require.NoError(t, d.Alert(ctx, submission.Alert{Table: "acme#jobs", Error: "boom"}))

	assert.Eventually(t, func() bool { return len(out.Sent()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	d.Wait()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := New(mail.NewOutbox(nil), "ops@acme.com", 1, nil)
	// Not started: the buffer fills and further alerts are refused.
	for i := 0; i < 4; i++ {
		require.NoError(t, d.Alert(context.Background(), submission.Alert{Table: "t"}))
	}
	assert.ErrorIs(t, d.Alert(context.Background(), submission.Alert{Table: "t"}), ErrQueueFull)
}

func TestDispatcherWithoutOperator(t *testing.T) {
	out := mail.NewOutbox(nil)
	d := New(out, "", 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	require.NoError(t, d.Alert(ctx, submission.Alert{Table: "t"}))
	assert.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	d.Wait()
	assert.Empty(t, out.Sent())
}
