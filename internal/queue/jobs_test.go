package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FormSink/internal/submission"
)

func TestDecodeAlert(t *testing.T) {
	want := submission.Alert{Table: "acme#contact", Kind: "persistence", Error: "boom", RemainingQuota: 7, At: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := DecodeAlert(asynq.NewTask(OperatorAlertTask, data))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeAlert(asynq.NewTask(OperatorAlertTask, []byte("{")))
	assert.Error(t, err)
}

func TestAlertMessage(t *testing.T) {
	msg := AlertMessage(submission.Alert{Table: "acme#contact", Kind: "notify", Error: "quota <0>", RemainingQuota: 0}, "ops@acme.com")
	assert.Equal(t, []string{"ops@acme.com"}, msg.To)
	assert.Contains(t, msg.Subject, "acme#contact")
	assert.Contains(t, msg.HTML, "quota &lt;0&gt;")
	assert.Contains(t, msg.HTML, "Remaining mail quota: 0")
}
