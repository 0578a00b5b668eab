// Package notify renders the HTML summary of a submission and mails it to the
// recipients listed in the form.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/FormSink/internal/mail"
	"github.com/dharsanguruparan/FormSink/internal/model"
)

var bodyTemplate = template.Must(template.New("body").Parse(`<table cellpadding="4" style="border-collapse:collapse">
{{- range .}}
<tr><td valign="top">&#8203;<b>{{.Label}}</b>&#8203;</td><td>{{template "value" .}}</td></tr>
{{- end}}
</table>
{{define "value"}}
{{- if .File -}}
  {{- if .File.ThumbnailURL -}}
    <a href="{{.File.ViewURL}}"><img src="{{.File.ThumbnailURL}}" alt="{{.File.Filename}}" width="200"></a>
  {{- else -}}
    <a href="{{.File.ViewURL}}">{{.File.Filename}}</a>
  {{- end -}}
  {{- if .File.Pages}} ({{.File.Pages}} pages){{end -}}
{{- else if .Multiline -}}
  <pre>{{.Text}}</pre>
{{- else -}}
  {{.Text}}
{{- end -}}
{{end}}`))

type line struct {
	Label     string
	Text      string
	Multiline bool
	File      *model.StoredFile
}

// Composer builds notification messages.
type Composer struct {
	sender mail.Sender
}

// NewComposer constructs a Composer.
func NewComposer(sender mail.Sender) *Composer {
	return &Composer{sender: sender}
}

// Compose returns the message for row, or false when the submission did not
// ask for a notification.
func (c *Composer) Compose(table string, sub *model.Submission, row model.Row) (mail.Message, bool, error) {
	bcc := sub.Recipients()
	if len(bcc) == 0 {
		return mail.Message{}, false, nil
	}
	body, err := RenderBody(row)
	if err != nil {
		return mail.Message{}, false, err
	}
	subject := sub.Subject()
	if strings.TrimSpace(subject) == "" {
		subject = "New submission: " + table
	}
	return mail.Message{
		BCC:        bcc,
		ReplyTo:    sub.ApplicantEmails(),
		Subject:    subject,
		HTML:       body,
		SenderName: sub.Domain(),
	}, true, nil
}

// Notify composes and sends the notification. It reports whether a message
// was sent.
func (c *Composer) Notify(ctx context.Context, table string, sub *model.Submission, row model.Row) (bool, error) {
	msg, ok, err := c.Compose(table, sub, row)
	if err != nil || !ok {
		return false, err
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("send notification for %s: %w", table, err)
	}
	return true, nil
}

// RenderBody renders one table row per column value, skipping the recipient
// control column.
func RenderBody(row model.Row) (string, error) {
	var lines []line
	for _, cell := range row.Cells {
		if cell.Column.Name == model.FieldRecipients {
			continue
		}
		for i, v := range cell.Values {
			label := cell.Column.Name
			if len(cell.Values) > 1 {
				label += " " + strconv.Itoa(i+1)
			}
			l := line{Label: label, File: v.File}
			if v.File == nil {
				l.Text = v.Raw
				l.Multiline = strings.Contains(v.Raw, "\n")
			}
			lines = append(lines, l)
		}
	}
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, lines); err != nil {
		return "", fmt.Errorf("render notification: %w", err)
	}
	return buf.String(), nil
}
