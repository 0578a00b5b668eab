package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FormSink/internal/mail"
	"github.com/dharsanguruparan/FormSink/internal/model"
)

func sub(kv ...string) *model.Submission {
	f := model.NewFields()
	for i := 0; i+1 < len(kv); i += 2 {
		f.Add(kv[i], kv[i+1])
	}
	return model.NewSubmission(f)
}

func text(col, v string) model.Cell {
	return model.Cell{Column: model.Column{Name: col}, Values: []model.Value{{Text: v, Raw: v}}}
}

func TestComposeSkipsWithoutRecipients(t *testing.T) {
	c := NewComposer(mail.NewOutbox(nil))
	_, ok, err := c.Compose("t", sub("Name", "Ana"), model.Row{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Compose("t", sub("Name", "Ana", "CC", "  "), model.Row{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComposeHeaders(t *testing.T) {
	s := sub("domain", "acme", "Email", "ana@x.com", "email", "ana2@x.com", "CC", "ops@acme.com, boss@acme.com")
	c := NewComposer(mail.NewOutbox(nil))
	msg, ok, err := c.Compose("acme#contact", s, model.Row{})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"ops@acme.com", "boss@acme.com"}, msg.BCC)
	assert.Equal(t, []string{"ana@x.com", "ana2@x.com"}, msg.ReplyTo)
	assert.Equal(t, "acme", msg.SenderName)
	assert.Equal(t, "New submission: acme#contact", msg.Subject)

	s.Fields.Add(model.FieldSubject, "Contact form")
	msg, _, _ = c.Compose("acme#contact", s, model.Row{})
	assert.Equal(t, "Contact form", msg.Subject)
}

func TestRenderBody(t *testing.T) {
	thumb := &model.StoredFile{Filename: "me.png", ViewURL: "https://b.test/me.png", ThumbnailURL: "https://f.test/thumb?k=1"}
	plain := &model.StoredFile{Filename: "a.zip", ViewURL: "https://b.test/a.zip"}
	doc := &model.StoredFile{Filename: "cv.pdf", ViewURL: "https://b.test/cv.pdf", ThumbnailURL: "https://f.test/cv", Pages: 3}
	row := model.Row{Cells: []model.Cell{
		text("Name", "Ana <script>"),
		text("Phone", "+34600111222"),
		text("Message", "line one\nline two"),
		{Column: model.Column{Name: "Tags"}, Values: []model.Value{{Text: "a", Raw: "a"}, {Text: "b", Raw: "b"}}},
		{Column: model.Column{Name: "Files", Kind: model.KindFile}, Values: []model.Value{{File: thumb}, {File: plain}, {File: doc}}},
		text("CC", "ops@acme.com"),
	}}

	body, err := RenderBody(row)
	require.NoError(t, err)

	assert.Contains(t, body, "&#8203;<b>Name</b>&#8203;")
	assert.Contains(t, body, "Ana &lt;script&gt;")
	// html/template escapes '+' and the apostrophe of the text guard.
	assert.Contains(t, body, "&#43;34600111222")
	assert.NotContains(t, body, "&#39;")
	assert.Contains(t, body, "<pre>line one\nline two</pre>")
	assert.Contains(t, body, "<b>Tags 1</b>")
	assert.Contains(t, body, "<b>Tags 2</b>")
	assert.Contains(t, body, `<a href="https://b.test/me.png"><img src="https://f.test/thumb?k=1" alt="me.png" width="200"></a>`)
	assert.Contains(t, body, `<a href="https://b.test/a.zip">a.zip</a>`)
	assert.Contains(t, body, "(3 pages)")
	assert.NotContains(t, body, "ops@acme.com")
	assert.NotContains(t, body, "<b>CC</b>")
	assert.Equal(t, 1, strings.Count(body, "<table"))
}

func TestNotifySends(t *testing.T) {
	out := mail.NewOutbox(nil)
	c := NewComposer(out)
	sent, err := c.Notify(context.Background(), "t", sub("domain", "acme", "CC", "ops@acme.com"), model.Row{Cells: []model.Cell{text("CC", "ops@acme.com")}})
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, out.Sent(), 1)
	assert.Equal(t, []string{"ops@acme.com"}, out.Sent()[0].BCC)
}

func TestNotifyPropagatesQuota(t *testing.T) {
	out := mail.NewOutbox(nil)
	c := NewComposer(failingSender{})
	_, err := c.Notify(context.Background(), "t", sub("CC", "ops@acme.com"), model.Row{})
	assert.ErrorIs(t, err, mail.ErrQuotaExceeded)
	assert.Empty(t, out.Sent())
}

type failingSender struct{}

func (failingSender) Send(context.Context, mail.Message) error    { return mail.ErrQuotaExceeded }
func (failingSender) RemainingQuota(context.Context) (int, error) { return 0, nil }
