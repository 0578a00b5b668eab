package mail

import (
	"context"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	cfg   SMTPConfig
	quota *Quota
}

// NewSMTPSender constructs an SMTPSender. A nil quota sends without limit.
func NewSMTPSender(cfg SMTPConfig, quota *Quota) *SMTPSender {
	return &SMTPSender{cfg: cfg, quota: quota}
}

// Send delivers msg. The quota is checked before dialling and charged only
// once the relay accepted the message, so a failed delivery costs nothing.
// Concurrent senders may overshoot the limit by the number in flight.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.quota != nil {
		left, err := s.quota.Remaining(ctx)
		if err != nil {
			return err
		}
		if left <= 0 {
			return ErrQuotaExceeded
		}
	}
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password))
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	if s.quota != nil {
		if err := s.quota.Record(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *SMTPSender) build(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(msg.SenderName, s.cfg.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if len(msg.To) > 0 {
		if err := m.To(msg.To...); err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
	}
	if len(msg.BCC) > 0 {
		if err := m.Bcc(msg.BCC...); err != nil {
			return nil, fmt.Errorf("bcc: %w", err)
		}
	}
	if len(msg.ReplyTo) > 0 {
		m.SetGenHeader(gomail.HeaderReplyTo, strings.Join(msg.ReplyTo, ", "))
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}

// RemainingQuota reports how many messages may still be sent today, or -1
// when unlimited.
func (s *SMTPSender) RemainingQuota(ctx context.Context) (int, error) {
	if s.quota == nil {
		return -1, nil
	}
	return s.quota.Remaining(ctx)
}
