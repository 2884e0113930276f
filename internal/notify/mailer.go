// Package notify delivers certification emails over SMTP.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"

	"github.com/ginjaninja78/invoice-billing-converter/internal/config"
)

// Attachment is an in-memory file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outgoing email.
type Message struct {
	To          []string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Notifier sends messages. Send delivers to the message recipients plus the
// configured default recipients; SendError goes to the default and error
// recipients only.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	SendError(ctx context.Context, subject, text string) error
}

// Mailer is the SMTP Notifier.
type Mailer struct {
	cfg  config.SMTPConfig
	addr string
	auth smtp.Auth
}

// NewMailer wraps SMTP configuration for sending emails with PDF attachments.
func NewMailer(cfg config.SMTPConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("mailer: smtp host is not configured")
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	if from == "" {
		return nil, errors.New("mailer: no sender address configured")
	}
	cfg.From = from

	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &Mailer{
		cfg:  cfg,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
	}, nil
}

// Send delivers msg to its recipients and the default recipients.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	to := mergeRecipients(m.cfg.DefaultRecipients, msg.To)
	if len(to) == 0 {
		return errors.New("mailer: message has no recipients")
	}

	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = to
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)

	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/pdf"
		}
		if _, err := e.Attach(bytes.NewReader(a.Content), a.Filename, contentType); err != nil {
			return fmt.Errorf("mailer: attach %s: %w", a.Filename, err)
		}
	}

	return m.deliver(ctx, e)
}

// SendError notifies the default and error recipients.
func (m *Mailer) SendError(ctx context.Context, subject, text string) error {
	to := mergeRecipients(m.cfg.DefaultRecipients, m.cfg.ErrorRecipients)
	if len(to) == 0 {
		return errors.New("mailer: no error recipients configured")
	}

	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = to
	e.Subject = subject
	e.Text = []byte(text)
	return m.deliver(ctx, e)
}

// deliver sends e; the SMTP client has no cancellation, so ctx is only
// checked before dialing.
func (m *Mailer) deliver(ctx context.Context, e *email.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.ImplicitTLS {
		return e.SendWithTLS(m.addr, m.auth, &tls.Config{ServerName: m.cfg.Host})
	}
	return e.Send(m.addr, m.auth)
}

// mergeRecipients concatenates lists, dropping blanks and repeats.
func mergeRecipients(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, addr := range list {
			if addr == "" {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}
