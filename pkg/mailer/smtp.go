package mailer

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/noah-isme/rc-quote-api/pkg/config"
)

// ErrNotConfigured is returned when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp transport not configured")

// Attachment references a file on disk and the name shown to the recipient.
type Attachment struct {
	Path string
	Name string
}

// Message is a transport-agnostic outgoing email.
type Message struct {
	From        string
	FromName    string
	To          []string
	Bcc         []string
	ReplyTo     string
	ReplyToName string
	Subject     string
	Headers     map[string]string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Transport delivers messages.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPTransport sends mail through an authenticated SMTP relay.
type SMTPTransport struct {
	host   string
	dialer sender
}

// NewSMTPTransport builds a transport from mail configuration.
func NewSMTPTransport(cfg config.MailConfig) *SMTPTransport {
	return &SMTPTransport{
		host:   cfg.SMTPHost,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
	}
}

// Send implements Transport. The SMTP exchange is abandoned when ctx is done.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if t.host == "" {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	m := BuildMessage(msg)

	done := make(chan error, 1)
	go func() { done <- t.dialer.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send mail: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	}
}

// BuildMessage converts msg to a MIME message with a text part, an HTML alternative and attachments.
func BuildMessage(msg Message) *gomail.Message {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	if msg.FromName != "" {
		m.SetHeader("From", m.FormatAddress(msg.From, msg.FromName))
	} else {
		m.SetHeader("From", msg.From)
	}
	m.SetHeader("To", msg.To...)
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", msg.Bcc...)
	}
	if msg.ReplyTo != "" {
		if msg.ReplyToName != "" {
			m.SetHeader("Reply-To", m.FormatAddress(msg.ReplyTo, msg.ReplyToName))
		} else {
			m.SetHeader("Reply-To", msg.ReplyTo)
		}
	}
	m.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	for _, a := range msg.Attachments {
		if a.Name != "" {
			m.Attach(a.Path, gomail.Rename(a.Name))
			continue
		}
		m.Attach(a.Path)
	}
	return m
}
