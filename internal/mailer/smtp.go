package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/ganttmailer/internal/model"
)

// Config holds the mail relay settings.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	FromAddress    string
	FromName       string
	AttachmentName string // without extension
}

// DeliveryError is returned when the relay rejects a message.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("mailer: deliver to %s: %v", e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Mailer sends report PDFs through an authenticated SMTP relay.
type Mailer struct {
	cfg    *Config
	sendFn func(*gomail.Message) error
}

// New returns a Mailer that dials the configured relay for every message.
func New(cfg *Config) *Mailer {
	if cfg.AttachmentName == "" {
		cfg.AttachmentName = "report"
	}
	if cfg.FromAddress == "" {
		cfg.FromAddress = cfg.Username
	}
	m := &Mailer{cfg: cfg}
	m.sendFn = m.dialAndSend
	return m
}

// SendReport emails the PDF at path to the account's recipient, copying the
// account's cc list. It does not retry.
func (m *Mailer) SendReport(ctx context.Context, path string, a model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.buildMessage(path, a)
	if err != nil {
		return fmt.Errorf("mailer: build message: %w", err)
	}

	if err := m.sendFn(msg); err != nil {
		return &DeliveryError{To: a.Email, Err: err}
	}
	return nil
}

func (m *Mailer) buildMessage(path string, a model.Account) (*gomail.Message, error) {
	body, err := RenderBody(a)
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMessage()
	if m.cfg.FromName != "" {
		msg.SetAddressHeader("From", m.cfg.FromAddress, m.cfg.FromName)
	} else {
		msg.SetHeader("From", m.cfg.FromAddress)
	}
	msg.SetHeader("To", a.Email)
	if len(a.CC) > 0 {
		msg.SetHeader("Cc", a.CC...)
	}
	msg.SetHeader("Subject", Subject(a))
	msg.SetBody("text/html", body)
	msg.Attach(path, gomail.Rename(m.cfg.AttachmentName+".pdf"))
	return msg, nil
}

func (m *Mailer) dialAndSend(msg *gomail.Message) error {
	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return d.DialAndSend(msg)
}
