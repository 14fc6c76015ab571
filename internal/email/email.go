package email

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	gomail "github.com/wneessen/go-mail"

	"github.com/eugenenazirov/coursehub/internal/config"
)

var (
	// ErrNoRecipients is returned when a message has nobody to deliver to.
	ErrNoRecipients = errors.New("message has no recipients")
	// ErrConflictingTLS is returned when both STARTTLS and implicit TLS are enabled.
	ErrConflictingTLS = errors.New("EMAIL_USE_TLS and EMAIL_USE_SSL are mutually exclusive")
	// ErrInvalidPort is returned for an EMAIL_PORT that is not a port number.
	ErrInvalidPort = errors.New("invalid email port")
)

// Message is a plain-text email.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer is the SMTP-backed Sender.
type Mailer struct {
	client *gomail.Client
}

// New builds an SMTP client from the email settings. No connection is made
// until the first Send.
func New(cfg config.Email) (*Mailer, error) {
	if cfg.UseTLS && cfg.UseSSL {
		return nil, ErrConflictingTLS
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPort, cfg.Port)
	}

	opts := []gomail.Option{gomail.WithPort(port)}
	switch {
	case cfg.UseSSL:
		opts = append(opts, gomail.WithSSL())
	case cfg.UseTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.User),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create SMTP client: %w", err)
	}
	return &Mailer{client: client}, nil
}

// Send delivers msg over a fresh SMTP session.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	built, err := buildMessage(msg)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, built); err != nil {
		return fmt.Errorf("send %q: %w", msg.Subject, err)
	}
	return nil
}

func buildMessage(msg Message) (*gomail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}

	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}
