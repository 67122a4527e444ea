package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// TLS modes for EmailConfig.TLS.
const (
	TLSModeSSL           = "ssl"           // Implicit TLS, usually port 465
	TLSModeSTARTTLS      = "starttls"      // Mandatory STARTTLS, usually port 587
	TLSModeOpportunistic = "opportunistic" // STARTTLS when offered
	TLSModeNone          = "none"
)

// EmailConfig describes the SMTP relay used for outgoing mail.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      string
	Timeout  time.Duration
}

// EmailNotifier delivers messages over SMTP.
type EmailNotifier struct {
	cfg EmailConfig
}

// NewEmailNotifier creates an SMTP notifier.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.TLS == "" {
		cfg.TLS = TLSModeSSL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &EmailNotifier{cfg: cfg}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, msg Message) error {
	m, err := buildMail(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(e.cfg.Host, e.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (e *EmailNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithTimeout(e.cfg.Timeout)}

	switch e.cfg.TLS {
	case TLSModeSTARTTLS:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	case TLSModeOpportunistic:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	case TLSModeNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithSSLPort(false))
	}

	// Explicit ports go last so they override the TLS policy default.
	if e.cfg.Port > 0 {
		opts = append(opts, mail.WithPort(e.cfg.Port))
	}

	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}
	return opts
}

func buildMail(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.Sender); err != nil {
		return nil, fmt.Errorf("set sender %q: %w", msg.Sender, err)
	}
	if err := m.To(msg.Recipient); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", msg.Recipient, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
