package alert

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/hazz-dev/portwatch/internal/config"
)

// Mailer sends notifications through an authenticated SMTP submission
// server using STARTTLS.
type Mailer struct {
	from      string
	to        []string
	username  string
	password  string
	server    string
	port      int
	timeout   time.Duration
	tls       mail.TLSPolicy
	tlsConfig *tls.Config // nil keeps the client default
	logger    *slog.Logger
}

// NewMailer creates a Mailer. Pass nil logger to use the default logger.
func NewMailer(cfg config.MailConfig, password string, logger *slog.Logger) (*Mailer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	m := &Mailer{
		from:     cfg.From,
		to:       cfg.To,
		username: cfg.Username,
		password: password,
		server:   cfg.Server,
		port:     cfg.Port,
		timeout:  timeout,
		tls:      mail.TLSMandatory,
		logger:   logger,
	}
	if m.username == "" {
		m.username = m.from
	}
	// Fail at startup rather than on the first alert.
	if _, err := m.client(); err != nil {
		return nil, err
	}
	if _, err := m.message(config.Endpoint{Host: "localhost", Port: 1}, KindDown); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mailer) NotifyDown(ctx context.Context, ep config.Endpoint) error {
	return m.send(ctx, ep, KindDown)
}

func (m *Mailer) NotifyRecovered(ctx context.Context, ep config.Endpoint) error {
	return m.send(ctx, ep, KindUp)
}

func (m *Mailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.port),
		mail.WithTLSPolicy(m.tls),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.username),
		mail.WithPassword(m.password),
		mail.WithTimeout(m.timeout),
	}
	if m.tlsConfig != nil {
		opts = append(opts, mail.WithTLSConfig(m.tlsConfig))
	}
	c, err := mail.NewClient(m.server, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client for %s: %w", m.server, err)
	}
	return c, nil
}

func (m *Mailer) message(ep config.Endpoint, kind Kind) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("setting sender %q: %w", m.from, err)
	}
	if err := msg.To(m.to...); err != nil {
		return nil, fmt.Errorf("setting recipients: %w", err)
	}
	msg.Subject(Subject(ep, kind))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, Body(ep, kind))
	return msg, nil
}

func (m *Mailer) send(ctx context.Context, ep config.Endpoint, kind Kind) error {
	msg, err := m.message(ep, kind)
	if err != nil {
		return err
	}
	c, err := m.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending %s notification for %s: %w", kind, ep, err)
	}
	m.logger.Debug("notification sent",
		"endpoint", ep.String(),
		"kind", string(kind),
		"recipients", len(m.to),
		"duration", time.Since(start),
	)
	return nil
}
