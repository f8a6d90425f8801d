package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strings"
	"time"
)

// ErrConfig indicates invalid or incomplete SMTP configuration.
var ErrConfig = errors.New("mail: invalid smtp configuration")

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	// DialTimeout bounds connection establishment when the caller's
	// context carries no deadline.
	DialTimeout time.Duration
}

// LoadSMTPConfigFromEnv reads SMTP settings from the environment.
//
// Returns (cfg, false, nil) when WREN_SMTP_HOST is unset, which callers
// treat as "mail delivery disabled".
func LoadSMTPConfigFromEnv() (SMTPConfig, bool, error) {
	host := os.Getenv("WREN_SMTP_HOST")
	if host == "" {
		return SMTPConfig{}, false, nil
	}

	cfg := SMTPConfig{
		Host:        host,
		Port:        os.Getenv("WREN_SMTP_PORT"),
		Username:    os.Getenv("WREN_SMTP_USERNAME"),
		Password:    os.Getenv("WREN_SMTP_PASSWORD"),
		From:        os.Getenv("WREN_SMTP_FROM"),
		DialTimeout: 10 * time.Second,
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if cfg.From == "" {
		return SMTPConfig{}, false, ErrConfig
	}
	return cfg, true, nil
}

// SMTPSender delivers mail over an SMTP relay using STARTTLS when the
// server offers it.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates cfg and returns a ready sender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == "" || cfg.From == "" {
		return nil, ErrConfig
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &SMTPSender{cfg: cfg}, nil
}

var _ Sender = (*SMTPSender)(nil)

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mail: empty recipient")
	}

	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)

	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mail: smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("mail: starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("mail: mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("mail: rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: data: %w", err)
	}
	if _, err := w.Write(buildMIME(s.cfg.From, msg)); err != nil {
		w.Close()
		return fmt.Errorf("mail: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: close body: %w", err)
	}

	return client.Quit()
}

func buildMIME(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
