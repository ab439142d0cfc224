// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	netmail "net/mail"
	"net/smtp"
	"os"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	TLS       TLSMode
	// TLSConfig overrides the client TLS settings. ServerName defaults to Host.
	TLSConfig *tls.Config
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	from netmail.Address
	now  func() time.Time
}

// NewSMTPMailer validates cfg and creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("MAIL_INVALID_CONFIG").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	if cfg.TLS == "" {
		cfg.TLS = TLSStartTLS
	}
	if !cfg.TLS.Valid() {
		return nil, oops.Code("MAIL_INVALID_CONFIG").With("tls", string(cfg.TLS)).Errorf("unknown smtp tls mode")
	}
	from, err := netmail.ParseAddress(cfg.FromEmail)
	if err != nil {
		return nil, oops.Code("MAIL_INVALID_CONFIG").With("from", cfg.FromEmail).Wrap(err)
	}
	from.Name = cfg.FromName

	return &SMTPMailer{cfg: cfg, from: *from, now: time.Now}, nil
}

// Send delivers one message. The whole exchange is bound to ctx.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg, err := buildMessage(m.from, to, subject, body, m.now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return oops.Code("MAIL_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	defer conn.Close() //nolint:errcheck // connection teardown

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := m.deliver(conn, to, msg); err != nil {
		if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
			return oops.Code("MAIL_SEND_TIMEOUT").With("addr", addr).Wrap(err)
		}
		return oops.Code("MAIL_SEND_FAILED").With("addr", addr).Wrap(err)
	}
	return nil
}

func (m *SMTPMailer) dial(ctx context.Context, addr string) (net.Conn, error) {
	if m.cfg.TLS == TLSImplicit {
		d := &tls.Dialer{Config: m.tlsConfig()}
		return d.DialContext(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if m.cfg.TLSConfig != nil {
		cfg = m.cfg.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = m.cfg.Host
	}
	return cfg
}

func (m *SMTPMailer) deliver(conn net.Conn, to string, msg []byte) error {
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck // Quit below reports the real outcome

	if m.cfg.TLS == TLSStartTLS {
		if err := client.StartTLS(m.tlsConfig()); err != nil {
			return err
		}
	}
	if m.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return err
		}
	}

	rcpt, err := netmail.ParseAddress(to)
	if err != nil {
		return err
	}
	if err := client.Mail(m.from.Address); err != nil {
		return err
	}
	if err := client.Rcpt(rcpt.Address); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// Compile-time interface check.
var _ auth.Mailer = (*SMTPMailer)(nil)
