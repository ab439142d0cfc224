// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail delivers outbound messages for the auth services.
package mail

import (
	"fmt"
	"mime"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/samber/oops"
)

// TLSMode selects how the SMTP connection is secured.
type TLSMode string

// TLS modes.
const (
	// TLSStartTLS upgrades a plain connection with STARTTLS (port 587).
	TLSStartTLS TLSMode = "starttls"
	// TLSImplicit dials TLS directly (port 465).
	TLSImplicit TLSMode = "implicit"
	// TLSNone sends in the clear. Only for local relays and tests.
	TLSNone TLSMode = "none"
)

// Valid reports whether m is a known mode.
func (m TLSMode) Valid() bool {
	switch m {
	case TLSStartTLS, TLSImplicit, TLSNone:
		return true
	default:
		return false
	}
}

// buildMessage renders a plain-text RFC 5322 message.
func buildMessage(from netmail.Address, to, subject, body string, now time.Time) ([]byte, error) {
	for name, v := range map[string]string{"to": to, "subject": subject} {
		if strings.ContainsAny(v, "\r\n") {
			return nil, oops.Code("MAIL_INVALID_HEADER").
				With("header", name).
				Errorf("header contains a line break")
		}
	}
	rcpt, err := netmail.ParseAddress(to)
	if err != nil {
		return nil, oops.Code("MAIL_INVALID_RECIPIENT").Wrap(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", rcpt.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String()), nil
}
