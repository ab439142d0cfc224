// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/holomush/holoauth/internal/auth"
)

// LogMailer records outgoing mail in the log instead of sending it.
// The body is omitted because it carries reset secrets.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default().
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs the recipient and subject.
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.InfoContext(ctx, "mail not delivered (log transport)",
		"to", to,
		"subject", subject,
		"body_bytes", len(body))
	return nil
}

// Compile-time interface check.
var _ auth.Mailer = (*LogMailer)(nil)
