// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// Mailer delivers a plain-text message to one recipient. Implementations
// must honor ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
