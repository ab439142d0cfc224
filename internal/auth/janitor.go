// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/pkg/errutil"
)

// SweepResult reports how many records a sweep removed.
type SweepResult struct {
	RefreshTokens  int64
	PasswordResets int64
}

// Janitor removes expired refresh tokens and spent or expired password resets.
// Expired records are already rejected by the services; sweeping only
// reclaims storage.
type Janitor struct {
	tokens RefreshTokenRepository
	resets PasswordResetRepository
	opts   serviceOptions
}

// NewJanitor creates a Janitor.
func NewJanitor(tokens RefreshTokenRepository, resets PasswordResetRepository, opts ...Option) (*Janitor, error) {
	if tokens == nil {
		return nil, oops.Errorf("refresh token repository is required")
	}
	if resets == nil {
		return nil, oops.Errorf("password reset repository is required")
	}
	return &Janitor{tokens: tokens, resets: resets, opts: newServiceOptions(opts)}, nil
}

// Sweep runs one pass over both tables. Both targets are attempted even if
// the first fails; the errors are joined.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	cutoff := j.opts.now()

	tokens, tokenErr := j.tokens.DeleteExpired(ctx, cutoff)
	if tokenErr != nil {
		tokenErr = oops.Code("JANITOR_SWEEP_FAILED").
			With("target", string(SweepRefreshTokens)).
			Wrap(tokenErr)
	} else {
		result.RefreshTokens = tokens
		recordSweep(SweepRefreshTokens, tokens)
	}

	resets, resetErr := j.resets.DeleteExpired(ctx, cutoff)
	if resetErr != nil {
		resetErr = oops.Code("JANITOR_SWEEP_FAILED").
			With("target", string(SweepPasswordResets)).
			Wrap(resetErr)
	} else {
		result.PasswordResets = resets
		recordSweep(SweepPasswordResets, resets)
	}

	return result, errors.Join(tokenErr, resetErr)
}

// Run sweeps every interval until ctx is cancelled. Sweep failures are
// logged and do not stop the loop.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return oops.Code("JANITOR_INVALID_INTERVAL").
			With("interval", interval.String()).
			Errorf("sweep interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := j.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				errutil.LogErrorContext(ctx, j.opts.logger, "janitor sweep failed", err)
				continue
			}
			if result.RefreshTokens > 0 || result.PasswordResets > 0 {
				j.opts.logger.InfoContext(ctx, "janitor sweep completed",
					"refresh_tokens", result.RefreshTokens,
					"password_resets", result.PasswordResets)
			}
		}
	}
}
