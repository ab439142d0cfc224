// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

// NewUserCmd creates the user command group. Secrets (passwords and
// tokens) are read from stdin, one per line, never from arguments.
func NewUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Drive account and session operations",
	}
	cmd.AddCommand(
		userAction(deps, "register EMAIL", "Create an account; reads the password from stdin", cobra.ExactArgs(1),
			func(ctx context.Context, svc *services, args []string, in *bufio.Reader, out io.Writer) error {
				password, err := readLine(in)
				if err != nil {
					return err
				}
				result, err := svc.sessions.Register(ctx, args[0], password)
				if err != nil {
					return err
				}
				return writeJSON(out, result)
			}),
		userAction(deps, "login EMAIL", "Open a session; reads the password from stdin", cobra.ExactArgs(1),
			func(ctx context.Context, svc *services, args []string, in *bufio.Reader, out io.Writer) error {
				password, err := readLine(in)
				if err != nil {
					return err
				}
				result, err := svc.sessions.Login(ctx, args[0], password)
				if err != nil {
					return err
				}
				return writeJSON(out, result)
			}),
		userAction(deps, "refresh", "Rotate a session; reads the refresh token from stdin", cobra.NoArgs,
			func(ctx context.Context, svc *services, _ []string, in *bufio.Reader, out io.Writer) error {
				secret, err := readLine(in)
				if err != nil {
					return err
				}
				result, err := svc.sessions.Refresh(ctx, secret)
				if err != nil {
					return err
				}
				return writeJSON(out, result)
			}),
		userAction(deps, "logout", "Revoke a session; reads the refresh token from stdin", cobra.NoArgs,
			func(ctx context.Context, svc *services, _ []string, in *bufio.Reader, out io.Writer) error {
				secret, err := readLine(in)
				if err != nil {
					return err
				}
				if err := svc.sessions.Logout(ctx, secret); err != nil {
					return err
				}
				return writeLine(out, "Logged out")
			}),
		userAction(deps, "verify", "Check an access token; reads it from stdin", cobra.NoArgs,
			func(ctx context.Context, svc *services, _ []string, in *bufio.Reader, out io.Writer) error {
				token, err := readLine(in)
				if err != nil {
					return err
				}
				claims, err := svc.sessions.Authenticate(ctx, token)
				if err != nil {
					return err
				}
				return writeJSON(out, map[string]any{
					"user_id":    claims.Subject.String(),
					"jti":        claims.ID,
					"issued_at":  claims.IssuedAt,
					"expires_at": claims.ExpiresAt,
				})
			}),
		userAction(deps, "request-reset EMAIL", "Mail a password reset link", cobra.ExactArgs(1),
			func(ctx context.Context, svc *services, args []string, _ *bufio.Reader, out io.Writer) error {
				if err := svc.resets.RequestReset(ctx, args[0]); err != nil {
					return err
				}
				return writeLine(out, auth.GenericResetMessage)
			}),
		userAction(deps, "confirm-reset", "Redeem a reset token; reads the token then the new password from stdin", cobra.NoArgs,
			func(ctx context.Context, svc *services, _ []string, in *bufio.Reader, out io.Writer) error {
				secret, err := readLine(in)
				if err != nil {
					return err
				}
				password, err := readLine(in)
				if err != nil {
					return err
				}
				if err := svc.resets.ConfirmReset(ctx, secret, password); err != nil {
					return err
				}
				return writeLine(out, auth.ResetCompletedMessage)
			}),
	)
	return cmd
}

type userFunc func(ctx context.Context, svc *services, args []string, in *bufio.Reader, out io.Writer) error

// userAction builds a subcommand that runs fn against freshly wired services.
func userAction(deps *Deps, use, short string, args cobra.PositionalArgs, fn userFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			d := deps.withDefaults()

			logger, err := setupLogging(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			pool, err := openPool(ctx, cfg, d)
			if err != nil {
				return oops.Code("USER_DB_FAILED").With("operation", "connect to database").Wrap(err)
			}
			defer pool.Close()

			mailer, err := d.NewMailer(cfg, logger)
			if err != nil {
				return oops.Code("USER_INIT_FAILED").Wrap(err)
			}
			svc, err := newServices(cfg, pool, mailer, logger)
			if err != nil {
				return oops.Code("USER_INIT_FAILED").Wrap(err)
			}

			err = fn(ctx, svc, args, bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
			return publicError(logger, cmd.Name(), err)
		},
	}
}

// publicError logs err in full and returns only what a caller may see.
func publicError(logger *slog.Logger, operation string, err error) error {
	if err == nil {
		return nil
	}
	kind := auth.KindOf(err)
	if kind == auth.KindInternal {
		errutil.LogError(logger, operation+" failed", err)
	}
	return oops.Code(errutil.Code(err)).
		With("kind", kind.String()).
		Errorf("%s", auth.PublicMessage(err))
}

// readLine returns the next stdin line without its line ending.
func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", oops.Code("USER_INPUT_MISSING").
			Wrap(&auth.Error{Kind: auth.KindValidation, Message: "expected a line on stdin"})
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return oops.Wrap(enc.Encode(v))
}

func writeLine(w io.Writer, s string) error {
	_, err := io.WriteString(w, s+"\n")
	return oops.Wrap(err)
}
