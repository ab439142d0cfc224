// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"net/http"
)

// Sentinel errors used to classify failures. Match with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed or weak input.
	ErrValidation = errors.New("invalid input")

	// ErrConflict marks a uniqueness violation such as a duplicate email.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized marks bad credentials or a bad, expired, used or revoked token.
	ErrUnauthorized = errors.New("unauthorized")
)

// Kind is the closed set of failure classes surfaced to callers.
type Kind uint8

// Failure kinds. KindInternal is the zero value so that anything unclassified
// is treated as an internal failure.
const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to the status code an HTTP boundary should use.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Error is a classified failure whose message is safe to return to a client.
// Services wrap it with an oops code; errors.As and errors.Is see through the wrapping.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Public failures shared by the services. Every unauthorized cause within a
// flow maps to the same value so callers cannot tell the causes apart.
var (
	errUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	errResetTokenInvalid = &Error{Kind: KindUnauthorized, Message: "invalid or expired reset token"}
	errEmailTaken        = &Error{Kind: KindConflict, Message: "email already registered"}
)

// KindOf classifies err. Unrecognized errors, including nil, are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// PublicMessage returns the message a client may see for err. Internal
// failures collapse to a fixed string so that causes stay in the logs.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	switch KindOf(err) {
	case KindValidation:
		return "invalid input"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	default:
		return "internal error"
	}
}
