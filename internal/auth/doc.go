// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth is the credential and session-lifecycle core of holoauth.
//
// # Domain Types
//
// Domain types (User, RefreshToken, PasswordReset) should be created using
// their constructors, which validate their inputs:
//   - NewUser - normalizes and validates the email
//   - NewRefreshToken - validates user, digest and expiry
//   - NewPasswordReset - validates user, digest and expiry
//
// Only digests of opaque secrets are ever persisted (see HashToken).
//
// # Services
//
//   - SessionManager - register, login, refresh rotation, logout
//   - PasswordResetService - reset request and confirmation
//   - Janitor - periodic removal of expired records
//
// Services are created with New* constructors that validate dependencies.
//
// # Errors
//
// Every error returned by a service is classified by KindOf. Messages safe
// for clients are available through PublicMessage; internal causes are
// logged, never surfaced.
package auth
