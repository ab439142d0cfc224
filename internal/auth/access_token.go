// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinAccessTokenSecretLen is the shortest accepted HMAC signing secret in bytes.
const MinAccessTokenSecretLen = 32

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	Subject   ulid.ULID
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AccessTokenCodec issues and verifies HS256-signed access tokens.
// Access tokens are stateless: nothing is stored, and a token stays valid
// until it expires even after the session that produced it is revoked.
type AccessTokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures an AccessTokenCodec.
type CodecOption func(*AccessTokenCodec)

// WithIssuer sets the iss claim on issued tokens and requires it on verify.
func WithIssuer(issuer string) CodecOption {
	return func(c *AccessTokenCodec) {
		c.issuer = issuer
	}
}

// WithCodecClock overrides the time source.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *AccessTokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewAccessTokenCodec creates a codec signing with secret.
func NewAccessTokenCodec(secret []byte, opts ...CodecOption) (*AccessTokenCodec, error) {
	if len(secret) < MinAccessTokenSecretLen {
		return nil, oops.Code("ACCESS_TOKEN_SECRET_TOO_SHORT").
			With("min_length", MinAccessTokenSecretLen).
			Errorf("signing secret must be at least %d bytes", MinAccessTokenSecretLen)
	}
	c := &AccessTokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for userID that expires after ttl. The returned expiry
// is the exp claim as encoded, truncated to whole seconds.
func (c *AccessTokenCodec) Issue(userID ulid.ULID, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, oops.Code("ACCESS_TOKEN_INVALID_TTL").
			With("ttl", ttl.String()).
			Errorf("access token ttl must be positive")
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    c.issuer,
		ID:        ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("ACCESS_TOKEN_SIGN_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks the signature, algorithm and expiry of token. Every failure
// returns the same unauthorized error.
func (c *AccessTokenCodec) Verify(token string) (*AccessClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return nil, oops.Code("ACCESS_TOKEN_INVALID").
			With("reason", jwtFailureReason(err)).
			Wrap(errUnauthorized)
	}

	subject, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, oops.Code("ACCESS_TOKEN_INVALID").
			With("reason", "malformed subject").
			Wrap(errUnauthorized)
	}

	out := &AccessClaims{
		Subject:   subject,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func jwtFailureReason(err error) string {
	switch {
	case err == nil:
		return "invalid"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "rejected"
	}
}
