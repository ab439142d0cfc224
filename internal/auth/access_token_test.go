// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

func TestNewAccessTokenCodec(t *testing.T) {
	t.Run("rejects short secret", func(t *testing.T) {
		_, err := auth.NewAccessTokenCodec([]byte("too-short"))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCESS_TOKEN_SECRET_TOO_SHORT")
	})

	t.Run("accepts 32 byte secret", func(t *testing.T) {
		codec, err := auth.NewAccessTokenCodec([]byte(strings.Repeat("k", 32)))
		require.NoError(t, err)
		assert.NotNil(t, codec)
	})
}

func TestAccessTokenCodec_IssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, func() time.Time { return now })
	userID := ulid.Make()

	t.Run("round trip yields subject and expiry", func(t *testing.T) {
		token, exp, err := codec.Issue(userID, 15*time.Minute)
		require.NoError(t, err)
		assert.True(t, now.Add(15*time.Minute).Equal(exp))

		claims, err := codec.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.Subject)
		assert.True(t, claims.ExpiresAt.Equal(exp))
		assert.True(t, claims.IssuedAt.Equal(now))
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("tokens issued in the same second differ", func(t *testing.T) {
		a, _, err := codec.Issue(userID, time.Minute)
		require.NoError(t, err)
		b, _, err := codec.Issue(userID, time.Minute)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		_, _, err := codec.Issue(userID, 0)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCESS_TOKEN_INVALID_TTL")
	})
}

func TestAccessTokenCodec_VerifyRejects(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	clock := func() time.Time { return current }
	codec := newTestCodec(t, clock)
	userID := ulid.Make()

	token, _, err := codec.Issue(userID, 15*time.Minute)
	require.NoError(t, err)

	t.Run("expired token", func(t *testing.T) {
		current = issuedAt.Add(16 * time.Minute)
		defer func() { current = issuedAt }()

		_, err := codec.Verify(token)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
		errutil.AssertErrorContext(t, err, "reason", "expired")
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other, err := auth.NewAccessTokenCodec([]byte(strings.Repeat("x", 32)), auth.WithCodecClock(clock))
		require.NoError(t, err)
		foreign, _, err := other.Issue(userID, time.Minute)
		require.NoError(t, err)

		_, err = codec.Verify(foreign)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		parts[2] = strings.Repeat("A", len(parts[2]))
		_, err := codec.Verify(strings.Join(parts, "."))
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := codec.Verify("not.a.jwt")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		})
		s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(s)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("token without expiry", func(t *testing.T) {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: userID.String(),
		}).SignedString([]byte(testJWTSecret))
		require.NoError(t, err)

		_, err = codec.Verify(s)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("subject that is not a ULID", func(t *testing.T) {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		}).SignedString([]byte(testJWTSecret))
		require.NoError(t, err)

		_, err = codec.Verify(s)
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "reason", "malformed subject")
	})
}

func TestAccessTokenCodec_Issuer(t *testing.T) {
	secret := []byte(testJWTSecret)
	a, err := auth.NewAccessTokenCodec(secret, auth.WithIssuer("holoauth"))
	require.NoError(t, err)
	b, err := auth.NewAccessTokenCodec(secret, auth.WithIssuer("someone-else"))
	require.NoError(t, err)

	token, _, err := a.Issue(ulid.Make(), time.Minute)
	require.NoError(t, err)

	_, err = a.Verify(token)
	require.NoError(t, err)

	_, err = b.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}
