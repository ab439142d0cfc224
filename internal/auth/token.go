// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the entropy of every opaque secret (refresh and reset tokens).
const TokenBytes = 32

// GenerateToken creates a random opaque secret and its digest.
// The secret goes to the client; only the digest is persisted.
func GenerateToken() (secret, hash string, err error) {
	b := make([]byte, TokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("AUTH_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	secret = hex.EncodeToString(b)
	return secret, HashToken(secret), nil
}

// HashToken returns the lower-case hex sha256 digest of secret. The digest is
// unsalted so that it can be used as a lookup key.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
