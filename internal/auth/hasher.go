// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

const (
	argon2SaltLen = 16

	// Upper bounds applied when decoding stored digests so that a corrupt
	// row cannot request an unbounded amount of work.
	maxArgon2MemoryKiB = 4 * 1024 * 1024
	maxArgon2Time      = 64
	maxArgon2KeyLen    = 1024
)

// Argon2Params are the tunable argon2id cost parameters.
type Argon2Params struct {
	Time      uint32 `koanf:"time" json:"time" yaml:"time"`
	MemoryKiB uint32 `koanf:"memory_kib" json:"memory_kib" yaml:"memory_kib"`
	Threads   uint8  `koanf:"threads" json:"threads" yaml:"threads"`
	KeyLen    uint32 `koanf:"key_len" json:"key_len" yaml:"key_len"`
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:      1,
		MemoryKiB: 64 * 1024,
		Threads:   4,
		KeyLen:    32,
	}
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher derives and checks password digests.
type PasswordHasher interface {
	// Hash produces a self-describing digest of the password with a fresh salt.
	Hash(password string) (string, error)

	// Verify returns nil when password matches encoded. A mismatch and an
	// unparseable digest produce the same unauthorized error.
	Verify(password, encoded string) error

	// NeedsUpgrade reports whether encoded should be re-derived with the
	// current parameters.
	NeedsUpgrade(encoded string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id and PHC strings.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher with the given parameters. Zero fields
// fall back to DefaultArgon2Params.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = def.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	if params.KeyLen == 0 {
		params.KeyLen = def.KeyLen
	}
	return &Argon2idHasher{params: params}
}

// Params returns the parameters new digests are derived with.
func (h *Argon2idHasher) Params() Argon2Params {
	return h.params
}

// Hash produces an argon2id digest in PHC format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	p := h.params
	key := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.MemoryKiB,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an encoded argon2id digest.
func (h *Argon2idHasher) Verify(password, encoded string) error {
	d, err := decodeArgon2id(encoded)
	if err != nil {
		return oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", "malformed digest").
			Wrap(errUnauthorized)
	}

	computed := argon2.IDKey([]byte(password), d.salt, d.params.Time, d.params.MemoryKiB, d.params.Threads, d.params.KeyLen)
	if subtle.ConstantTimeCompare(computed, d.key) != 1 {
		return oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", "password mismatch").
			Wrap(errUnauthorized)
	}
	return nil
}

// NeedsUpgrade returns true if the digest is not argon2id or was derived with
// parameters other than the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(encoded string) bool {
	d, err := decodeArgon2id(encoded)
	if err != nil {
		return true
	}
	return d.version != argon2.Version || d.params != h.params
}

type argon2idDigest struct {
	version int
	params  Argon2Params
	salt    []byte
	key     []byte
}

func decodeArgon2id(encoded string) (*argon2idDigest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	d := &argon2idDigest{}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &d.version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	if time == 0 || time > maxArgon2Time {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("time value %d out of range", time)
	}
	if memory == 0 || memory > maxArgon2MemoryKiB {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("memory value %d out of range", memory)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > maxArgon2KeyLen {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	d.params = Argon2Params{
		Time:      time,
		MemoryKiB: memory,
		Threads:   uint8(threads),
		KeyLen:    uint32(len(key)),
	}
	d.salt = salt
	d.key = key
	return d, nil
}
