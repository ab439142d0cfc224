// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"context"
	"net/url"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/authtest"
	"github.com/holomush/holoauth/internal/auth/postgres"
)

const jwtSecret = "integration-secret-0123456789abcdef"

var linkToken = regexp.MustCompile(`token=(\S+)`)

// fixture wires the real repositories over the container database.
type fixture struct {
	sessions *auth.SessionManager
	resets   *auth.PasswordResetService
	janitor  *auth.Janitor
	mailer   *authtest.RecordingMailer
	now      atomic.Pointer[time.Time]
}

func (f *fixture) clock() time.Time { return *f.now.Load() }

func (f *fixture) advance(d time.Duration) {
	next := f.clock().Add(d)
	f.now.Store(&next)
}

func newFixture() *fixture {
	f := &fixture{mailer: &authtest.RecordingMailer{}}
	start := time.Now().UTC().Truncate(time.Microsecond)
	f.now.Store(&start)

	users := postgres.NewUserRepository(db.Pool)
	tokens := postgres.NewRefreshTokenRepository(db.Pool)
	resets := postgres.NewPasswordResetRepository(db.Pool)
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1, KeyLen: 32})

	codec, err := auth.NewAccessTokenCodec([]byte(jwtSecret), auth.WithIssuer("holoauth-it"), auth.WithCodecClock(f.clock))
	Expect(err).NotTo(HaveOccurred())

	f.sessions, err = auth.NewSessionManager(users, tokens, hasher, codec,
		auth.SessionConfig{AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour},
		auth.WithClock(f.clock))
	Expect(err).NotTo(HaveOccurred())

	f.resets, err = auth.NewPasswordResetService(auth.ResetDeps{
		Users:         users,
		Resets:        resets,
		RefreshTokens: tokens,
		Transactor:    postgres.NewTransactor(db.Pool),
		Hasher:        hasher,
		Mailer:        f.mailer,
	}, auth.ResetConfig{LinkBase: "https://app.example.com", TokenTTL: 30 * time.Minute}, auth.WithClock(f.clock))
	Expect(err).NotTo(HaveOccurred())

	f.janitor, err = auth.NewJanitor(tokens, resets, auth.WithClock(f.clock))
	Expect(err).NotTo(HaveOccurred())
	return f
}

// lastResetSecret extracts the secret from the most recent reset mail.
func (f *fixture) lastResetSecret() string {
	msg, ok := f.mailer.Last()
	Expect(ok).To(BeTrue(), "no reset mail was sent")
	m := linkToken.FindStringSubmatch(msg.Body)
	Expect(m).To(HaveLen(2))
	secret, err := url.QueryUnescape(m[1])
	Expect(err).NotTo(HaveOccurred())
	return secret
}

var _ = Describe("Session lifecycle", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		Expect(db.Truncate(ctx)).To(Succeed())
		f = newFixture()
	})

	It("registers, logs in, rotates and logs out", func() {
		reg, err := f.sessions.Register(ctx, "Alice@Example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())
		Expect(reg.User.Email).To(Equal("alice@example.com"))

		claims, err := f.sessions.Authenticate(ctx, reg.AccessToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Subject).To(Equal(reg.User.ID))

		login, err := f.sessions.Login(ctx, "alice@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())

		rotated, err := f.sessions.Refresh(ctx, login.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(rotated.RefreshToken).NotTo(Equal(login.RefreshToken))

		By("refusing to rotate the same secret twice")
		_, err = f.sessions.Refresh(ctx, login.RefreshToken)
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))

		Expect(f.sessions.Logout(ctx, rotated.RefreshToken)).To(Succeed())
		_, err = f.sessions.Refresh(ctx, rotated.RefreshToken)
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))

		By("leaving the other session alive")
		_, err = f.sessions.Refresh(ctx, reg.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a duplicate email regardless of case", func() {
		_, err := f.sessions.Register(ctx, "bob@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())

		_, err = f.sessions.Register(ctx, "BOB@example.com", "Otherpass2")
		Expect(auth.KindOf(err)).To(Equal(auth.KindConflict))
		Expect(auth.PublicMessage(err)).To(Equal("email already registered"))
	})

	It("rejects wrong passwords and unknown emails alike", func() {
		_, err := f.sessions.Register(ctx, "carol@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())

		_, wrong := f.sessions.Login(ctx, "carol@example.com", "Wrongpass1")
		_, unknown := f.sessions.Login(ctx, "nobody@example.com", "Goodpass1")
		Expect(auth.KindOf(wrong)).To(Equal(auth.KindUnauthorized))
		Expect(auth.PublicMessage(wrong)).To(Equal(auth.PublicMessage(unknown)))
	})

	It("lets exactly one concurrent refresh win", func() {
		reg, err := f.sessions.Register(ctx, "dave@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())

		const racers = 6
		var (
			wg      sync.WaitGroup
			success atomic.Int32
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if _, err := f.sessions.Refresh(ctx, reg.RefreshToken); err == nil {
					success.Add(1)
				} else {
					Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))
				}
			}()
		}
		wg.Wait()
		Expect(success.Load()).To(Equal(int32(1)))
	})

	It("expires refresh tokens and sweeps them", func() {
		reg, err := f.sessions.Register(ctx, "erin@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())

		f.advance(2 * time.Hour)
		_, err = f.sessions.Refresh(ctx, reg.RefreshToken)
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))

		login, err := f.sessions.Login(ctx, "erin@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())
		f.advance(2 * time.Hour)

		result, err := f.janitor.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.RefreshTokens).To(BeEquivalentTo(1))

		_, err = f.sessions.Refresh(ctx, login.RefreshToken)
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))
	})
})

var _ = Describe("Password reset", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		Expect(db.Truncate(ctx)).To(Succeed())
		f = newFixture()
	})

	It("resets the password and revokes every session", func() {
		reg, err := f.sessions.Register(ctx, "frank@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())
		_, err = f.sessions.Login(ctx, "frank@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())

		Expect(f.resets.RequestReset(ctx, "FRANK@example.com")).To(Succeed())
		msg, _ := f.mailer.Last()
		Expect(msg.To).To(Equal("frank@example.com"))

		Expect(f.resets.ConfirmReset(ctx, f.lastResetSecret(), "Newpass22")).To(Succeed())

		_, err = f.sessions.Refresh(ctx, reg.RefreshToken)
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))

		_, err = f.sessions.Login(ctx, "frank@example.com", "Goodpass1")
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))
		_, err = f.sessions.Login(ctx, "frank@example.com", "Newpass22")
		Expect(err).NotTo(HaveOccurred())
	})

	It("accepts a reset secret only once", func() {
		_, err := f.sessions.Register(ctx, "gina@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())
		Expect(f.resets.RequestReset(ctx, "gina@example.com")).To(Succeed())
		secret := f.lastResetSecret()

		Expect(f.resets.ConfirmReset(ctx, secret, "Newpass22")).To(Succeed())
		err = f.resets.ConfirmReset(ctx, secret, "Newpass33")
		Expect(auth.PublicMessage(err)).To(Equal("invalid or expired reset token"))
	})

	It("invalidates an earlier link when a new one is requested", func() {
		_, err := f.sessions.Register(ctx, "hank@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())

		Expect(f.resets.RequestReset(ctx, "hank@example.com")).To(Succeed())
		first := f.lastResetSecret()
		Expect(f.resets.RequestReset(ctx, "hank@example.com")).To(Succeed())
		second := f.lastResetSecret()

		Expect(auth.KindOf(f.resets.ConfirmReset(ctx, first, "Newpass22"))).To(Equal(auth.KindUnauthorized))
		Expect(f.resets.ConfirmReset(ctx, second, "Newpass22")).To(Succeed())
	})

	It("refuses an expired link", func() {
		_, err := f.sessions.Register(ctx, "iris@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())
		Expect(f.resets.RequestReset(ctx, "iris@example.com")).To(Succeed())

		f.advance(31 * time.Minute)
		err = f.resets.ConfirmReset(ctx, f.lastResetSecret(), "Newpass22")
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))

		_, err = f.sessions.Login(ctx, "iris@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred(), "the old password still works")
	})

	It("sends nothing for an unknown email", func() {
		Expect(f.resets.RequestReset(ctx, "ghost@example.com")).To(Succeed())
		Expect(f.mailer.Messages()).To(BeEmpty())
	})

	It("lets exactly one concurrent confirm win", func() {
		_, err := f.sessions.Register(ctx, "jack@example.com", "Goodpass1")
		Expect(err).NotTo(HaveOccurred())
		Expect(f.resets.RequestReset(ctx, "jack@example.com")).To(Succeed())
		secret := f.lastResetSecret()

		const racers = 5
		var (
			wg      sync.WaitGroup
			success atomic.Int32
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if err := f.resets.ConfirmReset(ctx, secret, "Newpass22"); err == nil {
					success.Add(1)
				} else {
					Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthorized))
				}
			}()
		}
		wg.Wait()
		Expect(success.Load()).To(Equal(int32(1)))
	})
})
