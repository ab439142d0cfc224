// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/store/storetest"
)

var _ = Describe("Credential schema", Ordered, func() {
	var (
		ctx      context.Context
		db       *storetest.Database
		migrator *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		db, err = storetest.Start(ctx)
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(db.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			Expect(migrator.Close()).To(Succeed())
		}
		if db != nil {
			db.Close(ctx)
		}
	})

	tableExists := func(name string) bool {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			name).Scan(&exists)
		Expect(err).NotTo(HaveOccurred())
		return exists
	}

	It("reports every migration applied after startup", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Pending).To(BeEmpty())
		Expect(status.Applied).NotTo(BeEmpty())
	})

	It("creates the credential tables", func() {
		for _, table := range []string{"users", "refresh_tokens", "password_resets"} {
			Expect(tableExists(table)).To(BeTrue(), table)
		}
	})

	It("rejects duplicate emails", func() {
		insert := `INSERT INTO users (id, email, password_hash) VALUES ($1, 'dup@example.com', 'x')`
		_, err := db.Pool.Exec(ctx, insert, "01JTESTUSER0000000000000A1")
		Expect(err).NotTo(HaveOccurred())
		_, err = db.Pool.Exec(ctx, insert, "01JTESTUSER0000000000000A2")
		Expect(err).To(MatchError(ContainSubstring("users_email_key")))
		Expect(db.Truncate(ctx)).To(Succeed())
	})

	It("drops and re-creates the schema", func() {
		Expect(migrator.Down()).To(Succeed())
		Expect(tableExists("users")).To(BeFalse())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed())
		Expect(tableExists("users")).To(BeTrue())
	})
})
