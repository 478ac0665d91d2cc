package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/xraph/openshelf/store"
	"github.com/xraph/openshelf/store/postgres"
	"github.com/xraph/openshelf/store/storetest"
)

// The suite needs a disposable database:
//
//	OPENSHELF_TEST_POSTGRES_DSN="postgres://localhost/openshelf_test?sslmode=disable" go test ./store/postgres
func TestConformance(t *testing.T) {
	dsn := os.Getenv("OPENSHELF_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OPENSHELF_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := postgres.Open(dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		err = s.DB().Exec(`TRUNCATE openshelf_books, openshelf_balances, openshelf_transfers,
			openshelf_receipts, openshelf_collections, openshelf_tokens RESTART IDENTITY`).Error
		if err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
