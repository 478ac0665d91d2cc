package bolt_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/store"
	boltstore "github.com/xraph/openshelf/store/bolt"
	"github.com/xraph/openshelf/store/storetest"
)

func newStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "openshelf.db"), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newStore(t) })
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "openshelf.db")

	s, err := boltstore.Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	b := storetest.NewBook("ursula")
	if err := s.CreateBook(ctx, b); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = boltstore.Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	got, err := s.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBook after reopen: %v", err)
	}
	if got.Title != b.Title || len(got.Chapters) != 2 {
		t.Errorf("book = %+v", got)
	}
}

func TestPingAfterClose(t *testing.T) {
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "openshelf.db"), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	_ = s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, openshelf.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}
