package openshelf_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/split"
	"github.com/xraph/openshelf/store/memory"
)

func newShelf(t *testing.T, opts ...openshelf.Option) *openshelf.Shelf {
	t.Helper()
	opts = append([]openshelf.Option{openshelf.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	s, err := openshelf.New(memory.New(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

// publish creates a book by "author" with one chapter per price, indexed
// from 0.
func publish(t *testing.T, s *openshelf.Shelf, prices ...int64) *book.Book {
	t.Helper()
	in := openshelf.CreateBookInput{
		Author:      "author",
		Title:       "Parable of the Sower",
		Description: "Earthseed",
		Genre:       "scifi",
		ImageURL:    "https://img.example/sower.png",
	}
	for i, p := range prices {
		in.Chapters = append(in.Chapters, openshelf.ChapterInput{
			Index: i,
			Name:  "Chapter",
			URL:   "https://c.example/" + string(rune('a'+i)),
			Price: p,
		})
	}
	b, err := s.CreateBook(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	return b
}

func fund(t *testing.T, s *openshelf.Shelf, who string, amount int64) {
	t.Helper()
	if _, err := s.Deposit(context.Background(), who, amount); err != nil {
		t.Fatalf("Deposit(%s): %v", who, err)
	}
}

func balance(t *testing.T, s *openshelf.Shelf, who string) int64 {
	t.Helper()
	m, err := s.Balance(context.Background(), who)
	if err != nil {
		t.Fatalf("Balance(%s): %v", who, err)
	}
	return m.Amount
}

func getBook(t *testing.T, s *openshelf.Shelf, b *book.Book) *book.Book {
	t.Helper()
	got, err := s.GetBook(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	return got
}

func expectKind(t *testing.T, err error, want openshelf.Kind) {
	t.Helper()
	if got := openshelf.KindOf(err); got != want {
		t.Fatalf("kind = %q (err %v), want %q", got, err, want)
	}
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *openshelf.Policy)
	}{
		{"split sum", func(p *openshelf.Policy) { p.Split = split.Policy{AuthorBps: 5000, StakeBps: 1000, PlatformBps: 1000} }},
		{"currency", func(p *openshelf.Policy) { p.Currency = "doubloon" }},
		{"platform", func(p *openshelf.Policy) { p.PlatformAccount = " " }},
		{"platform pool", func(p *openshelf.Policy) { p.PlatformAccount = "book:x:revenue" }},
		{"pricing", func(p *openshelf.Policy) { p.Pricing = "auction" }},
		{"max chapters", func(p *openshelf.Policy) { p.MaxChapters = 0 }},
		{"max stakers", func(p *openshelf.Policy) { p.MaxStakers = 0 }},
		{"mint concurrency", func(p *openshelf.Policy) { p.MintConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := openshelf.DefaultPolicy()
			tt.mutate(&p)
			_, err := openshelf.New(memory.New(), openshelf.WithPolicy(p))
			if !errors.Is(err, openshelf.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := openshelf.DefaultPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	if p.Split != split.Default || p.Pricing != openshelf.PricingSumOfChapters {
		t.Errorf("unexpected defaults %+v", p)
	}
	if p.MaxChapters != 255 || p.MaxStakers != 255 || p.MaxStakeAmount != 10_000_000_000 {
		t.Errorf("unexpected limits %+v", p)
	}
}

func TestWithSplit(t *testing.T) {
	s := newShelf(t, openshelf.WithSplit(split.NoStaking))
	if s.Policy().Split != split.NoStaking {
		t.Errorf("split = %v", s.Policy().Split)
	}
}

func TestDeposit(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()

	fund(t, s, "bob", 40)
	fund(t, s, "bob", 2)
	if got := balance(t, s, "bob"); got != 42 {
		t.Errorf("balance = %d, want 42", got)
	}

	tests := []struct {
		name   string
		to     string
		amount int64
	}{
		{"zero", "bob", 0},
		{"negative", "bob", -5},
		{"empty account", "", 5},
		{"pool account", "book:x:revenue", 5},
		{"overflow", "bob", math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Deposit(ctx, tt.to, tt.amount)
			expectKind(t, err, openshelf.KindInvalidInput)
		})
	}
	if got := balance(t, s, "bob"); got != 42 {
		t.Errorf("balance after rejected deposits = %d, want 42", got)
	}
}

func TestStatementReconcilesJournal(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 30, 30, 40)

	fund(t, s, "author", 50)
	if _, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "author", ChapterIndex: 0}); err != nil {
		t.Fatalf("PurchaseChapter: %v", err)
	}

	st, err := s.Statement(ctx, "author")
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}
	// The author pays 30 and is paid the author and redirected stake shares.
	if st.Credits.Amount != 77 || st.Debits.Amount != 30 || st.Balance.Amount != 47 {
		t.Errorf("statement = %+v", st)
	}
	if !st.Reconciled() || st.Entries != 3 {
		t.Errorf("reconciled = %v, entries = %d", st.Reconciled(), st.Entries)
	}

	empty, err := s.Statement(ctx, "nobody")
	if err != nil {
		t.Fatalf("Statement(nobody): %v", err)
	}
	if !empty.Net.IsZero() || !empty.Reconciled() || empty.Entries != 0 {
		t.Errorf("empty statement = %+v", empty)
	}

	_, err = s.Statement(ctx, " ")
	expectKind(t, err, openshelf.KindInvalidInput)
}
