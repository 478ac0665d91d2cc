// Package storetest is a conformance suite shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/accessgate"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/purchase"
	"github.com/xraph/openshelf/split"
	"github.com/xraph/openshelf/store"
	"github.com/xraph/openshelf/types"
)

// Factory returns a fresh, migrated store. It should register cleanup on t.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"BookRoundTrip", testBookRoundTrip},
		{"BookNotFound", testBookNotFound},
		{"BookDuplicate", testBookDuplicate},
		{"ListBooks", testListBooks},
		{"DepositAndBalance", testDepositAndBalance},
		{"DepositOverflow", testDepositOverflow},
		{"CommitPurchase", testCommitPurchase},
		{"CommitConflict", testCommitConflict},
		{"CommitInsufficientFunds", testCommitInsufficientFunds},
		{"CommitUnknownBook", testCommitUnknownBook},
		{"CommitOverflow", testCommitOverflow},
		{"ReceiptAccess", testReceiptAccess},
		{"ListReceipts", testListReceipts},
		{"ListTransfers", testListTransfers},
		{"Collections", testCollections},
		{"Tokens", testTokens},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewBook returns a two-chapter book by author ready to be created.
func NewBook(author string) *book.Book {
	return &book.Book{
		Entity:        types.NewEntity(time.Now()),
		ID:            id.NewBookID(),
		Author:        author,
		Title:         "The Left Hand of Darkness",
		Description:   "Winter",
		Genre:         "scifi",
		ImageURL:      "https://img.example/lhod.png",
		FullBookPrice: 30,
		Chapters: []book.Chapter{
			{Index: 0, Name: "A Parade in Erhenrang", URL: "https://c/0", Price: 10, Readers: []string{}},
			{Index: 1, Name: "The Place Inside the Blizzard", URL: "https://c/1", Price: 20, Readers: []string{}},
		},
		Stakes:  []book.Stake{},
		Readers: []string{},
	}
}

func mustCreate(t *testing.T, s store.Store, b *book.Book) {
	t.Helper()
	if err := s.CreateBook(context.Background(), b); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
}

func mustDeposit(t *testing.T, s store.Store, to string, amount int64) {
	t.Helper()
	err := s.Deposit(context.Background(), &account.Transfer{
		ID:        id.NewTransferID(),
		To:        to,
		Amount:    amount,
		Kind:      account.KindDeposit,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
}

func mustBalance(t *testing.T, s store.Store, name string, want int64) {
	t.Helper()
	got, err := s.GetBalance(context.Background(), name)
	if err != nil {
		t.Fatalf("GetBalance(%s): %v", name, err)
	}
	if got != want {
		t.Errorf("balance(%s) = %d, want %d", name, got, want)
	}
}

// purchaseChange builds the change a chapter-0 purchase by buyer produces.
func purchaseChange(b *book.Book, buyer string) *store.Change {
	next := b.Clone()
	next.Chapters[0].Readers = append(next.Chapters[0].Readers, buyer)
	now := time.Now().UTC()
	rid := id.NewPurchaseID()
	return &store.Change{
		Book: next,
		Transfers: []*account.Transfer{
			{ID: id.NewTransferID(), BookID: b.ID, From: buyer, To: b.Author, Amount: 7, Kind: account.KindPurchaseAuthor, Reference: rid.String(), CreatedAt: now},
			{ID: id.NewTransferID(), BookID: b.ID, From: buyer, To: "platform", Amount: 1, Kind: account.KindPurchasePlatform, Reference: rid.String(), CreatedAt: now},
			{ID: id.NewTransferID(), BookID: b.ID, From: buyer, To: account.RevenuePool(b.ID), Amount: 2, Kind: account.KindPurchaseStakePool, Reference: rid.String(), CreatedAt: now},
		},
		Receipt: &purchase.Receipt{
			ID:           rid,
			BookID:       b.ID,
			Buyer:        buyer,
			Mode:         purchase.ModeChapter,
			ChapterIndex: 0,
			Price:        10,
			Currency:     "sol",
			Shares:       split.Shares{Author: 7, Stake: 2, Platform: 1},
			Access:       purchase.AccessState{Status: purchase.AccessNone},
			CreatedAt:    now,
		},
	}
}

func testBookRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("ursula")
	b.Stakes = []book.Stake{{Staker: "sam", Amount: 50, Earnings: 3, CreatedAt: time.Now().UTC()}}
	b.TotalStake = 50
	b.Readers = []string{"ann"}
	mustCreate(t, s, b)

	got, err := s.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.ID.String() != b.ID.String() || got.Author != "ursula" || got.Title != b.Title {
		t.Errorf("unexpected book %+v", got)
	}
	if len(got.Chapters) != 2 || got.Chapters[1].Price != 20 || got.Chapters[1].Name != b.Chapters[1].Name {
		t.Errorf("chapters = %+v", got.Chapters)
	}
	if st, ok := got.Stake("sam"); !ok || st.Amount != 50 || st.Earnings != 3 {
		t.Errorf("stake = %+v", st)
	}
	if got.TotalStake != 50 || !got.HasReader("ann") || got.FullBookPrice != 30 {
		t.Errorf("unexpected book %+v", got)
	}

	// Returned books are copies.
	got.Title = "changed"
	again, err := s.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if again.Title == "changed" {
		t.Error("store returned a shared book")
	}
}

func testBookNotFound(t *testing.T, s store.Store) {
	_, err := s.GetBook(context.Background(), id.NewBookID())
	if !errors.Is(err, openshelf.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func testBookDuplicate(t *testing.T, s store.Store) {
	b := NewBook("ursula")
	mustCreate(t, s, b)
	if err := s.CreateBook(context.Background(), b); !errors.Is(err, openshelf.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func testListBooks(t *testing.T, s store.Store) {
	ctx := context.Background()
	byAuthor := map[string]string{}
	for _, author := range []string{"ursula", "ursula", "octavia"} {
		b := NewBook(author)
		mustCreate(t, s, b)
		byAuthor[b.ID.String()] = author
	}

	tests := []struct {
		name   string
		opts   book.ListOpts
		want   int
		author string
	}{
		{"all", book.ListOpts{}, 3, ""},
		{"author", book.ListOpts{Author: "ursula"}, 2, "ursula"},
		{"limit", book.ListOpts{Limit: 2}, 2, ""},
		{"offset", book.ListOpts{Offset: 1}, 2, ""},
		{"filtered page", book.ListOpts{Author: "ursula", Offset: 1, Limit: 5}, 1, "ursula"},
		{"genre miss", book.ListOpts{Genre: "poetry"}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListBooks(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListBooks: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d books, want %d", len(got), tt.want)
			}
			for _, b := range got {
				author, ok := byAuthor[b.ID.String()]
				if !ok {
					t.Errorf("unexpected book %s", b.ID)
				}
				if tt.author != "" && author != tt.author {
					t.Errorf("book %s by %s, want %s", b.ID, author, tt.author)
				}
			}
		})
	}

	// Pages do not overlap.
	first, err := s.ListBooks(ctx, book.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	rest, err := s.ListBooks(ctx, book.ListOpts{Offset: 2})
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	for _, a := range first {
		for _, b := range rest {
			if a.ID.String() == b.ID.String() {
				t.Errorf("book %s on two pages", a.ID)
			}
		}
	}
}

func testDepositAndBalance(t *testing.T, s store.Store) {
	mustBalance(t, s, "nobody", 0)
	mustDeposit(t, s, "bob", 40)
	mustDeposit(t, s, "bob", 2)
	mustBalance(t, s, "bob", 42)

	err := s.Deposit(context.Background(), &account.Transfer{
		ID: id.NewTransferID(), From: "alice", To: "bob", Amount: 1, Kind: account.KindDeposit,
	})
	if !errors.Is(err, openshelf.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for sourced deposit, got %v", err)
	}
}

func testDepositOverflow(t *testing.T, s store.Store) {
	mustDeposit(t, s, "bob", math.MaxInt64)

	err := s.Deposit(context.Background(), &account.Transfer{
		ID: id.NewTransferID(), To: "bob", Amount: 2, Kind: account.KindDeposit, CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, openshelf.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for overflowing deposit, got %v", err)
	}
	mustBalance(t, s, "bob", math.MaxInt64)

	transfers, err := s.ListTransfers(context.Background(), account.ListOpts{Account: "bob"})
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if len(transfers) != 1 {
		t.Errorf("journaled %d transfers, want 1", len(transfers))
	}
}

func testCommitPurchase(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("ursula")
	mustCreate(t, s, b)
	mustDeposit(t, s, "bob", 15)

	ch := purchaseChange(b, "bob")
	if err := s.Commit(ctx, ch); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if ch.Book.Version != b.Version+1 {
		t.Errorf("version = %d, want %d", ch.Book.Version, b.Version+1)
	}

	got, err := s.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.Version != b.Version+1 {
		t.Errorf("stored version = %d, want %d", got.Version, b.Version+1)
	}
	if !got.Chapters[0].HasReader("bob") {
		t.Error("buyer not recorded as chapter reader")
	}

	mustBalance(t, s, "bob", 5)
	mustBalance(t, s, "ursula", 7)
	mustBalance(t, s, "platform", 1)
	mustBalance(t, s, account.RevenuePool(b.ID), 2)

	r, err := s.GetReceipt(ctx, ch.Receipt.ID)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if r.Buyer != "bob" || r.Price != 10 || r.Shares.Author != 7 || r.Mode != purchase.ModeChapter {
		t.Errorf("unexpected receipt %+v", r)
	}

	// A second commit against the new version succeeds.
	mustDeposit(t, s, "carol", 10)
	ch2 := purchaseChange(got, "carol")
	if err := s.Commit(ctx, ch2); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	mustBalance(t, s, "ursula", 14)
}

func testCommitConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("ursula")
	mustCreate(t, s, b)
	mustDeposit(t, s, "bob", 100)

	if err := s.Commit(ctx, purchaseChange(b, "bob")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	stale := purchaseChange(b, "bob")
	if err := s.Commit(ctx, stale); !errors.Is(err, openshelf.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mustBalance(t, s, "bob", 90)
	if _, err := s.GetReceipt(ctx, stale.Receipt.ID); !errors.Is(err, openshelf.ErrReceiptNotFound) {
		t.Errorf("stale receipt stored: %v", err)
	}
}

func testCommitInsufficientFunds(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("ursula")
	mustCreate(t, s, b)
	mustDeposit(t, s, "bob", 9)

	ch := purchaseChange(b, "bob")
	if err := s.Commit(ctx, ch); !errors.Is(err, openshelf.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Nothing was applied.
	mustBalance(t, s, "bob", 9)
	mustBalance(t, s, "ursula", 0)
	mustBalance(t, s, account.RevenuePool(b.ID), 0)
	got, err := s.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.Version != b.Version || got.Chapters[0].HasReader("bob") {
		t.Errorf("book changed by a failed commit: %+v", got)
	}
	if _, err := s.GetReceipt(ctx, ch.Receipt.ID); !errors.Is(err, openshelf.ErrReceiptNotFound) {
		t.Errorf("receipt stored by a failed commit: %v", err)
	}
	transfers, err := s.ListTransfers(ctx, account.ListOpts{BookID: b.ID})
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if len(transfers) != 0 {
		t.Errorf("journaled %d transfers for a failed commit", len(transfers))
	}
}

func testCommitOverflow(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("ursula")
	mustCreate(t, s, b)
	mustDeposit(t, s, "bob", 10)
	mustDeposit(t, s, "ursula", math.MaxInt64)

	ch := purchaseChange(b, "bob")
	if err := s.Commit(ctx, ch); !errors.Is(err, openshelf.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	mustBalance(t, s, "bob", 10)
	mustBalance(t, s, "ursula", math.MaxInt64)
	mustBalance(t, s, "platform", 0)
	got, err := s.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.Version != b.Version {
		t.Errorf("book version moved from %d to %d", b.Version, got.Version)
	}
}

func testCommitUnknownBook(t *testing.T, s store.Store) {
	ch := purchaseChange(NewBook("ursula"), "bob")
	ch.Transfers = nil
	if err := s.Commit(context.Background(), ch); !errors.Is(err, openshelf.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func testReceiptAccess(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("ursula")
	mustCreate(t, s, b)
	mustDeposit(t, s, "bob", 10)
	ch := purchaseChange(b, "bob")
	ch.Receipt.NeedsAccessToken = true
	ch.Receipt.Access.Status = purchase.AccessPending
	if err := s.Commit(ctx, ch); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	state := purchase.AccessState{
		Status:    purchase.AccessIssued,
		AssetID:   "asset-1",
		Attempts:  2,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.UpdateReceiptAccess(ctx, ch.Receipt.ID, state); err != nil {
		t.Fatalf("UpdateReceiptAccess: %v", err)
	}
	r, err := s.GetReceipt(ctx, ch.Receipt.ID)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if r.Access.Status != purchase.AccessIssued || r.Access.AssetID != "asset-1" || r.Access.Attempts != 2 {
		t.Errorf("access = %+v", r.Access)
	}
	if !r.NeedsAccessToken {
		t.Error("NeedsAccessToken lost")
	}

	err = s.UpdateReceiptAccess(ctx, id.NewPurchaseID(), state)
	if !errors.Is(err, openshelf.ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got %v", err)
	}
}

func testListReceipts(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("ursula")
	mustCreate(t, s, b)
	mustDeposit(t, s, "bob", 10)
	mustDeposit(t, s, "carol", 10)

	first := purchaseChange(b, "bob")
	first.Receipt.Access.Status = purchase.AccessFailed
	if err := s.Commit(ctx, first); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	second := purchaseChange(first.Book, "carol")
	if err := s.Commit(ctx, second); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	all, err := s.ListReceipts(ctx, purchase.ListOpts{BookID: b.ID})
	if err != nil {
		t.Fatalf("ListReceipts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d receipts, want 2", len(all))
	}

	byBuyer, err := s.ListReceipts(ctx, purchase.ListOpts{Buyer: "carol"})
	if err != nil {
		t.Fatalf("ListReceipts: %v", err)
	}
	if len(byBuyer) != 1 || byBuyer[0].Buyer != "carol" {
		t.Errorf("by buyer = %v", byBuyer)
	}

	failed, err := s.ListReceipts(ctx, purchase.ListOpts{
		AccessStatuses: []purchase.AccessStatus{purchase.AccessPending, purchase.AccessFailed},
	})
	if err != nil {
		t.Fatalf("ListReceipts: %v", err)
	}
	if len(failed) != 1 || failed[0].Buyer != "bob" {
		t.Errorf("by status = %v", failed)
	}
}

func testListTransfers(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("ursula")
	mustCreate(t, s, b)
	mustDeposit(t, s, "bob", 10)
	if err := s.Commit(ctx, purchaseChange(b, "bob")); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tests := []struct {
		name string
		opts account.ListOpts
		want int
	}{
		{"account", account.ListOpts{Account: "bob"}, 4},
		{"book", account.ListOpts{BookID: b.ID}, 3},
		{"kind", account.ListOpts{Kind: account.KindPurchaseAuthor}, 1},
		{"limit", account.ListOpts{Account: "bob", Limit: 2}, 2},
		{"offset", account.ListOpts{Account: "bob", Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTransfers(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListTransfers: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d transfers, want %d", len(got), tt.want)
			}
		})
	}

	deposits, err := s.ListTransfers(ctx, account.ListOpts{Kind: account.KindDeposit})
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if len(deposits) != 1 || deposits[0].From != "" || deposits[0].To != "bob" || deposits[0].Amount != 10 {
		t.Errorf("deposits = %+v", deposits)
	}
}

func testCollections(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.GetCollection(ctx, "bob"); !errors.Is(err, openshelf.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}

	c := &accessgate.Collection{Owner: "bob", CollectionID: "col-1", CreatedAt: time.Now().UTC()}
	if err := s.SaveCollection(ctx, c); err != nil {
		t.Fatalf("SaveCollection: %v", err)
	}
	if err := s.SaveCollection(ctx, c); !errors.Is(err, openshelf.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	got, err := s.GetCollection(ctx, "bob")
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if got.CollectionID != "col-1" {
		t.Errorf("collection = %+v", got)
	}
}

func testTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	bookID := id.NewBookID()
	if _, err := s.GetToken(ctx, bookID, "bob"); !errors.Is(err, openshelf.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	now := time.Now().UTC()
	tok := &accessgate.Token{
		BookID:     bookID,
		Owner:      "bob",
		AssetID:    "asset-1",
		Attributes: map[string]string{"0": "pur_a"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.SaveToken(ctx, tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	tok.Attributes = map[string]string{"0": "pur_a", "fully_purchased": "pur_b"}
	if err := s.SaveToken(ctx, tok); err != nil {
		t.Fatalf("SaveToken upsert: %v", err)
	}

	got, err := s.GetToken(ctx, bookID, "bob")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if got.AssetID != "asset-1" || len(got.Attributes) != 2 || got.Attributes["fully_purchased"] != "pur_b" {
		t.Errorf("token = %+v", got)
	}
	if _, err := s.GetToken(ctx, bookID, "carol"); !errors.Is(err, openshelf.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound for another owner, got %v", err)
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
