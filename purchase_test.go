package openshelf_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/purchase"
)

// One staker holds the whole pool; chapter 0 of [30,30,40] is split 21/6/3.
func TestChapterPurchaseWithSoleStaker(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 30, 30, 40)

	fund(t, s, "sam", 50)
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 50}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}
	fund(t, s, "bob", 30)

	rc, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})
	if err != nil {
		t.Fatalf("PurchaseChapter: %v", err)
	}

	if rc.Shares.Author != 21 || rc.Shares.Stake != 6 || rc.Shares.Platform != 3 || rc.Shares.Redirected {
		t.Errorf("shares = %+v", rc.Shares)
	}
	if rc.Accrued != 6 || len(rc.Accruals) != 1 {
		t.Errorf("accruals = %+v (accrued %d)", rc.Accruals, rc.Accrued)
	}

	if got := balance(t, s, "author"); got != 21 {
		t.Errorf("author = %d, want 21", got)
	}
	if got := balance(t, s, account.RevenuePool(b.ID)); got != 6 {
		t.Errorf("stake pool = %d, want 6", got)
	}
	if got := balance(t, s, "platform"); got != 3 {
		t.Errorf("platform = %d, want 3", got)
	}
	if got := balance(t, s, "bob"); got != 0 {
		t.Errorf("bob = %d, want 0", got)
	}

	st, _ := getBook(t, s, b).Stake("sam")
	if st.Earnings != 6 {
		t.Errorf("sam earnings = %d, want 6", st.Earnings)
	}
}

// Without stakers the stake share goes to the author.
func TestPurchaseWithoutStakersPaysAuthor(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 30, 30, 40)
	fund(t, s, "bob", 30)

	rc, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})
	if err != nil {
		t.Fatalf("PurchaseChapter: %v", err)
	}

	if !rc.Shares.Redirected || rc.Shares.Stake != 0 || rc.Shares.Author != 27 || rc.Shares.Platform != 3 {
		t.Errorf("shares = %+v", rc.Shares)
	}
	if got := balance(t, s, "author"); got != 27 {
		t.Errorf("author = %d, want 27", got)
	}
	if got := balance(t, s, account.RevenuePool(b.ID)); got != 0 {
		t.Errorf("stake pool = %d, want 0", got)
	}
	if got := balance(t, s, "author") + balance(t, s, "platform") + balance(t, s, "bob"); got != 30 {
		t.Errorf("funds unaccounted for: total %d, want 30", got)
	}
}

func TestPurchaseChapterTwice(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "bob", 100)

	in := openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0}
	if _, err := s.PurchaseChapter(ctx, in); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	before := getBook(t, s, b)

	_, err := s.PurchaseChapter(ctx, in)
	expectKind(t, err, openshelf.KindAlreadyPurchased)

	after := getBook(t, s, b)
	if after.Version != before.Version || len(after.Chapters[0].Readers) != 1 {
		t.Errorf("state changed by a rejected purchase: %+v", after)
	}
	if got := balance(t, s, "bob"); got != 90 {
		t.Errorf("bob = %d, want 90", got)
	}
}

func TestPoolAccountsCannotPurchase(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 30, 30, 40)

	fund(t, s, "sam", 10)
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 10}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}
	fund(t, s, "bob", 100)
	if _, err := s.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{BookID: b.ID, Buyer: "bob"}); err != nil {
		t.Fatalf("PurchaseFullBook: %v", err)
	}

	for _, pool := range []string{account.RevenuePool(b.ID), account.PrincipalPool(b.ID)} {
		_, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: pool, ChapterIndex: 0})
		expectKind(t, err, openshelf.KindInvalidInput)
		_, err = s.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{BookID: b.ID, Buyer: pool})
		expectKind(t, err, openshelf.KindInvalidInput)
	}

	if got := balance(t, s, account.RevenuePool(b.ID)); got != 20 {
		t.Errorf("revenue pool = %d, want 20", got)
	}
	if got := balance(t, s, account.PrincipalPool(b.ID)); got != 10 {
		t.Errorf("principal pool = %d, want 10", got)
	}
	if got := getBook(t, s, b); len(got.Readers) != 1 {
		t.Errorf("readers = %v, want only bob", got.Readers)
	}
}

func TestPurchaseChapterInsufficientFunds(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "bob", 9)

	_, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})
	expectKind(t, err, openshelf.KindInsufficientFunds)

	if got := balance(t, s, "bob"); got != 9 {
		t.Errorf("bob = %d, want 9", got)
	}
	if got := getBook(t, s, b); got.Chapters[0].HasReader("bob") {
		t.Error("buyer recorded as reader after a failed purchase")
	}
	receipts, err := s.Receipts(ctx, purchase.ListOpts{BookID: b.ID})
	if err != nil {
		t.Fatalf("Receipts: %v", err)
	}
	if len(receipts) != 0 {
		t.Errorf("failed purchase left %d receipts", len(receipts))
	}
}

func TestPurchaseChapterErrors(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "bob", 100)

	_, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 3})
	expectKind(t, err, openshelf.KindInvalidChapterIndex)

	_, err = s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "", ChapterIndex: 0})
	expectKind(t, err, openshelf.KindInvalidInput)
}

func TestChapterPurchasesPromoteToFullReader(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10, 20)
	fund(t, s, "bob", 30)

	first, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})
	if err != nil {
		t.Fatalf("PurchaseChapter 0: %v", err)
	}
	if first.Promoted {
		t.Error("promoted after the first chapter")
	}
	second, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 1})
	if err != nil {
		t.Fatalf("PurchaseChapter 1: %v", err)
	}
	if !second.Promoted {
		t.Error("not promoted after buying every chapter")
	}
	if !getBook(t, s, b).HasReader("bob") {
		t.Error("bob is not a full-book reader")
	}

	_, err = s.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{BookID: b.ID, Buyer: "bob"})
	expectKind(t, err, openshelf.KindAlreadyPurchased)
}

func TestPurchaseFullBook(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 30, 30, 40)
	fund(t, s, "bob", 100)

	rc, err := s.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{BookID: b.ID, Buyer: "bob"})
	if err != nil {
		t.Fatalf("PurchaseFullBook: %v", err)
	}
	if rc.Mode != purchase.ModeFullBook || rc.Price != 100 || rc.Currency != "sol" {
		t.Errorf("receipt = %+v", rc)
	}

	got := getBook(t, s, b)
	if !got.HasReader("bob") {
		t.Error("bob missing from book readers")
	}
	for _, ch := range got.Chapters {
		if !ch.HasReader("bob") {
			t.Errorf("bob missing from chapter %d readers", ch.Index)
		}
	}

	_, err = s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 1})
	expectKind(t, err, openshelf.KindAlreadyPurchased)

	stored, err := s.GetReceipt(ctx, rc.ID)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if stored.Shares != rc.Shares {
		t.Errorf("stored shares %+v, want %+v", stored.Shares, rc.Shares)
	}
}

func TestPurchaseFreeChapter(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 0, 10)

	rc, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})
	if err != nil {
		t.Fatalf("free chapter: %v", err)
	}
	if rc.Shares.Total() != 0 {
		t.Errorf("shares = %+v", rc.Shares)
	}
	transfers, err := s.Transfers(ctx, account.ListOpts{Account: "bob"})
	if err != nil {
		t.Fatalf("Transfers: %v", err)
	}
	if len(transfers) != 0 {
		t.Errorf("free chapter produced %d transfers", len(transfers))
	}
}

func TestSplitConservation(t *testing.T) {
	for _, price := range []int64{0, 1, 2, 3, 7, 9, 10, 11, 33, 99, 101, 999_999_999} {
		t.Run(fmt.Sprint(price), func(t *testing.T) {
			s := newShelf(t)
			ctx := context.Background()
			b := publish(t, s, price)

			fund(t, s, "s1", 3)
			fund(t, s, "s2", 7)
			for staker, amount := range map[string]int64{"s1": 3, "s2": 7} {
				if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: staker, Amount: amount}); err != nil {
					t.Fatalf("StakeOnBook: %v", err)
				}
			}
			if price > 0 {
				fund(t, s, "bob", price)
			}

			rc, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})
			if err != nil {
				t.Fatalf("PurchaseChapter: %v", err)
			}
			if rc.Shares.Total() != price {
				t.Errorf("shares %+v sum to %d, want %d", rc.Shares, rc.Shares.Total(), price)
			}
			if rc.Accrued > rc.Shares.Stake {
				t.Errorf("accrued %d exceeds stake share %d", rc.Accrued, rc.Shares.Stake)
			}

			paid := balance(t, s, "author") + balance(t, s, "platform") + balance(t, s, account.RevenuePool(b.ID))
			if paid != price || balance(t, s, "bob") != 0 {
				t.Errorf("paid out %d of %d", paid, price)
			}
			assertTotalStake(t, getBook(t, s, b))
		})
	}
}

func assertTotalStake(t *testing.T, b *book.Book) {
	t.Helper()
	if b.TotalStake != b.StakeSum() {
		t.Errorf("total stake %d != sum of stakes %d", b.TotalStake, b.StakeSum())
	}
}

func TestConcurrentPurchases(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10, 20)

	fund(t, s, "sam", 100)
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 100}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}

	const buyers = 25
	for i := range buyers {
		fund(t, s, fmt.Sprintf("buyer-%d", i), 10)
	}

	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{
				BookID: b.ID, Buyer: fmt.Sprintf("buyer-%d", i), ChapterIndex: 0,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent purchase: %v", err)
		}
	}

	got := getBook(t, s, b)
	if n := len(got.Chapters[0].Readers); n != buyers {
		t.Errorf("readers = %d, want %d", n, buyers)
	}
	st, _ := got.Stake("sam")
	if st.Earnings != buyers*2 {
		t.Errorf("earnings = %d, want %d", st.Earnings, buyers*2)
	}
	if got := balance(t, s, "author"); got != buyers*7 {
		t.Errorf("author = %d, want %d", got, buyers*7)
	}
	if got := balance(t, s, account.RevenuePool(b.ID)); got != buyers*2 {
		t.Errorf("revenue pool = %d, want %d", got, buyers*2)
	}
}

func TestRejectedOperationsReachPlugins(t *testing.T) {
	rec := &hookRecorder{}
	s := newShelf(t, openshelf.WithPlugin(rec))
	b := publish(t, s, 10)

	_, err := s.PurchaseChapter(context.Background(), openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})
	if !errors.Is(err, openshelf.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if ops := rec.rejectedOps(); len(ops) != 1 || ops[0] != "purchase_chapter" {
		t.Errorf("rejected ops = %v", ops)
	}
}
