package openshelf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/openshelf"
	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/id"
)

// A sole staker of 1 unit earns the whole 20 of a 100 sale, claims it
// once, and a second claim has nothing to pay.
func TestStakeThenClaimEarnings(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 30, 30, 40)

	fund(t, s, "sam", 1)
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 1}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}
	fund(t, s, "bob", 100)
	if _, err := s.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{BookID: b.ID, Buyer: "bob"}); err != nil {
		t.Fatalf("PurchaseFullBook: %v", err)
	}

	st, _ := getBook(t, s, b).Stake("sam")
	if st.Earnings != 20 {
		t.Fatalf("earnings = %d, want 20", st.Earnings)
	}

	paid, err := s.ClaimStakerEarnings(ctx, openshelf.ClaimInput{BookID: b.ID, Staker: "sam"})
	if err != nil {
		t.Fatalf("ClaimStakerEarnings: %v", err)
	}
	if paid != 20 {
		t.Errorf("paid = %d, want 20", paid)
	}
	if got := balance(t, s, "sam"); got != 20 {
		t.Errorf("sam balance = %d, want 20", got)
	}
	st, _ = getBook(t, s, b).Stake("sam")
	if st.Earnings != 0 || st.Claimed != 20 {
		t.Errorf("stake after claim = %+v", st)
	}

	_, err = s.ClaimStakerEarnings(ctx, openshelf.ClaimInput{BookID: b.ID, Staker: "sam"})
	expectKind(t, err, openshelf.KindNoEarningsToClaim)
}

func TestStakeMovesFundsToPrincipalPool(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "sam", 80)

	st, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 50})
	if err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}
	if st.Amount != 50 || st.Earnings != 0 {
		t.Errorf("stake = %+v", st)
	}
	if got := balance(t, s, "sam"); got != 30 {
		t.Errorf("sam = %d, want 30", got)
	}
	if got := balance(t, s, account.PrincipalPool(b.ID)); got != 50 {
		t.Errorf("principal pool = %d, want 50", got)
	}

	got := getBook(t, s, b)
	if got.TotalStake != 50 {
		t.Errorf("total stake = %d, want 50", got.TotalStake)
	}
	assertTotalStake(t, got)
}

func TestStakeTopUp(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "sam", 100)

	for range 2 {
		if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 20}); err != nil {
			t.Fatalf("StakeOnBook: %v", err)
		}
	}
	got := getBook(t, s, b)
	if got.StakerCount() != 1 || got.TotalStake != 40 {
		t.Errorf("stakers = %d, total = %d", got.StakerCount(), got.TotalStake)
	}
	assertTotalStake(t, got)
}

func TestStakeTopUpDisabled(t *testing.T) {
	p := openshelf.DefaultPolicy()
	p.AllowStakeTopUp = false
	s := newShelf(t, openshelf.WithPolicy(p))
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "sam", 100)

	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 20}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}
	_, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 20})
	expectKind(t, err, openshelf.KindAlreadyStaked)
	if got := balance(t, s, "sam"); got != 80 {
		t.Errorf("sam = %d, want 80", got)
	}
}

func TestStakeTopUpBoundedByMaxStakeAmount(t *testing.T) {
	p := openshelf.DefaultPolicy()
	p.MaxStakeAmount = 50
	s := newShelf(t, openshelf.WithPolicy(p))
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "sam", 200)

	for _, amount := range []int64{30, 20} {
		if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: amount}); err != nil {
			t.Fatalf("StakeOnBook(%d): %v", amount, err)
		}
	}
	_, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 1})
	expectKind(t, err, openshelf.KindInvalidInput)

	got := getBook(t, s, b)
	st, _ := got.Stake("sam")
	if st.Amount != 50 || got.TotalStake != 50 {
		t.Errorf("position = %d, total = %d, want 50 and 50", st.Amount, got.TotalStake)
	}
	if bal := balance(t, s, "sam"); bal != 150 {
		t.Errorf("sam = %d, want 150", bal)
	}
}

func TestPoolAccountsCannotStakeOrClaim(t *testing.T) {
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
		_, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: pool, Amount: 10})
		expectKind(t, err, openshelf.KindInvalidInput)
		_, err = s.ClaimStakerEarnings(ctx, openshelf.ClaimInput{BookID: b.ID, Staker: pool})
		expectKind(t, err, openshelf.KindInvalidInput)
	}

	if got := balance(t, s, account.RevenuePool(b.ID)); got != 20 {
		t.Fatalf("revenue pool = %d, want 20", got)
	}
	if got := balance(t, s, account.PrincipalPool(b.ID)); got != 10 {
		t.Fatalf("principal pool = %d, want 10", got)
	}
	paid, err := s.ClaimStakerEarnings(ctx, openshelf.ClaimInput{BookID: b.ID, Staker: "sam"})
	if err != nil {
		t.Fatalf("ClaimStakerEarnings: %v", err)
	}
	if paid != 20 {
		t.Errorf("paid = %d, want 20", paid)
	}
}

func TestStakeRequiresPurchase(t *testing.T) {
	p := openshelf.DefaultPolicy()
	p.RequirePurchaseToStake = true
	s := newShelf(t, openshelf.WithPolicy(p))
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "sam", 100)

	_, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 20})
	expectKind(t, err, openshelf.KindNotQualifiedForStaking)

	if _, err := s.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{BookID: b.ID, Buyer: "sam"}); err != nil {
		t.Fatalf("PurchaseFullBook: %v", err)
	}
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 20}); err != nil {
		t.Fatalf("StakeOnBook after purchase: %v", err)
	}
}

func TestStakeValidation(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10)
	fund(t, s, "sam", 10)

	tests := []struct {
		name string
		in   openshelf.StakeInput
		kind openshelf.Kind
	}{
		{"zero amount", openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 0}, openshelf.KindInvalidInput},
		{"negative amount", openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: -3}, openshelf.KindInvalidInput},
		{"above max", openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 10_000_000_001}, openshelf.KindInvalidInput},
		{"empty staker", openshelf.StakeInput{BookID: b.ID, Amount: 1}, openshelf.KindInvalidInput},
		{"short balance", openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 11}, openshelf.KindInsufficientFunds},
		{"unknown book", openshelf.StakeInput{BookID: id.NewBookID(), Staker: "sam", Amount: 1}, openshelf.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.StakeOnBook(ctx, tt.in)
			expectKind(t, err, tt.kind)
		})
	}

	got := getBook(t, s, b)
	if got.TotalStake != 0 || got.StakerCount() != 0 {
		t.Errorf("rejected stakes changed the book: %+v", got)
	}
}

func TestMaxStakers(t *testing.T) {
	p := openshelf.DefaultPolicy()
	p.MaxStakers = 2
	s := newShelf(t, openshelf.WithPolicy(p))
	ctx := context.Background()
	b := publish(t, s, 10)

	for _, who := range []string{"a", "b", "c"} {
		fund(t, s, who, 5)
	}
	for _, who := range []string{"a", "b"} {
		if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: who, Amount: 5}); err != nil {
			t.Fatalf("StakeOnBook(%s): %v", who, err)
		}
	}
	_, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "c", Amount: 5})
	if !errors.Is(err, openshelf.ErrMaxStakersReached) {
		t.Fatalf("expected ErrMaxStakersReached, got %v", err)
	}
	expectKind(t, err, openshelf.KindInvalidInput)

	// Existing stakers may still top up.
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "a", Amount: 5}); !errors.Is(err, openshelf.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds for an unfunded top-up, got %v", err)
	}
}

func TestProportionalEarnings(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 1_000)

	fund(t, s, "small", 100)
	fund(t, s, "large", 300)
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "small", Amount: 100}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "large", Amount: 300}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}

	fund(t, s, "bob", 1_000)
	rc, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0})
	if err != nil {
		t.Fatalf("PurchaseChapter: %v", err)
	}

	got := getBook(t, s, b)
	small, _ := got.Stake("small")
	large, _ := got.Stake("large")
	if small.Earnings != 50 || large.Earnings != 150 {
		t.Errorf("earnings = %d / %d, want 50 / 150", small.Earnings, large.Earnings)
	}
	if rc.Accrued != rc.Shares.Stake {
		t.Errorf("accrued %d of stake share %d", rc.Accrued, rc.Shares.Stake)
	}
}

func TestEarningsDustStaysInRevenuePool(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10)

	for _, who := range []string{"x", "y", "z"} {
		fund(t, s, who, 1)
		if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: who, Amount: 1}); err != nil {
			t.Fatalf("StakeOnBook: %v", err)
		}
	}
	fund(t, s, "bob", 10)
	if _, err := s.PurchaseChapter(ctx, openshelf.PurchaseChapterInput{BookID: b.ID, Buyer: "bob", ChapterIndex: 0}); err != nil {
		t.Fatalf("PurchaseChapter: %v", err)
	}

	// Stake share 2 over three equal positions: each earns 0.
	var earned int64
	for _, st := range getBook(t, s, b).Stakes {
		earned += st.Earnings
	}
	pool := balance(t, s, account.RevenuePool(b.ID))
	if pool != 2 || earned > pool {
		t.Errorf("pool = %d, earned = %d", pool, earned)
	}
}

func TestClaimErrors(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10)

	_, err := s.ClaimStakerEarnings(ctx, openshelf.ClaimInput{BookID: b.ID, Staker: "nobody"})
	expectKind(t, err, openshelf.KindStakerNotFound)

	fund(t, s, "sam", 5)
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 5}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}
	_, err = s.ClaimStakerEarnings(ctx, openshelf.ClaimInput{BookID: b.ID, Staker: "sam"})
	expectKind(t, err, openshelf.KindNoEarningsToClaim)
}

func TestClaimAfterSeveralPurchases(t *testing.T) {
	s := newShelf(t)
	ctx := context.Background()
	b := publish(t, s, 10, 20)

	fund(t, s, "sam", 10)
	if _, err := s.StakeOnBook(ctx, openshelf.StakeInput{BookID: b.ID, Staker: "sam", Amount: 10}); err != nil {
		t.Fatalf("StakeOnBook: %v", err)
	}
	for _, buyer := range []string{"b1", "b2"} {
		fund(t, s, buyer, 30)
		if _, err := s.PurchaseFullBook(ctx, openshelf.PurchaseBookInput{BookID: b.ID, Buyer: buyer}); err != nil {
			t.Fatalf("PurchaseFullBook: %v", err)
		}
	}

	st, _ := getBook(t, s, b).Stake("sam")
	before := balance(t, s, "sam")
	paid, err := s.ClaimStakerEarnings(ctx, openshelf.ClaimInput{BookID: b.ID, Staker: "sam"})
	if err != nil {
		t.Fatalf("ClaimStakerEarnings: %v", err)
	}
	if paid != st.Earnings || paid != 12 {
		t.Errorf("paid = %d, pre-claim earnings = %d, want 12", paid, st.Earnings)
	}
	if got := balance(t, s, "sam") - before; got != paid {
		t.Errorf("balance grew by %d, want %d", got, paid)
	}
	if got := balance(t, s, account.RevenuePool(b.ID)); got != 0 {
		t.Errorf("revenue pool = %d after claim, want 0", got)
	}

	stakes, err := s.Stakes(ctx, b.ID)
	if err != nil {
		t.Fatalf("Stakes: %v", err)
	}
	if len(stakes) != 1 || stakes[0].Earnings != 0 || stakes[0].Claimed != 12 {
		t.Errorf("stakes = %+v", stakes)
	}
}
