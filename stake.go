package openshelf

import (
	"context"

	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/store"
)

// StakeInput describes capital committed to a book's stake pool.
type StakeInput struct {
	BookID id.BookID `json:"book_id"`
	Staker string    `json:"staker"`
	Amount int64     `json:"amount"`
}

// ClaimInput identifies the position whose earnings are claimed.
type ClaimInput struct {
	BookID id.BookID `json:"book_id"`
	Staker string    `json:"staker"`
}

// ──────────────────────────────────────────────────
// Stake Pool & Earnings Ledger
// ──────────────────────────────────────────────────

// StakeOnBook moves in.Amount from the staker into the book's principal
// pool and records or grows their position. MaxStakeAmount bounds the
// whole position, top-ups included. Stakers earn a pro-rata part
// of the stake share of every later purchase.
func (s *Shelf) StakeOnBook(ctx context.Context, in StakeInput) (*book.Stake, error) {
	if err := checkAccount("staker", in.Staker); err != nil {
		return nil, s.reject(ctx, "stake", err)
	}
	if in.Amount <= 0 {
		return nil, s.reject(ctx, "stake", invalid("amount", "must be positive"))
	}
	if in.Amount > s.policy.MaxStakeAmount {
		return nil, s.reject(ctx, "stake", invalid("amount", "must be at most %d", s.policy.MaxStakeAmount))
	}

	var placed book.Stake
	ch, err := s.mutateBook(ctx, in.BookID, func(b *book.Book) (*store.Change, error) {
		if s.policy.RequirePurchaseToStake && !b.HasReader(in.Staker) {
			return nil, ErrNotQualifiedForStaking
		}

		total, err := account.Credit(b.TotalStake, in.Amount)
		if err != nil {
			return nil, invalid("amount", "total stake overflows: %v", err)
		}

		if st, ok := b.Stake(in.Staker); ok {
			if !s.policy.AllowStakeTopUp {
				return nil, ErrAlreadyStaked
			}
			position, err := account.Credit(st.Amount, in.Amount)
			if err != nil || position > s.policy.MaxStakeAmount {
				return nil, invalid("amount", "position of %d plus %d exceeds %d", st.Amount, in.Amount, s.policy.MaxStakeAmount)
			}
			st.Amount = position
			placed = *st
		} else {
			if len(b.Stakes) >= s.policy.MaxStakers {
				return nil, ErrMaxStakersReached
			}
			placed = book.Stake{Staker: in.Staker, Amount: in.Amount, CreatedAt: s.now()}
			b.Stakes = append(b.Stakes, placed)
		}
		b.TotalStake = total
		b.UpdatedAt = s.now()

		t := s.transfer(b.ID, in.Staker, account.PrincipalPool(b.ID), in.Amount, account.KindStake, "")
		return &store.Change{Book: b, Transfers: []*account.Transfer{t}}, nil
	})
	if err != nil {
		return nil, s.reject(ctx, "stake", err)
	}

	s.logger.Debug("openshelf: stake placed",
		"book_id", in.BookID.String(),
		"staker", in.Staker,
		"amount", in.Amount,
		"total_stake", ch.Book.TotalStake,
	)
	s.plugins.EmitStakePlaced(ctx, ch.Book, in.Staker, in.Amount)
	return &placed, nil
}

// ClaimStakerEarnings pays the staker's accrued earnings out of the book's
// revenue pool and returns the amount paid.
func (s *Shelf) ClaimStakerEarnings(ctx context.Context, in ClaimInput) (int64, error) {
	if err := checkAccount("staker", in.Staker); err != nil {
		return 0, s.reject(ctx, "claim", err)
	}
	var amount int64
	_, err := s.mutateBook(ctx, in.BookID, func(b *book.Book) (*store.Change, error) {
		st, ok := b.Stake(in.Staker)
		if !ok {
			return nil, ErrStakerNotFound
		}
		if st.Earnings <= 0 {
			return nil, ErrNoEarningsToClaim
		}

		amount = st.Earnings
		st.Earnings = 0
		st.Claimed += amount
		b.UpdatedAt = s.now()

		t := s.transfer(b.ID, account.RevenuePool(b.ID), in.Staker, amount, account.KindClaim, "")
		return &store.Change{Book: b, Transfers: []*account.Transfer{t}}, nil
	})
	if err != nil {
		return 0, s.reject(ctx, "claim", err)
	}

	s.logger.Debug("openshelf: earnings claimed",
		"book_id", in.BookID.String(),
		"staker", in.Staker,
		"amount", amount,
	)
	s.plugins.EmitEarningsClaimed(ctx, in.BookID, in.Staker, amount)
	return amount, nil
}

// Stakes returns the positions held on a book.
func (s *Shelf) Stakes(ctx context.Context, bookID id.BookID) ([]book.Stake, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return b.Stakes, nil
}
