package openshelf

import (
	"context"
	"strings"

	"github.com/xraph/openshelf/account"
	"github.com/xraph/openshelf/id"
	"github.com/xraph/openshelf/types"
)

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

// Deposit credits amount to a user account. Pool accounts cannot be
// funded directly. A deposit that would overflow the balance is rejected.
func (s *Shelf) Deposit(ctx context.Context, to string, amount int64) (*account.Transfer, error) {
	if err := checkAccount("account", to); err != nil {
		return nil, s.reject(ctx, "deposit", err)
	}
	if amount <= 0 {
		return nil, s.reject(ctx, "deposit", invalid("amount", "must be positive"))
	}

	t := s.transfer(id.Nil, "", to, amount, account.KindDeposit, "")
	if err := s.store.Deposit(ctx, t); err != nil {
		return nil, s.reject(ctx, "deposit", err)
	}
	return t, nil
}

// Balance returns the funds held by an account in the shelf currency.
func (s *Shelf) Balance(ctx context.Context, name string) (types.Money, error) {
	amount, err := s.store.GetBalance(ctx, name)
	if err != nil {
		return types.Money{}, err
	}
	return types.New(amount, s.policy.Currency), nil
}

// Transfers returns journal entries matching opts.
func (s *Shelf) Transfers(ctx context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	return s.store.ListTransfers(ctx, opts)
}

// Statement totals the journal of one account next to its stored balance.
type Statement struct {
	Account string      `json:"account"`
	Credits types.Money `json:"credits"`
	Debits  types.Money `json:"debits"`
	Net     types.Money `json:"net"`
	Balance types.Money `json:"balance"`
	Entries int         `json:"entries"`
}

// Reconciled reports whether the journal accounts for the stored balance.
func (st *Statement) Reconciled() bool { return st.Net.Equal(st.Balance) }

// Statement replays every transfer touching name and compares the result
// with its balance.
func (s *Shelf) Statement(ctx context.Context, name string) (*Statement, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalid("account", "must not be empty")
	}
	transfers, err := s.store.ListTransfers(ctx, account.ListOpts{Account: name})
	if err != nil {
		return nil, err
	}
	bal, err := s.Balance(ctx, name)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		Account: name,
		Credits: types.Zero(s.policy.Currency),
		Debits:  types.Zero(s.policy.Currency),
		Balance: bal,
		Entries: len(transfers),
	}
	for _, t := range transfers {
		amount := types.New(t.Amount, s.policy.Currency)
		if t.To == name {
			st.Credits = st.Credits.Add(amount)
		}
		if t.From == name {
			st.Debits = st.Debits.Add(amount)
		}
	}
	st.Net = st.Credits.Subtract(st.Debits)
	return st, nil
}
