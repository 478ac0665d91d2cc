// Package account defines named balances and the transfer journal that
// records every movement of funds.
package account

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xraph/openshelf/id"
)

// Kind classifies a transfer.
type Kind string

const (
	KindDeposit           Kind = "deposit"
	KindPurchaseAuthor    Kind = "purchase_author"
	KindPurchasePlatform  Kind = "purchase_platform"
	KindPurchaseStakePool Kind = "purchase_stake_pool"
	KindStake             Kind = "stake"
	KindClaim             Kind = "claim"
)

// Transfer moves Amount from one account to another. Deposits have an
// empty From and create funds.
type Transfer struct {
	ID        id.TransferID `json:"id"`
	BookID    id.BookID     `json:"book_id,omitempty"`
	From      string        `json:"from,omitempty"`
	To        string        `json:"to"`
	Amount    int64         `json:"amount"`
	Kind      Kind          `json:"kind"`
	Reference string        `json:"reference,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Balance is the current amount held by a named account.
type Balance struct {
	Account   string    `json:"account"`
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

const poolPrefix = "book:"

// PrincipalPool names the account holding capital staked on a book.
func PrincipalPool(bookID id.BookID) string {
	return poolPrefix + bookID.String() + ":principal"
}

// RevenuePool names the account holding a book's stake-pool purchase
// shares. Staker claims are paid from it.
func RevenuePool(bookID id.BookID) string {
	return poolPrefix + bookID.String() + ":revenue"
}

// IsPool reports whether name is a book pool account.
func IsPool(name string) bool {
	return strings.HasPrefix(name, poolPrefix)
}

// ErrOverflow is returned when a credit would exceed the largest
// representable balance.
var ErrOverflow = errors.New("account: balance overflow")

// Credit returns have plus amount, or ErrOverflow when the sum does not
// fit in an int64.
func Credit(have, amount int64) (int64, error) {
	if amount > 0 && have > math.MaxInt64-amount {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, have, amount)
	}
	return have + amount, nil
}

// ShortfallError is returned by Settle when a debit exceeds a balance.
type ShortfallError struct {
	Account string
	Balance int64
	Needed  int64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("account %s holds %d, needs %d", e.Account, e.Balance, e.Needed)
}

// Settle applies transfers in order against balances obtained from lookup
// and returns the resulting balance of every touched account. Lookup is
// called at most once per account. A debit larger than the running balance
// stops settlement with a *ShortfallError and a credit past math.MaxInt64
// with ErrOverflow; nothing is returned then.
func Settle(transfers []*Transfer, lookup func(account string) (int64, error)) (map[string]int64, error) {
	balances := make(map[string]int64)
	load := func(name string) (int64, error) {
		if v, ok := balances[name]; ok {
			return v, nil
		}
		v, err := lookup(name)
		if err != nil {
			return 0, err
		}
		balances[name] = v
		return v, nil
	}

	for _, t := range transfers {
		if t.Amount < 0 {
			return nil, fmt.Errorf("account: negative transfer %d to %s", t.Amount, t.To)
		}
		if t.From != "" {
			have, err := load(t.From)
			if err != nil {
				return nil, err
			}
			if have < t.Amount {
				return nil, &ShortfallError{Account: t.From, Balance: have, Needed: t.Amount}
			}
			balances[t.From] = have - t.Amount
		}
		have, err := load(t.To)
		if err != nil {
			return nil, err
		}
		credited, err := Credit(have, t.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: account %s", err, t.To)
		}
		balances[t.To] = credited
	}
	return balances, nil
}
