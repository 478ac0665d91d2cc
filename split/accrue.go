package split

// Position is a staker's weight in a pool.
type Position struct {
	Staker string
	Amount int64
}

// Accrual is the earnings credited to one staker for one purchase.
type Accrual struct {
	Staker string `json:"staker"`
	Amount int64  `json:"amount"`
}

// Accrue distributes share across positions pro-rata to their amounts:
// each staker receives floor(share*amount/total). The returned slice has
// one entry per position with a positive amount, in input order. The
// floor remainder, at most len(positions)-1 units, is not distributed.
func Accrue(share int64, positions []Position) []Accrual {
	if share <= 0 || len(positions) == 0 {
		return nil
	}

	var total uint64
	for _, p := range positions {
		if p.Amount > 0 {
			total += uint64(p.Amount)
		}
	}
	if total == 0 {
		return nil
	}

	out := make([]Accrual, 0, len(positions))
	for _, p := range positions {
		if p.Amount <= 0 {
			continue
		}
		out = append(out, Accrual{
			Staker: p.Staker,
			Amount: int64(MulDiv(uint64(share), uint64(p.Amount), total)),
		})
	}
	return out
}

// Sum returns the total amount across accruals.
func Sum(accruals []Accrual) int64 {
	var n int64
	for _, a := range accruals {
		n += a.Amount
	}
	return n
}
