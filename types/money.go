// Package types provides value types shared across OpenShelf packages.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Money is an amount in the smallest unit of its currency.
// All arithmetic is integer-only.
//
// Examples:
//   - SOL(1_500_000_000) = ◎1.500000000 (lamports)
//   - USDC(2_500_000) = USDC 2.500000 (micro-dollars)
//   - USD(4900) = $49.00 (cents)
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (lamports, cents, ...)
	Currency string `json:"currency"` // Lowercase code: "sol", "usdc", "usd"
}

// SOL creates a Money value in lamports.
func SOL(lamports int64) Money { return Money{Amount: lamports, Currency: "sol"} }

// USDC creates a Money value in micro-USDC.
func USDC(micros int64) Money { return Money{Amount: micros, Currency: "usdc"} }

// USD creates a Money value in US cents.
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// New creates a Money value in an arbitrary currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return New(0, currency) }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// Equal returns true if both values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// FormatMajor returns the amount in major units without a symbol:
// "1.500000000" for SOL(1_500_000_000), "49.00" for USD(4900).
func (m Money) FormatMajor() string {
	decimals := Decimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	negative := m.Amount < 0
	abs := m.Amount
	if negative {
		abs = -abs
	}

	result := fmt.Sprintf("%d.%0*d", abs/divisor, decimals, abs%divisor)
	if negative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with currency symbol.
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func currencySymbol(currency string) string {
	switch strings.ToLower(currency) {
	case "sol":
		return "◎"
	case "usd":
		return "$"
	case "eur":
		return "€"
	}
	return strings.ToUpper(currency) + " "
}

// Decimals returns the number of minor-unit digits for a currency.
// Unknown currencies are treated as having no minor unit.
func Decimals(currency string) int {
	switch strings.ToLower(currency) {
	case "sol":
		return 9
	case "usdc", "usdt":
		return 6
	case "usd", "eur", "gbp":
		return 2
	}
	return 0
}

// KnownCurrency reports whether Decimals has an explicit entry for currency.
func KnownCurrency(currency string) bool {
	switch strings.ToLower(currency) {
	case "sol", "usdc", "usdt", "usd", "eur", "gbp":
		return true
	}
	return false
}
