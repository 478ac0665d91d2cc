package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"SOL", SOL(1_500_000_000), 1_500_000_000, "sol", "◎1.500000000"},
		{"SOL dust", SOL(7), 7, "sol", "◎0.000000007"},
		{"USDC", USDC(2_500_000), 2_500_000, "usdc", "USDC 2.500000"},
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"New lowercases", New(10, "SOL"), 10, "sol", "◎0.000000010"},
		{"Unknown currency", New(42, "pts"), 42, "pts", "PTS 42"},
		{"Zero", Zero("usd"), 0, "usd", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return SOL(100).Add(SOL(200)) }, SOL(300)},
		{"Subtract", func() Money { return SOL(500).Subtract(SOL(200)) }, SOL(300)},
		{"Chain", func() Money { return USD(1000).Add(USD(500)).Subtract(USD(1500)) }, USD(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.op(); !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = SOL(100).Add(USD(100))
}

func TestMoneyIsZero(t *testing.T) {
	if !SOL(0).IsZero() || !Zero("usdc").IsZero() {
		t.Error("zero values should report IsZero")
	}
	if SOL(100).IsZero() || SOL(-100).IsZero() {
		t.Error("non-zero values should not report IsZero")
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{USD(4900), "49.00"},
		{USD(1), "0.01"},
		{USD(-4900), "-49.00"},
		{SOL(1), "0.000000001"},
		{SOL(-1_000_000_000), "-1.000000000"},
		{USDC(123), "0.000123"},
		{New(12345, "pts"), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(SOL(2_000_000_000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Amount != 2_000_000_000 || decoded.Currency != "sol" || decoded.Display != "◎2.000000000" {
		t.Errorf("unexpected JSON payload: %s", data)
	}
}

func TestKnownCurrency(t *testing.T) {
	if !KnownCurrency("SOL") || !KnownCurrency("usdc") {
		t.Error("expected sol and usdc to be known")
	}
	if KnownCurrency("doge") {
		t.Error("did not expect doge to be known")
	}
}
