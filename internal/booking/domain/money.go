package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in minor units (cents).
// It is rendered in JSON as a number with two decimals, e.g. 200.00.
type Money int64

// NewMoney builds an amount from whole units and cents
func NewMoney(units, cents int64) Money {
	if units < 0 {
		return Money(units*100 - cents)
	}
	return Money(units*100 + cents)
}

// Cents returns the raw amount in minor units
func (m Money) Cents() int64 {
	return int64(m)
}

// Mul multiplies by a quantity
func (m Money) Mul(n int) Money {
	return m * Money(n)
}

// IsPositive reports m > 0
func (m Money) IsPositive() bool {
	return m > 0
}

// String renders the amount with two decimals
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON renders a two-decimal number
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number (or numeric string) with at most two decimals
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	data = bytes.Trim(data, `"`)
	parsed, err := ParseMoney(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMoney parses "12", "12.5" or "12.50" without going through float64
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid money amount: empty")
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid money amount %q: more than two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid money amount %q: %w", s, err)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid money amount %q: %w", s, err)
	}

	v := Money(units*100 + cents)
	if negative {
		v = -v
	}
	return v, nil
}
