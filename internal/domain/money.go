package domain

import "github.com/shopspring/decimal"

// Money is a monetary value at fixed decimal precision.
type Money = decimal.Decimal

// MoneyScale is the number of decimals kept for stored amounts.
const MoneyScale = 2

// MustMoney parses s and panics on error. Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RoundMoney rounds half-up (away from zero) to MoneyScale decimals.
func RoundMoney(m Money) Money {
	return m.Round(MoneyScale)
}
