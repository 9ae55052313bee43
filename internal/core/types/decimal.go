// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// RoundMoney quantizes a monetary figure to exactly 2 decimal places,
// half-up. Every amount the engine emits goes through this; re-summing
// displayed line items may therefore differ from a displayed total by
// up to 0.01 due to independent rounding.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	// decimal.Round rounds half away from zero, which is half-up for
	// the non-negative amounts the engine produces.
	return d.Round(2)
}

// One is the multiplicative identity, used for neutral rates and factors.
var One = decimal.NewFromInt(1)

// Hundred is used for percentage arithmetic.
var Hundred = decimal.NewFromInt(100)
