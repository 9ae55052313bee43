// Package exchange provides currency exchange rates to the pricing
// engine. The engine treats the provider as an external collaborator:
// rates are fetched per base currency, memoized for one calculation
// run, and any fetch failure is fatal to the run.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Rates is one rate table: how many units of each quoted currency one
// unit of Base buys, as of Timestamp.
type Rates struct {
	Base      string                     `json:"base"`
	Timestamp time.Time                  `json:"timestamp"`
	Source    string                     `json:"source"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

// Rate returns the rate for a quoted currency.
func (r *Rates) Rate(code string) (decimal.Decimal, bool) {
	v, ok := r.Rates[code]
	return v, ok
}

// Latest is passed as asOf to request the most recent table instead of
// a historical one.
var Latest = time.Time{}

// Provider supplies rate tables per base currency. An asOf equal to
// Latest (the zero time) requests current rates; any other value
// requests the table as of that date.
type Provider interface {
	Rates(ctx context.Context, base string, asOf time.Time) (*Rates, error)
}
