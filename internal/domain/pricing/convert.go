package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/apperror"
	"fuelops/internal/core/id"
	"fuelops/internal/domain/exchange"
	"fuelops/internal/domain/reference"
	"fuelops/pkg/logger"
)

// ExchangeRate is one resolved from→to rate with provenance.
type ExchangeRate struct {
	From      string
	To        string
	Value     decimal.Decimal
	Timestamp time.Time
	Source    string
}

type factorKey struct {
	from reference.UnitCode
	to   reference.UnitCode
	fuel id.ID
}

type currencyPair struct {
	from string
	to   string
}

// Converter performs unit and currency conversion for one calculation
// run. All lookups are lazy, memoized for the run's lifetime and never
// shared across runs. Not safe for concurrent use.
type Converter struct {
	factors reference.FactorSource
	rates   exchange.Provider
	log     *logger.Logger

	factorCache map[factorKey]decimal.Decimal
	rateTables  map[string]*exchange.Rates
	usedPairs   map[currencyPair]struct{}
}

// NewConverter builds a run-scoped converter.
func NewConverter(factors reference.FactorSource, rates exchange.Provider, log *logger.Logger) *Converter {
	return &Converter{
		factors:     factors,
		rates:       rates,
		log:         log.WithComponent("converter"),
		factorCache: make(map[factorKey]decimal.Decimal),
		rateTables:  make(map[string]*exchange.Rates),
		usedPairs:   make(map[currencyPair]struct{}),
	}
}

// Quantity converts a fuel quantity between units. Identity when the
// units match. Fails with a fatal conversion error when no factor row
// exists in either direction for the fuel or the all-fuels fallback.
func (c *Converter) Quantity(ctx context.Context, qty decimal.Decimal, from, to reference.UnitCode, fuelID id.ID) (decimal.Decimal, error) {
	if from == to {
		return qty, nil
	}
	factor, err := c.factor(ctx, from, to, fuelID)
	if err != nil {
		return decimal.Zero, err
	}
	return qty.Mul(factor), nil
}

// UnitPrice converts a price per `from` unit into a price per `to`
// unit. Inverse of the quantity conversion: if one from-unit makes f
// to-units, a per-to price is the per-from price divided by f.
func (c *Converter) UnitPrice(ctx context.Context, price decimal.Decimal, from, to reference.UnitCode, fuelID id.ID) (decimal.Decimal, error) {
	if from == to {
		return price, nil
	}
	factor, err := c.factor(ctx, from, to, fuelID)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Div(factor), nil
}

// factor resolves the from→to multiplier. Lookup order: fuel-specific
// row, all-fuels row, inverse fuel-specific (reciprocal), inverse
// all-fuels.
func (c *Converter) factor(ctx context.Context, from, to reference.UnitCode, fuelID id.ID) (decimal.Decimal, error) {
	key := factorKey{from: from, to: to, fuel: fuelID}
	if f, ok := c.factorCache[key]; ok {
		return f, nil
	}

	lookups := []struct {
		from, to reference.UnitCode
		fuel     *id.ID
		inverse  bool
	}{
		{from, to, &fuelID, false},
		{from, to, nil, false},
		{to, from, &fuelID, true},
		{to, from, nil, true},
	}

	for _, l := range lookups {
		f, found, err := c.factors.Factor(ctx, l.from, l.to, l.fuel)
		if err != nil {
			return decimal.Zero, err
		}
		if !found || !f.IsPositive() {
			continue
		}
		if l.inverse {
			f = decimal.NewFromInt(1).Div(f)
		}
		c.factorCache[key] = f
		return f, nil
	}

	return decimal.Zero, apperror.NewConversion(string(from), string(to)).
		WithDetail("fuel_id", fuelID)
}

// Rate resolves the from→to exchange rate as of a moment. Identity
// when the currencies match. Rate tables are fetched with the target
// currency as base and memoized per target for the run; the value is
// units of `from` per one `to`.
func (c *Converter) Rate(ctx context.Context, from, to string, asOf time.Time) (ExchangeRate, error) {
	if from == to {
		return ExchangeRate{From: from, To: to, Value: decimal.NewFromInt(1)}, nil
	}

	c.usedPairs[currencyPair{from: from, to: to}] = struct{}{}

	table, ok := c.rateTables[to]
	if !ok {
		fetched, err := c.rates.Rates(ctx, to, asOf)
		if err != nil {
			return ExchangeRate{}, apperror.NewExchangeRate(from, to, err)
		}
		c.rateTables[to] = fetched
		table = fetched
	}

	rate, ok := table.Rate(from)
	if !ok || !rate.IsPositive() {
		return ExchangeRate{}, apperror.NewExchangeRate(from, to, nil).
			WithDetail("missing_quote", from)
	}

	return ExchangeRate{
		From:      from,
		To:        to,
		Value:     rate,
		Timestamp: table.Timestamp,
		Source:    table.Source,
	}, nil
}

// Amount converts a monetary amount from one currency into another at
// the scenario moment. An empty target keeps the amount as-is.
func (c *Converter) Amount(ctx context.Context, amount decimal.Decimal, from, to string, asOf time.Time) (decimal.Decimal, error) {
	if to == "" || from == to {
		return amount, nil
	}
	rate, err := c.Rate(ctx, from, to, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(rate.Value), nil
}

// UsedPairs returns every (from, to) conversion the run touched, sorted
// for deterministic audit output.
func (c *Converter) UsedPairs() [][2]string {
	pairs := make([][2]string, 0, len(c.usedPairs))
	for p := range c.usedPairs {
		pairs = append(pairs, [2]string{p.from, p.to})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}
