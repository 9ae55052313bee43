package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelops/internal/core/apperror"
)

func TestConverterQuantityIdentity(t *testing.T) {
	conv := testConverter(nil, nil)

	got, err := conv.Quantity(context.Background(), decimal.NewFromInt(500), unitGallon, unitGallon, testFuel)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(500)))
}

func TestConverterQuantityFuelSpecificFactor(t *testing.T) {
	factors := newStubFactors()
	factors.set(unitGallon, unitLitre, &testFuel, "3.785")
	conv := testConverter(factors, nil)

	got, err := conv.Quantity(context.Background(), decimal.NewFromInt(100), unitGallon, unitLitre, testFuel)
	require.NoError(t, err)
	assert.Equal(t, "378.5", got.String())
}

func TestConverterQuantityFallsBackToGenericRow(t *testing.T) {
	factors := newStubFactors()
	factors.set(unitGallon, unitLitre, nil, "4")
	conv := testConverter(factors, nil)

	got, err := conv.Quantity(context.Background(), decimal.NewFromInt(10), unitGallon, unitLitre, testFuel)
	require.NoError(t, err)
	assert.Equal(t, "40", got.String())
}

func TestConverterQuantityUsesReciprocalRow(t *testing.T) {
	factors := newStubFactors()
	factors.set(unitLitre, unitGallon, &testFuel, "0.25")
	conv := testConverter(factors, nil)

	got, err := conv.Quantity(context.Background(), decimal.NewFromInt(10), unitGallon, unitLitre, testFuel)
	require.NoError(t, err)
	assert.Equal(t, "40", got.String())
}

func TestConverterQuantityMissingFactorFails(t *testing.T) {
	conv := testConverter(nil, nil)

	_, err := conv.Quantity(context.Background(), decimal.NewFromInt(10), unitGallon, unitLitre, testFuel)
	require.Error(t, err)
	assert.True(t, apperror.IsConversion(err))
}

func TestConverterFactorMemoized(t *testing.T) {
	factors := newStubFactors()
	factors.set(unitGallon, unitLitre, &testFuel, "3.785")
	conv := testConverter(factors, nil)

	for i := 0; i < 5; i++ {
		_, err := conv.Quantity(context.Background(), decimal.NewFromInt(1), unitGallon, unitLitre, testFuel)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, factors.calls)
}

func TestConverterRateIdentity(t *testing.T) {
	conv := testConverter(nil, nil)

	rate, err := conv.Rate(context.Background(), "USD", "USD", time.Time{})
	require.NoError(t, err)
	assert.True(t, rate.Value.Equal(decimal.NewFromInt(1)))
	assert.Empty(t, conv.UsedPairs())
}

func TestConverterAmountUsesTargetBasedTable(t *testing.T) {
	rates := newStubRates()
	// Table base EUR: one EUR buys 1.25 USD.
	rates.set("EUR", map[string]string{"USD": "1.25"})
	conv := testConverter(nil, rates)

	got, err := conv.Amount(context.Background(), decimal.NewFromInt(125), "USD", "EUR", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "100", got.String())
}

func TestConverterAmountRoundTrips(t *testing.T) {
	rates := newStubRates()
	rates.set("EUR", map[string]string{"USD": "1.25"})
	rates.set("USD", map[string]string{"EUR": "0.8"})
	conv := testConverter(nil, rates)

	ctx := context.Background()
	amount := decimal.RequireFromString("123.45")
	eur, err := conv.Amount(ctx, amount, "USD", "EUR", time.Time{})
	require.NoError(t, err)
	back, err := conv.Amount(ctx, eur, "EUR", "USD", time.Time{})
	require.NoError(t, err)
	assert.True(t, back.Sub(amount).Abs().LessThan(decimal.RequireFromString("0.01")),
		"round trip drifted: %s -> %s", amount, back)
}

func TestConverterRateTableMemoizedPerTarget(t *testing.T) {
	rates := newStubRates()
	rates.set("EUR", map[string]string{"USD": "1.25", "GBP": "0.85"})
	conv := testConverter(nil, rates)

	ctx := context.Background()
	_, err := conv.Rate(ctx, "USD", "EUR", time.Time{})
	require.NoError(t, err)
	_, err = conv.Rate(ctx, "GBP", "EUR", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, rates.calls)
}

func TestConverterRateFetchFailureIsFatal(t *testing.T) {
	rates := newStubRates()
	rates.err = errors.New("provider down")
	conv := testConverter(nil, rates)

	_, err := conv.Rate(context.Background(), "USD", "EUR", time.Time{})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeExchangeRate, appErr.Code)
}

func TestConverterUsedPairsSortedAndDeduplicated(t *testing.T) {
	rates := newStubRates()
	rates.set("EUR", map[string]string{"USD": "1.25", "GBP": "0.85"})
	conv := testConverter(nil, rates)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := conv.Rate(ctx, "USD", "EUR", time.Time{})
		require.NoError(t, err)
	}
	_, err := conv.Rate(ctx, "GBP", "EUR", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, [][2]string{{"GBP", "EUR"}, {"USD", "EUR"}}, conv.UsedPairs())
}

func TestConverterUnitPriceInvertsFactor(t *testing.T) {
	factors := newStubFactors()
	factors.set(unitGallon, unitLitre, nil, "4")
	conv := testConverter(factors, nil)

	// 8 per gallon at 4 litres per gallon is 2 per litre.
	got, err := conv.UnitPrice(context.Background(), decimal.NewFromInt(8), unitGallon, unitLitre, testFuel)
	require.NoError(t, err)
	assert.Equal(t, "2", got.String())
}
