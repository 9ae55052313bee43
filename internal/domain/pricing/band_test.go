package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelops/internal/domain/reference"
	"fuelops/pkg/logger"
)

func mkBand(unit reference.UnitCode, start, end int64) Band {
	return Band{Unit: unit, Start: decimal.NewFromInt(start), End: decimal.NewFromInt(end)}
}

func TestValueInBandBoundariesInclusive(t *testing.T) {
	conv := testConverter(nil, nil)
	band := mkBand(unitGallon, 100, 500)

	for _, v := range []int64{100, 300, 500} {
		in, err := conv.ValueInBand(context.Background(), band, decimal.NewFromInt(v), unitGallon, testFuel)
		require.NoError(t, err)
		assert.True(t, in, "value %d should be inside", v)
	}
	for _, v := range []int64{99, 501} {
		in, err := conv.ValueInBand(context.Background(), band, decimal.NewFromInt(v), unitGallon, testFuel)
		require.NoError(t, err)
		assert.False(t, in, "value %d should be outside", v)
	}
}

func TestValueInBandWildcardMatchesEverything(t *testing.T) {
	conv := testConverter(nil, nil)

	in, err := conv.ValueInBand(context.Background(), Band{}, decimal.NewFromInt(12345), unitGallon, testFuel)
	require.NoError(t, err)
	assert.True(t, in)
}

func TestValueInBandUnitlessValueAgainstBandedFails(t *testing.T) {
	conv := testConverter(nil, nil)

	in, err := conv.ValueInBand(context.Background(), mkBand(unitGallon, 0, 100), decimal.NewFromInt(50), "", testFuel)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestBandsOverlapSymmetricAcrossUnits(t *testing.T) {
	factors := newStubFactors()
	factors.set(unitGallon, unitLitre, nil, "4")
	factors.set(unitLitre, unitGallon, nil, "0.25")
	conv := testConverter(factors, nil)

	// 100..200 USG is 400..800 L; overlaps 500..900 L.
	a := mkBand(unitGallon, 100, 200)
	b := mkBand(unitLitre, 500, 900)

	ab, err := conv.BandsOverlap(context.Background(), a, b, testFuel)
	require.NoError(t, err)
	ba, err := conv.BandsOverlap(context.Background(), b, a, testFuel)
	require.NoError(t, err)
	assert.True(t, ab)
	assert.Equal(t, ab, ba)

	// 100..200 USG is 400..800 L; disjoint from 900..1000 L.
	c := mkBand(unitLitre, 900, 1000)
	ac, err := conv.BandsOverlap(context.Background(), a, c, testFuel)
	require.NoError(t, err)
	ca, err := conv.BandsOverlap(context.Background(), c, a, testFuel)
	require.NoError(t, err)
	assert.False(t, ac)
	assert.Equal(t, ac, ca)
}

func TestBandsOverlapWildcard(t *testing.T) {
	conv := testConverter(nil, nil)

	ok, err := conv.BandsOverlap(context.Background(), Band{}, mkBand(unitGallon, 0, 10), testFuel)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExtendBandEdgesClosesIntegerGaps(t *testing.T) {
	b1 := mkBand(unitGallon, 0, 100)
	b2 := mkBand(unitGallon, 101, 200)
	bands := []*Band{&b2, &b1}

	ExtendBandEdges(logger.Nop(), bands)

	// Sorted by start, first band stretched to just below the next.
	assert.Equal(t, "0", bands[0].Start.String())
	assert.Equal(t, "100.9999", bands[0].End.String())
	assert.Equal(t, "200", bands[1].End.String())
}

func TestExtendBandEdgesLeavesContiguousBandsAlone(t *testing.T) {
	b1 := mkBand(unitGallon, 0, 100)
	b2 := mkBand(unitGallon, 100, 200)
	bands := []*Band{&b1, &b2}

	ExtendBandEdges(logger.Nop(), bands)

	assert.Equal(t, "100", bands[0].End.String())
}

func TestExtendBandEdgesAbsorbsWideGap(t *testing.T) {
	// A gap wider than one unit is still closed; the warning is the
	// only signal that the data likely has a hole.
	b1 := mkBand(unitGallon, 0, 100)
	b2 := mkBand(unitGallon, 150, 200)
	bands := []*Band{&b1, &b2}

	ExtendBandEdges(logger.Nop(), bands)

	assert.Equal(t, "149.9999", bands[0].End.String())
}

func TestWeightInBand(t *testing.T) {
	kg := decimal.NewFromInt(70000)
	ac := &reference.AircraftType{ID: testFuel, Designator: "B738", MTOWKg: &kg}

	in := WeightInBand(ac, WeightBand{Measure: WeightKG, Start: decimal.NewFromInt(50000), End: decimal.NewFromInt(80000)})
	assert.True(t, in)

	out := WeightInBand(ac, WeightBand{Measure: WeightKG, Start: decimal.NewFromInt(80000), End: decimal.NewFromInt(100000)})
	assert.False(t, out)

	// No LBS weight on the aircraft: an LBS band matches.
	lbs := WeightInBand(ac, WeightBand{Measure: WeightLBS, Start: decimal.NewFromInt(1), End: decimal.NewFromInt(2)})
	assert.True(t, lbs)

	// No measure on the band: matches.
	assert.True(t, WeightInBand(ac, WeightBand{}))
	assert.True(t, WeightInBand(nil, WeightBand{Measure: WeightKG, Start: decimal.Zero, End: decimal.Zero}))
}
