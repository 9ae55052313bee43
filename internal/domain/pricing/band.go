package pricing

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
	"fuelops/pkg/logger"
)

// Band is a closed numeric quantity band. An empty Unit makes the band
// a wildcard that matches any value.
type Band struct {
	Unit  reference.UnitCode
	Start decimal.Decimal
	End   decimal.Decimal
}

// IsWildcard reports whether the band matches everything.
func (b Band) IsWildcard() bool {
	return b.Unit == ""
}

// WeightMeasure selects the measurement system of a weight band.
type WeightMeasure string

const (
	WeightNone WeightMeasure = ""
	WeightKG   WeightMeasure = "KG"
	WeightLBS  WeightMeasure = "LBS"
)

// WeightBand bands on aircraft maximum take-off weight.
type WeightBand struct {
	Measure WeightMeasure
	Start   decimal.Decimal
	End     decimal.Decimal
}

// bandEdgeTolerance compensates for integer band bounds checked against
// quantities carrying 4 decimal places.
var bandEdgeTolerance = decimal.New(1, -4) // 0.0001

// one whole band unit; a wider absorbed gap suggests a data hole.
var bandGapThreshold = decimal.NewFromInt(1)

// BandsOverlap reports whether two bands intersect. A wildcard on
// either side always overlaps. Band B is normalized into band A's unit
// before the range check, so the predicate is symmetric up to
// conversion rounding.
func (c *Converter) BandsOverlap(ctx context.Context, a, b Band, fuelID id.ID) (bool, error) {
	if a.IsWildcard() || b.IsWildcard() {
		return true, nil
	}
	bStart, err := c.Quantity(ctx, b.Start, b.Unit, a.Unit, fuelID)
	if err != nil {
		return false, err
	}
	bEnd, err := c.Quantity(ctx, b.End, b.Unit, a.Unit, fuelID)
	if err != nil {
		return false, err
	}
	return a.Start.LessThanOrEqual(bEnd) && bStart.LessThanOrEqual(a.End), nil
}

// ValueInBand reports whether a value falls inside the band, inclusive
// at both boundaries. A banded check against a unit-less value fails;
// a wildcard band matches anything.
func (c *Converter) ValueInBand(ctx context.Context, b Band, value decimal.Decimal, valueUnit reference.UnitCode, fuelID id.ID) (bool, error) {
	if b.IsWildcard() {
		return true, nil
	}
	if valueUnit == "" {
		return false, nil
	}
	v, err := c.Quantity(ctx, value, valueUnit, b.Unit, fuelID)
	if err != nil {
		return false, err
	}
	return b.Start.LessThanOrEqual(v) && v.LessThanOrEqual(b.End), nil
}

// WeightInBand reports whether the aircraft's MTOW falls in the band.
// A band without a measure, or an aircraft without a weight in the
// band's measurement system, matches.
func WeightInBand(ac *reference.AircraftType, b WeightBand) bool {
	if b.Measure == WeightNone {
		return true
	}
	var w *decimal.Decimal
	switch b.Measure {
	case WeightKG:
		if ac != nil {
			w = ac.MTOWKg
		}
	case WeightLBS:
		if ac != nil {
			w = ac.MTOWLbs
		}
	}
	if w == nil {
		return true
	}
	return b.Start.LessThanOrEqual(*w) && w.LessThanOrEqual(b.End)
}

// ExtendBandEdges widens each band's end to just below the next
// sibling's start so fractional quantities never fall between adjacent
// integer bounds. Bands are sorted by start in place. The extension is
// deliberate legacy compensation; an absorbed gap wider than one whole
// unit is logged because it usually marks a genuine data-entry hole
// rather than integer truncation.
func ExtendBandEdges(log *logger.Logger, bands []*Band) {
	sort.SliceStable(bands, func(i, j int) bool {
		return bands[i].Start.LessThan(bands[j].Start)
	})
	for i := 0; i < len(bands)-1; i++ {
		cur, next := bands[i], bands[i+1]
		if cur.IsWildcard() || next.IsWildcard() || cur.Unit != next.Unit {
			continue
		}
		if !next.Start.GreaterThan(cur.End) {
			continue
		}
		gap := next.Start.Sub(cur.End)
		if gap.GreaterThan(bandGapThreshold) {
			log.Warnw("band edge extension absorbed a wide gap",
				"unit", string(cur.Unit),
				"band_end", cur.End.String(),
				"next_start", next.Start.String(),
				"gap", gap.String(),
			)
		}
		cur.End = next.Start.Sub(bandEdgeTolerance)
	}
}
