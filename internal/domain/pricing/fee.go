package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
)

// ValidityPeriod restricts a fee to a day-of-week plus time-of-day
// window, evaluated in airport-local time or UTC.
type ValidityPeriod struct {
	DayFrom time.Weekday
	DayTo   time.Weekday

	// TimeFrom/TimeTo are minutes from midnight; 0..1440. A window of
	// 0..1440 covers the whole day.
	TimeFrom int
	TimeTo   int

	Local bool
}

// Contains reports whether the given moment falls in the window. The
// caller passes the uplift time already resolved to the period's zone.
func (p ValidityPeriod) Contains(t time.Time) bool {
	day := t.Weekday()
	if p.DayFrom <= p.DayTo {
		if day < p.DayFrom || day > p.DayTo {
			return false
		}
	} else {
		// Wrap-around window, e.g. Fri..Mon.
		if day < p.DayFrom && day > p.DayTo {
			return false
		}
	}
	minutes := t.Hour()*60 + t.Minute()
	if p.TimeFrom == 0 && (p.TimeTo == 0 || p.TimeTo == 1440) {
		return true
	}
	if p.TimeFrom <= p.TimeTo {
		return minutes >= p.TimeFrom && minutes <= p.TimeTo
	}
	// Overnight window, e.g. 22:00..06:00.
	return minutes >= p.TimeFrom || minutes <= p.TimeTo
}

// FeeRule is one supplier fee-rate entry.
type FeeRule struct {
	ID         id.ID
	SupplierID id.ID

	CategoryID   id.ID
	CategoryName string

	// DisplayName groups competing rates of the same fee; within one
	// name the highest-specificity rate wins.
	DisplayName string

	// FuelID nil applies the fee regardless of fuel.
	FuelID *id.ID

	FlightTypes         []FlightType
	Destinations        []DestinationType
	AppliesToCommercial bool
	AppliesToPrivate    bool

	QuantityBand *Band
	WeightBand   *WeightBand

	// Specificity dimensions; nil means the fee is agnostic.
	DeliveryMethodID   *id.ID
	DeliveryMethodName string
	ApronID            *id.ID
	ApronName          string
	HandlerID          *id.ID
	HandlerName        string
	HandlerIsExcluded  bool
	Hookup             *HookupMethod

	// Condition flags tie fees to uplift circumstances.
	RequiresDefueling    bool
	RequiresMultiVehicle bool

	Periods []ValidityPeriod

	// NativePrice is the quoted rate; ConvertedPrice, when present, is
	// the supplier's own conversion and takes precedence.
	NativePrice       decimal.Decimal
	NativeCurrency    string
	ConvertedPrice    *decimal.Decimal
	ConvertedCurrency string
	ExchangeRate      *decimal.Decimal

	// Unit is the application unit (per uom or fixed per uplift).
	Unit reference.PricingUnit

	ValidFrom          time.Time
	ValidTo            *time.Time
	UntilFurtherNotice bool

	SourceDocID   *id.ID
	SourceDocKind reference.DocKind
}

// ExpiresAt returns the expiry or nil for until-further-notice fees.
func (f *FeeRule) ExpiresAt() *time.Time {
	if f.UntilFurtherNotice {
		return nil
	}
	return f.ValidTo
}

// ValidAt reports whether the fee's validity window covers t.
func (f *FeeRule) ValidAt(t time.Time) bool {
	if t.Before(f.ValidFrom) {
		return false
	}
	if f.UntilFurtherNotice || f.ValidTo == nil {
		return true
	}
	return !t.After(*f.ValidTo)
}

// AppliesTo reports applicability to the scenario's flight profile and
// uplift circumstances.
func (f *FeeRule) AppliesTo(scn *Scenario) bool {
	if scn.IsPrivate && !f.AppliesToPrivate {
		return false
	}
	if !scn.IsPrivate && !f.AppliesToCommercial {
		return false
	}
	if len(f.FlightTypes) > 0 && !containsFlightType(f.FlightTypes, scn.FlightType) {
		return false
	}
	if len(f.Destinations) > 0 && !containsDestination(f.Destinations, scn.Destination) {
		return false
	}
	if f.Hookup != nil && scn.Hookup != nil && *f.Hookup != *scn.Hookup {
		return false
	}
	if f.RequiresDefueling && !scn.IsDefueling {
		return false
	}
	if f.RequiresMultiVehicle && !scn.IsMultiVehicle {
		return false
	}
	return true
}

// EffectivePrice returns the rate and currency to charge, preferring
// the supplier's own converted price when present.
func (f *FeeRule) EffectivePrice() (decimal.Decimal, string) {
	if f.ConvertedPrice != nil && f.ConvertedCurrency != "" {
		return *f.ConvertedPrice, f.ConvertedCurrency
	}
	return f.NativePrice, f.NativeCurrency
}
