package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
)

// TaxBandKind selects what a tax band is measured against.
type TaxBandKind string

const (
	// TaxBandUplift bands on the uplifted fuel quantity.
	TaxBandUplift TaxBandKind = "uplift"

	// TaxBandWeight bands on the aircraft's maximum take-off weight.
	TaxBandWeight TaxBandKind = "weight"
)

// TaxBand is one of the two independent numeric bands a tax rule may
// carry.
type TaxBand struct {
	Kind TaxBandKind

	// Unit applies to uplift bands; Measure to weight bands.
	Unit    reference.UnitCode
	Measure WeightMeasure

	Start decimal.Decimal
	End   decimal.Decimal
}

// TaxRule is one official (jurisdiction-defined) or supplier-defined
// tax entry.
type TaxRule struct {
	ID id.ID

	// Official distinguishes jurisdiction rules from supplier
	// exceptions. Supplier exceptions carry the exception
	// organisation in SupplierID.
	Official   bool
	SupplierID *id.ID

	CategoryID   id.ID
	CategoryName string

	// Application scope.
	AppliesToFuel bool
	AppliesToFees bool

	// FeeCategoryID restricts fee application; nil applies to all fees.
	FeeCategoryID *id.ID

	// FuelID / FuelCategoryID restrict which fuels attract the tax.
	FuelID         *id.ID
	FuelCategoryID *id.ID

	// Exactly one of Percentage or UnitRate must be set on applicable
	// rules; a rule with neither is a configuration error.
	Percentage *decimal.Decimal
	UnitRate   *decimal.Decimal

	// Unit is the application unit for flat rates.
	Unit *reference.PricingUnit

	Band1 *TaxBand
	Band2 *TaxBand

	// Geographic scope: a rule naming an airport supersedes
	// country-level rules of the same category.
	CountryID *id.ID
	AirportID *id.ID

	FlightTypes  []FlightType
	Destinations []DestinationType

	// TaxedByRuleID links the percentage rule levied on this tax's
	// amount (one cascading level); TaxedBy is the resolved rule.
	TaxedByRuleID *id.ID
	TaxedBy       *TaxRule

	ValidFrom          time.Time
	ValidTo            *time.Time
	UntilFurtherNotice bool

	SourceDocID   *id.ID
	SourceDocKind reference.DocKind

	// OfficialOnly keeps an official rule off the supplier side.
	OfficialOnly bool
}

// ExpiresAt returns the expiry or nil for until-further-notice rules.
func (t *TaxRule) ExpiresAt() *time.Time {
	if t.UntilFurtherNotice {
		return nil
	}
	return t.ValidTo
}

// ValidAt reports whether the rule's validity window covers the moment.
func (t *TaxRule) ValidAt(at time.Time) bool {
	if at.Before(t.ValidFrom) {
		return false
	}
	if t.UntilFurtherNotice || t.ValidTo == nil {
		return true
	}
	return !at.After(*t.ValidTo)
}

// AppliesTo reports applicability to the scenario's flight profile.
func (t *TaxRule) AppliesTo(scn *Scenario) bool {
	if len(t.FlightTypes) > 0 && !containsFlightType(t.FlightTypes, scn.FlightType) {
		return false
	}
	if len(t.Destinations) > 0 && !containsDestination(t.Destinations, scn.Destination) {
		return false
	}
	return true
}

// MatchesFuel reports whether the rule covers the given fuel within the
// scenario's category.
func (t *TaxRule) MatchesFuel(fuelID, fuelCategoryID id.ID) bool {
	if t.FuelID != nil {
		return *t.FuelID == fuelID
	}
	if t.FuelCategoryID != nil {
		return *t.FuelCategoryID == fuelCategoryID
	}
	return true
}

// MatchesFeeCategory reports whether the rule covers a fee category.
func (t *TaxRule) MatchesFeeCategory(categoryID id.ID) bool {
	return t.FeeCategoryID == nil || *t.FeeCategoryID == categoryID
}
