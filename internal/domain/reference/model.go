// Package reference provides the reference data consumed by the pricing
// engine: currencies, units of measure, conversion factors, airports,
// organisations, fuels, aircraft types and the category catalogs that
// fee and tax rules point at. Persistence lives behind the repository
// interfaces; the engine only reads these values.
package reference

import (
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
)

// UnitCode identifies a unit of measure, e.g. "USG", "L", "KG", "T".
type UnitCode string

// Unit represents a measurement unit for fuel quantities.
type Unit struct {
	Code        UnitCode `db:"code" json:"code"`
	Description string   `db:"description" json:"description"`

	// FixedUplift marks "per uplift" pseudo-units: a price in such a
	// unit applies once per fueling, with no quantity multiplication.
	FixedUplift bool `db:"fixed_uplift" json:"fixedUplift"`
}

// ConversionFactor converts a fuel quantity between two units.
// A nil FuelID means the factor applies to all fuels.
type ConversionFactor struct {
	ID       id.ID           `db:"id" json:"id"`
	FromUnit UnitCode        `db:"from_unit" json:"fromUnit"`
	ToUnit   UnitCode        `db:"to_unit" json:"toUnit"`
	FuelID   *id.ID          `db:"fuel_id" json:"fuelId,omitempty"`
	Factor   decimal.Decimal `db:"factor" json:"factor"`
}

// Currency represents a monetary unit.
type Currency struct {
	// Code is the ISO 4217 alphabetic code (e.g., "USD", "EUR")
	Code string `db:"code" json:"code"`

	Name string `db:"name" json:"name"`

	// DivisionName names the subunit, e.g. "cents"
	DivisionName string `db:"division_name" json:"divisionName,omitempty"`

	// DivisionFactor is subunits per major unit, e.g. 100
	DivisionFactor decimal.Decimal `db:"division_factor" json:"divisionFactor"`
}

// PricingUnit couples a currency with the unit a price is quoted per,
// e.g. "USD cents per USG" or "EUR per uplift".
type PricingUnit struct {
	ID          id.ID  `db:"id" json:"id"`
	Description string `db:"description" json:"description"`

	CurrencyCode string `db:"currency_code" json:"currencyCode"`

	// CurrencyDivisionUsed marks prices quoted in subunits (cents).
	CurrencyDivisionUsed   bool            `db:"currency_division_used" json:"currencyDivisionUsed"`
	CurrencyDivisionFactor decimal.Decimal `db:"currency_division_factor" json:"currencyDivisionFactor"`

	// UnitCode is the uom the price is per; empty for fixed uplift.
	UnitCode UnitCode `db:"unit_code" json:"unitCode,omitempty"`

	// FixedUplift means the price applies once per uplift event.
	FixedUplift bool `db:"fixed_uplift" json:"fixedUplift"`
}

// MajorPrice returns a price quoted in this unit expressed in major
// currency units (divides out the cents-like subunit factor).
func (u PricingUnit) MajorPrice(p decimal.Decimal) decimal.Decimal {
	if u.CurrencyDivisionUsed && u.CurrencyDivisionFactor.IsPositive() {
		return p.Div(u.CurrencyDivisionFactor)
	}
	return p
}

// Airport represents a serviced location.
type Airport struct {
	ID        id.ID  `db:"id" json:"id"`
	ICAO      string `db:"icao" json:"icao"`
	IATA      string `db:"iata" json:"iata,omitempty"`
	Name      string `db:"name" json:"name"`
	CountryID id.ID  `db:"country_id" json:"countryId"`

	// TimeZone is the IANA zone name used to resolve local uplift times.
	TimeZone string `db:"time_zone" json:"timeZone"`
}

// Organisation represents any counterparty: supplier, into-plane agent,
// ground handler or client.
type Organisation struct {
	ID   id.ID  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// FuelType represents a concrete fuel product within a category
// (e.g. Jet A-1 within "jet fuel").
type FuelType struct {
	ID         id.ID  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	CategoryID id.ID  `db:"category_id" json:"categoryId"`
}

// AircraftType carries the weights used for weight-banded fees. Either
// weight may be absent; a band for a missing measurement system is
// treated as matching.
type AircraftType struct {
	ID         id.ID            `db:"id" json:"id"`
	Designator string           `db:"designator" json:"designator"`
	Name       string           `db:"name" json:"name"`
	MTOWKg     *decimal.Decimal `db:"mtow_kg" json:"mtowKg,omitempty"`
	MTOWLbs    *decimal.Decimal `db:"mtow_lbs" json:"mtowLbs,omitempty"`
}

// DeliveryMethod is a fuel delivery method (hydrant, bowser, ...).
type DeliveryMethod struct {
	ID   id.ID  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// FeeCategory classifies supplier fees (into-plane fee, hookup fee...).
type FeeCategory struct {
	ID   id.ID  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// TaxCategory classifies taxes (VAT, excise duty, ...).
type TaxCategory struct {
	ID   id.ID  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// DocKind discriminates the source document a rate belongs to.
type DocKind string

const (
	DocNone      DocKind = ""
	DocAgreement DocKind = "agreement"
	DocPriceList DocKind = "price_list"
)

// SourceDoc links a rate to the agreement or published price list it
// came from.
type SourceDoc struct {
	ID        id.ID      `db:"id" json:"id"`
	Kind      DocKind    `db:"kind" json:"kind"`
	Reference string     `db:"reference" json:"reference"`
	Published bool       `db:"published" json:"published"`
	ValidTo   *time.Time `db:"valid_to" json:"validTo,omitempty"`
}
