package reference

import (
	"context"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
)

// FactorSource resolves a unit conversion factor for a fuel.
// Implementations must return found=false (not an error) when no row
// exists; the converter decides the fallback order.
type FactorSource interface {
	// Factor returns the multiplier converting a quantity in fromUnit
	// into toUnit. A nil fuelID requests the generic all-fuels row.
	Factor(ctx context.Context, fromUnit, toUnit UnitCode, fuelID *id.ID) (factor decimal.Decimal, found bool, err error)
}

// Repository provides lookups of reference entities the engine and the
// API layer need around a calculation.
type Repository interface {
	Airport(ctx context.Context, airportID id.ID) (*Airport, error)
	Organisation(ctx context.Context, orgID id.ID) (*Organisation, error)
	AircraftType(ctx context.Context, typeID id.ID) (*AircraftType, error)

	// RepresentativeAircraftType returns the type substituted when a
	// scenario names neither an aircraft nor a type.
	RepresentativeAircraftType(ctx context.Context) (*AircraftType, error)

	Currency(ctx context.Context, code string) (*Currency, error)
	Unit(ctx context.Context, code UnitCode) (*Unit, error)
}
