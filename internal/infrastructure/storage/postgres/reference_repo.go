package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fuelops/internal/core/apperror"
	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
)

const (
	airportTable      = "ref_airports"
	organisationTable = "ref_organisations"
	aircraftTable     = "ref_aircraft_types"
	currencyTable     = "ref_currencies"
	unitTable         = "ref_units"
	factorTable       = "ref_conversion_factors"
)

// ReferenceRepo implements reference.Repository and
// reference.FactorSource on top of PostgreSQL.
type ReferenceRepo struct {
	pool *Pool
}

// NewReferenceRepo creates the reference data repository.
func NewReferenceRepo(pool *Pool) *ReferenceRepo {
	return &ReferenceRepo{pool: pool}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *ReferenceRepo) Airport(ctx context.Context, airportID id.ID) (*reference.Airport, error) {
	q := builder().
		Select("id", "icao", "iata", "name", "country_id", "time_zone").
		From(airportTable).
		Where(squirrel.Eq{"id": airportID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build airport query: %w", err)
	}

	var airport reference.Airport
	if err := pgxscan.Get(ctx, r.pool, &airport, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("airport", airportID)
		}
		return nil, fmt.Errorf("get airport: %w", err)
	}
	return &airport, nil
}

func (r *ReferenceRepo) Organisation(ctx context.Context, orgID id.ID) (*reference.Organisation, error) {
	q := builder().
		Select("id", "name").
		From(organisationTable).
		Where(squirrel.Eq{"id": orgID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build organisation query: %w", err)
	}

	var org reference.Organisation
	if err := pgxscan.Get(ctx, r.pool, &org, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("organisation", orgID)
		}
		return nil, fmt.Errorf("get organisation: %w", err)
	}
	return &org, nil
}

func (r *ReferenceRepo) AircraftType(ctx context.Context, typeID id.ID) (*reference.AircraftType, error) {
	q := builder().
		Select("id", "designator", "name", "mtow_kg", "mtow_lbs").
		From(aircraftTable).
		Where(squirrel.Eq{"id": typeID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build aircraft type query: %w", err)
	}

	var ac reference.AircraftType
	if err := pgxscan.Get(ctx, r.pool, &ac, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("aircraft type", typeID)
		}
		return nil, fmt.Errorf("get aircraft type: %w", err)
	}
	return &ac, nil
}

// RepresentativeAircraftType returns the type flagged as the stand-in
// for scenarios that name no aircraft. Nil when none is configured.
func (r *ReferenceRepo) RepresentativeAircraftType(ctx context.Context) (*reference.AircraftType, error) {
	q := builder().
		Select("id", "designator", "name", "mtow_kg", "mtow_lbs").
		From(aircraftTable).
		Where(squirrel.Eq{"is_representative": true}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build representative aircraft query: %w", err)
	}

	var ac reference.AircraftType
	if err := pgxscan.Get(ctx, r.pool, &ac, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get representative aircraft type: %w", err)
	}
	return &ac, nil
}

func (r *ReferenceRepo) Currency(ctx context.Context, code string) (*reference.Currency, error) {
	q := builder().
		Select("code", "name", "division_name", "division_factor").
		From(currencyTable).
		Where(squirrel.Eq{"code": code})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build currency query: %w", err)
	}

	var cur reference.Currency
	if err := pgxscan.Get(ctx, r.pool, &cur, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("currency", code)
		}
		return nil, fmt.Errorf("get currency: %w", err)
	}
	return &cur, nil
}

func (r *ReferenceRepo) Unit(ctx context.Context, code reference.UnitCode) (*reference.Unit, error) {
	q := builder().
		Select("code", "description", "fixed_uplift").
		From(unitTable).
		Where(squirrel.Eq{"code": code})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unit query: %w", err)
	}

	var unit reference.Unit
	if err := pgxscan.Get(ctx, r.pool, &unit, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("unit", string(code))
		}
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return &unit, nil
}

// Factor implements reference.FactorSource. A nil fuelID requests the
// generic all-fuels row; the converter drives the fallback order, so a
// missing row is reported as found=false, never as an error.
func (r *ReferenceRepo) Factor(ctx context.Context, fromUnit, toUnit reference.UnitCode, fuelID *id.ID) (decimal.Decimal, bool, error) {
	q := builder().
		Select("factor").
		From(factorTable).
		Where(squirrel.Eq{"from_unit": fromUnit, "to_unit": toUnit}).
		Limit(1)
	if fuelID != nil {
		q = q.Where(squirrel.Eq{"fuel_id": *fuelID})
	} else {
		q = q.Where("fuel_id IS NULL")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("build factor query: %w", err)
	}

	var factor decimal.Decimal
	if err := pgxscan.Get(ctx, r.pool, &factor, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("get conversion factor: %w", err)
	}
	return factor, true, nil
}
