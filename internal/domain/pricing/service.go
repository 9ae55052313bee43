package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fuelops/internal/core/apperror"
	"fuelops/internal/core/id"
	"fuelops/internal/domain/exchange"
	"fuelops/internal/domain/reference"
	"fuelops/pkg/logger"
)

// Request carries the raw calculation inputs as received from the API
// layer; the service resolves them into an immutable Scenario.
type Request struct {
	AirportID      id.ID
	FuelCategoryID id.ID

	UpliftQuantity decimal.Decimal
	UpliftUnit     reference.UnitCode
	UpliftAt       time.Time

	FlightType  FlightType
	Destination DestinationType
	IsPrivate   bool

	Currency string

	ClientID       *id.ID
	HandlerID      *id.ID
	ApronID        *id.ID
	Hookup         *HookupMethod
	AircraftTypeID *id.ID

	IsFuelTaken    bool
	IsDefueling    bool
	IsMultiVehicle bool
	ExtendExpired  bool
}

// Result is the service's output: the sorted rows plus run metadata.
type Result struct {
	Rows          []*ResultRow  `json:"rows"`
	CurrencyPairs [][2]string   `json:"currencyPairs,omitempty"`
	Duration      time.Duration `json:"-"`
}

// AuditSink records finished calculations for later inspection.
type AuditSink interface {
	Record(ctx context.Context, scn *Scenario, res *Result) error
}

// Service wires the engine to its collaborators and runs calculations.
// Safe for concurrent use: every run builds its own Calculation and
// Converter.
type Service struct {
	rules   RuleSource
	factors reference.FactorSource
	rates   exchange.Provider
	refs    reference.Repository
	audit   AuditSink
	log     *logger.Logger
	tracer  trace.Tracer
}

// NewService builds the pricing service. The audit sink may be nil.
func NewService(
	rules RuleSource,
	factors reference.FactorSource,
	rates exchange.Provider,
	refs reference.Repository,
	audit AuditSink,
	log *logger.Logger,
) *Service {
	return &Service{
		rules:   rules,
		factors: factors,
		rates:   rates,
		refs:    refs,
		audit:   audit,
		log:     log.WithComponent("pricing_service"),
		tracer:  otel.Tracer("fuelops/pricing"),
	}
}

// Calculate resolves the request into a scenario, runs the engine and
// returns the ranked rows.
func (s *Service) Calculate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "pricing.Calculate",
		trace.WithAttributes(
			attribute.String("airport_id", req.AirportID.String()),
			attribute.String("flight_type", string(req.FlightType)),
		))
	defer span.End()

	scn, err := s.buildScenario(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	conv := NewConverter(s.factors, s.rates, s.log)
	calc := NewCalculation(scn, s.rules, conv, s.log)

	rows, err := calc.Run(ctx)
	if err != nil {
		logger.Error(ctx, "pricing calculation failed",
			"airport_id", req.AirportID, "err", err)
		return nil, err
	}

	res := &Result{
		Rows:          rows,
		CurrencyPairs: calc.UsedCurrencyPairs(),
		Duration:      time.Since(start),
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))

	logger.Info(ctx, "pricing calculation finished",
		"airport_id", req.AirportID,
		"rows", len(rows),
		"duration_ms", res.Duration.Milliseconds(),
	)

	if s.audit != nil {
		if aerr := s.audit.Record(ctx, scn, res); aerr != nil {
			// Audit is best-effort; the result is already computed.
			logger.Warn(ctx, "calculation audit record failed", "err", aerr)
		}
	}
	return res, nil
}

// buildScenario loads the reference data a run needs: the airport (for
// country and timezone) and the aircraft type, substituting the
// configured representative type when the request names none.
func (s *Service) buildScenario(ctx context.Context, req Request) (*Scenario, error) {
	airport, err := s.refs.Airport(ctx, req.AirportID)
	if err != nil {
		return nil, err
	}
	if airport == nil {
		return nil, apperror.NewNotFound("airport", req.AirportID)
	}

	var loc *time.Location
	if airport.TimeZone != "" {
		loc, err = time.LoadLocation(airport.TimeZone)
		if err != nil {
			return nil, apperror.NewConfiguration("airport has an invalid time zone").
				WithDetail("airport_id", airport.ID).
				WithDetail("time_zone", airport.TimeZone)
		}
	}

	scn := &Scenario{
		AirportID:      req.AirportID,
		Airport:        airport,
		FuelCategoryID: req.FuelCategoryID,
		UpliftQuantity: req.UpliftQuantity,
		UpliftUnit:     req.UpliftUnit,
		UpliftAt:       req.UpliftAt.UTC(),
		Location:       loc,
		FlightType:     req.FlightType,
		Destination:    req.Destination,
		IsPrivate:      req.IsPrivate,
		Currency:       req.Currency,
		ClientID:       req.ClientID,
		HandlerID:      req.HandlerID,
		ApronID:        req.ApronID,
		Hookup:         req.Hookup,
		IsFuelTaken:    req.IsFuelTaken,
		IsDefueling:    req.IsDefueling,
		IsMultiVehicle: req.IsMultiVehicle,
		ExtendExpired:  req.ExtendExpired,
	}

	switch {
	case req.AircraftTypeID != nil:
		ac, err := s.refs.AircraftType(ctx, *req.AircraftTypeID)
		if err != nil {
			return nil, err
		}
		scn.Aircraft = ac
	default:
		ac, err := s.refs.RepresentativeAircraftType(ctx)
		if err != nil {
			return nil, err
		}
		if ac != nil {
			scn.Aircraft = ac
			scn.AircraftRepresentative = true
		}
	}

	if err := scn.Validate(); err != nil {
		return nil, err
	}
	return scn, nil
}
