// Package pricing implements the fuel pricing calculation engine: given
// an uplift scenario and a snapshot of contractual pricing, fee and tax
// rules, it deterministically computes a ranked set of total costs per
// supplier combination.
package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/apperror"
	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
	"fuelops/pkg/logger"
)

// FlightType codes follow the handling-request convention: "A" covers
// all types.
type FlightType string

const (
	FlightTypeAll          FlightType = "A"
	FlightTypeScheduled    FlightType = "S"
	FlightTypeNonScheduled FlightType = "N"
	FlightTypeMilitary     FlightType = "M"
)

// DestinationType distinguishes domestic from international uplifts.
type DestinationType string

const (
	DestinationAll           DestinationType = "ALL"
	DestinationDomestic      DestinationType = "DOM"
	DestinationInternational DestinationType = "INT"
)

// HookupMethod is the fueling method.
type HookupMethod string

const (
	HookupOverWing    HookupMethod = "OW"
	HookupSinglePoint HookupMethod = "SP"
)

// Scenario is the immutable input bundle for one calculation run.
// Once constructed its fields do not change; all accumulating state
// (rate tables, factor cache, used currency pairs) lives on the
// per-run Converter.
type Scenario struct {
	AirportID      id.ID
	Airport        *reference.Airport
	FuelCategoryID id.ID

	UpliftQuantity decimal.Decimal
	UpliftUnit     reference.UnitCode

	// UpliftAt is the uplift moment in UTC. Location is the airport's
	// zone, used for local-time fee validity periods.
	UpliftAt time.Time
	Location *time.Location

	FlightType  FlightType
	Destination DestinationType
	IsPrivate   bool

	// Currency is the target currency for all emitted amounts. Empty
	// keeps each row in its fuel price's native currency.
	Currency string

	ClientID  *id.ID
	HandlerID *id.ID
	ApronID   *id.ID
	Hookup    *HookupMethod

	IsFuelTaken    bool
	IsDefueling    bool
	IsMultiVehicle bool

	// ExtendExpired permits falling back to the least-stale expired
	// pricing when a supplier+IPA pair has no valid row.
	ExtendExpired bool

	Aircraft *reference.AircraftType

	// AircraftRepresentative is set when the service substituted a
	// representative type because the scenario named none.
	AircraftRepresentative bool
}

// LocalUpliftTime returns the uplift moment in airport-local time.
func (s *Scenario) LocalUpliftTime() time.Time {
	if s.Location == nil {
		return s.UpliftAt.UTC()
	}
	return s.UpliftAt.In(s.Location)
}

// Validate checks the scenario invariants before a run.
func (s *Scenario) Validate() error {
	if id.IsNil(s.AirportID) {
		return apperror.NewValidation("airport is required")
	}
	if id.IsNil(s.FuelCategoryID) {
		return apperror.NewValidation("fuel category is required")
	}
	if s.IsFuelTaken && !s.UpliftQuantity.IsPositive() {
		return apperror.NewValidation("uplift quantity must be positive when fuel is taken")
	}
	if s.IsFuelTaken && s.UpliftUnit == "" {
		return apperror.NewValidation("uplift unit is required when fuel is taken")
	}
	if s.UpliftAt.IsZero() {
		return apperror.NewValidation("uplift datetime is required")
	}
	if s.FlightType == "" || s.Destination == "" {
		return apperror.NewValidation("flight type and destination are required")
	}
	return nil
}

// Phase tracks the orchestrator's linear state machine. There are no
// backward transitions and no retries.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhasePricingResolved
	PhaseFeesResolved
	PhaseTaxesResolved
	PhaseFinalized
)

// Calculation owns the state of one scenario run. It is single-use and
// not safe for concurrent access; concurrent runs each build their own.
type Calculation struct {
	scenario *Scenario
	source   RuleSource
	conv     *Converter
	log      *logger.Logger

	phase Phase

	// rows preserves insertion order; index guarantees RowKey
	// uniqueness in the final result set.
	rows  []*ResultRow
	index map[RowKey]*ResultRow
}

// NewCalculation prepares a run for the given scenario.
func NewCalculation(scn *Scenario, source RuleSource, conv *Converter, log *logger.Logger) *Calculation {
	return &Calculation{
		scenario: scn,
		source:   source,
		conv:     conv,
		log:      log.WithComponent("pricing_calculation"),
		phase:    PhaseInitialized,
		index:    make(map[RowKey]*ResultRow),
	}
}

// Run executes the pipeline: pricing, fees, taxes, finalize. Row-level
// problems become issues on the rows; only unresolvable unit or
// currency conversions abort the run.
func (c *Calculation) Run(ctx context.Context) ([]*ResultRow, error) {
	if err := c.scenario.Validate(); err != nil {
		return nil, err
	}

	if err := c.resolvePricing(ctx); err != nil {
		return nil, err
	}
	c.phase = PhasePricingResolved

	if err := c.resolveFees(ctx); err != nil {
		return nil, err
	}
	c.phase = PhaseFeesResolved

	if err := c.resolveTaxes(ctx); err != nil {
		return nil, err
	}
	c.phase = PhaseTaxesResolved

	c.finalize()
	c.phase = PhaseFinalized

	return c.rows, nil
}

// Phase exposes the current pipeline phase.
func (c *Calculation) Phase() Phase {
	return c.phase
}

// UsedCurrencyPairs reports every (from, to) conversion the run needed.
func (c *Calculation) UsedCurrencyPairs() [][2]string {
	return c.conv.UsedPairs()
}

// addRow inserts a row, keeping RowKey uniqueness. A duplicate key is a
// resolver bug upstream; the first row wins and the duplicate is logged.
func (c *Calculation) addRow(row *ResultRow) {
	if _, exists := c.index[row.Key]; exists {
		c.log.Warnw("duplicate result row dropped", "key", row.Key.String())
		return
	}
	c.index[row.Key] = row
	c.rows = append(c.rows, row)
}

// finalize marks rows without a priced fuel amount, totals each row,
// sorts ascending by total and tags the cheapest option.
func (c *Calculation) finalize() {
	for _, row := range c.rows {
		if row.FuelPrice == nil || row.FuelPrice.Amount.IsZero() && !row.FuelPrice.UnitPrice.IsPositive() {
			if !c.scenario.IsFuelTaken && len(row.Fees) > 0 {
				// No-uplift scenario priced on fees alone.
				row.AddNote("no fuel uplift requested; totals reflect fees and taxes only")
			} else {
				row.AddIssue(IssueNoFuelPrice, "no fuel price could be calculated for this combination")
				row.Escalate(StatusError)
			}
		}

		if c.scenario.IsFuelTaken && len(row.Fees) == 0 && len(row.OfficialTaxes) == 0 && len(row.SupplierTaxes) == 0 {
			// Best-effort reporting: the row survives, flagged.
			row.AddIssue(IssueNoFees, "no fees calculated for this combination")
			row.AddIssue(IssueNoTaxes, "no taxes calculated for this combination")
			row.Escalate(StatusError)
		} else {
			if len(row.Fees) == 0 {
				row.AddNote("no applicable fees found")
			}
			if len(row.OfficialTaxes) == 0 && len(row.SupplierTaxes) == 0 {
				row.AddNote("no applicable taxes found")
			}
		}

		row.Total = row.fuelAmount().Add(row.FeeTotal).Add(row.TaxTotal)
	}

	sort.SliceStable(c.rows, func(i, j int) bool {
		cmp := c.rows[i].Total.Cmp(c.rows[j].Total)
		if cmp != 0 {
			return cmp < 0
		}
		return c.rows[i].Key.String() < c.rows[j].Key.String()
	})

	if len(c.rows) > 0 {
		c.rows[0].Cheapest = true
	}
}
