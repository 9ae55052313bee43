package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/pricing"
	"fuelops/internal/domain/reference"
)

const (
	pricingRuleTable    = "pricing_rules"
	ruleMethodTable     = "pricing_rule_delivery_methods"
	indexPriceTable     = "pricing_index_prices"
	feeRuleTable        = "fee_rules"
	feePeriodTable      = "fee_rule_periods"
	taxRuleTable        = "tax_rules"
	inclusiveTaxesTable = "pricing_rule_inclusive_taxes"
)

// PricingRepo implements pricing.RuleSource: it loads the candidate
// rule snapshot a calculation run filters in memory. The store pushes
// the cheap, indexable predicates (airport, client, validity) into SQL
// and leaves the order-sensitive filtering to the engine.
type PricingRepo struct {
	pool *Pool
}

// NewPricingRepo creates the pricing rule store.
func NewPricingRepo(pool *Pool) *PricingRepo {
	return &PricingRepo{pool: pool}
}

type fuelPricingRow struct {
	ID   id.ID  `db:"id"`
	Kind string `db:"kind"`

	SupplierID   id.ID  `db:"supplier_id"`
	SupplierName string `db:"supplier_name"`
	IPAID        id.ID  `db:"ipa_id"`
	IPAName      string `db:"ipa_name"`

	AirportID id.ID  `db:"airport_id"`
	FuelID    id.ID  `db:"fuel_id"`
	FuelName  string `db:"fuel_name"`

	ClientID *id.ID `db:"client_id"`

	ApronID   *id.ID `db:"apron_id"`
	ApronName string `db:"apron_name"`

	HandlerID         *id.ID `db:"handler_id"`
	HandlerName       string `db:"handler_name"`
	HandlerIsExcluded bool   `db:"handler_is_excluded"`

	BandUnit  *string          `db:"band_unit"`
	BandStart *decimal.Decimal `db:"band_start"`
	BandEnd   *decimal.Decimal `db:"band_end"`
	ParentID  *id.ID           `db:"parent_id"`

	Hookup       *string  `db:"hookup"`
	FlightTypes  []string `db:"flight_types"`
	Destinations []string `db:"destinations"`

	AppliesToCommercial bool `db:"applies_to_commercial"`
	AppliesToPrivate    bool `db:"applies_to_private"`

	ValidFrom          time.Time  `db:"valid_from"`
	ValidTo            *time.Time `db:"valid_to"`
	UntilFurtherNotice bool       `db:"until_further_notice"`

	UnitID             id.ID           `db:"unit_id"`
	UnitDescription    string          `db:"unit_description"`
	UnitCurrency       string          `db:"unit_currency"`
	UnitDivisionUsed   bool            `db:"unit_division_used"`
	UnitDivisionFactor decimal.Decimal `db:"unit_division_factor"`
	UnitCode           string          `db:"unit_code"`
	UnitFixedUplift    bool            `db:"unit_fixed_uplift"`

	SourceDocID   *id.ID `db:"source_doc_id"`
	SourceDocKind string `db:"source_doc_kind"`
	Published     bool   `db:"published"`

	InclusiveAll  bool `db:"inclusive_all"`
	FeesInclusive bool `db:"fees_inclusive"`

	UnitPrice decimal.Decimal `db:"unit_price"`

	IndexID               *id.ID           `db:"index_id"`
	Differential          decimal.Decimal  `db:"differential"`
	VolumeConversionRatio *decimal.Decimal `db:"volume_conversion_ratio"`

	DiscountAmount    decimal.Decimal `db:"discount_amount"`
	DiscountPercent   decimal.Decimal `db:"discount_percent"`
	DiscountIsPercent bool            `db:"discount_is_percent"`
}

var fuelPricingCols = []string{
	"r.id", "r.kind",
	"s.id AS supplier_id", "s.name AS supplier_name",
	"i.id AS ipa_id", "i.name AS ipa_name",
	"r.airport_id", "r.fuel_id", "f.name AS fuel_name",
	"r.client_id",
	"r.apron_id", "COALESCE(ap.name, '') AS apron_name",
	"r.handler_id", "COALESCE(h.name, '') AS handler_name", "r.handler_is_excluded",
	"r.band_unit", "r.band_start", "r.band_end", "r.parent_id",
	"r.hookup", "r.flight_types", "r.destinations",
	"r.applies_to_commercial", "r.applies_to_private",
	"r.valid_from", "r.valid_to", "r.until_further_notice",
	"u.id AS unit_id", "u.description AS unit_description",
	"u.currency_code AS unit_currency",
	"u.currency_division_used AS unit_division_used",
	"u.currency_division_factor AS unit_division_factor",
	"COALESCE(u.unit_code, '') AS unit_code", "u.fixed_uplift AS unit_fixed_uplift",
	"r.source_doc_id", "COALESCE(d.kind, '') AS source_doc_kind",
	"COALESCE(d.published, false) AS published",
	"r.inclusive_all", "r.fees_inclusive",
	"r.unit_price",
	"r.index_id", "r.differential", "r.volume_conversion_ratio",
	"r.discount_amount", "r.discount_percent", "r.discount_is_percent",
}

// FuelPricing loads the candidate pricing rules for one scenario,
// including the joined delivery methods, index prices and inclusive tax
// categories each rule carries.
func (r *PricingRepo) FuelPricing(ctx context.Context, q pricing.RuleQuery) ([]*pricing.FuelPricingRule, error) {
	sb := builder().
		Select(fuelPricingCols...).
		From(pricingRuleTable + " r").
		Join("ref_organisations s ON s.id = r.supplier_id").
		Join("ref_organisations i ON i.id = r.ipa_id").
		Join("ref_fuel_types f ON f.id = r.fuel_id").
		LeftJoin("ref_organisations h ON h.id = r.handler_id").
		LeftJoin("ref_aprons ap ON ap.id = r.apron_id").
		LeftJoin("pricing_units u ON u.id = r.unit_id").
		LeftJoin("source_documents d ON d.id = r.source_doc_id").
		Where(squirrel.Eq{"r.airport_id": q.AirportID}).
		Where(squirrel.Eq{"f.category_id": q.FuelCategoryID}).
		Where(squirrel.LtOrEq{"r.valid_from": q.At}).
		OrderBy("r.valid_from", "r.id")

	if q.ClientID != nil {
		sb = sb.Where(squirrel.Or{
			squirrel.Eq{"r.client_id": nil},
			squirrel.Eq{"r.client_id": *q.ClientID},
		})
	} else {
		sb = sb.Where(squirrel.Eq{"r.client_id": nil})
	}
	if q.HandlerID != nil {
		sb = sb.Where(squirrel.Or{
			squirrel.Eq{"r.handler_id": nil},
			squirrel.Eq{"r.handler_id": *q.HandlerID},
			squirrel.Eq{"r.handler_is_excluded": true},
		})
	}
	if q.ApronID != nil {
		sb = sb.Where(squirrel.Or{
			squirrel.Eq{"r.apron_id": nil},
			squirrel.Eq{"r.apron_id": *q.ApronID},
		})
	}
	if q.IsPrivate {
		sb = sb.Where(squirrel.Eq{"r.applies_to_private": true})
	} else {
		sb = sb.Where(squirrel.Eq{"r.applies_to_commercial": true})
	}
	if !q.IncludeExpired {
		sb = sb.Where(squirrel.Or{
			squirrel.Eq{"r.until_further_notice": true},
			squirrel.Eq{"r.valid_to": nil},
			squirrel.GtOrEq{"r.valid_to": q.At},
		})
	}

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pricing query: %w", err)
	}

	var rows []fuelPricingRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select pricing rules: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ruleIDs := make([]id.ID, len(rows))
	indexIDs := make([]id.ID, 0, len(rows))
	for i, row := range rows {
		ruleIDs[i] = row.ID
		if row.IndexID != nil {
			indexIDs = append(indexIDs, *row.IndexID)
		}
	}

	methods, err := r.deliveryMethods(ctx, ruleIDs)
	if err != nil {
		return nil, err
	}
	inclusive, err := r.inclusiveTaxes(ctx, ruleIDs)
	if err != nil {
		return nil, err
	}
	indexPrices, err := r.indexPrices(ctx, indexIDs)
	if err != nil {
		return nil, err
	}

	rules := make([]*pricing.FuelPricingRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, mapFuelPricingRule(&rows[i], methods, inclusive, indexPrices))
	}
	return rules, nil
}

type deliveryMethodRow struct {
	RuleID   id.ID  `db:"rule_id"`
	MethodID id.ID  `db:"method_id"`
	Name     string `db:"name"`
}

func (r *PricingRepo) deliveryMethods(ctx context.Context, ruleIDs []id.ID) (map[id.ID][]reference.DeliveryMethod, error) {
	sb := builder().
		Select("m.rule_id", "m.method_id", "dm.name").
		From(ruleMethodTable + " m").
		Join("ref_delivery_methods dm ON dm.id = m.method_id").
		Where(squirrel.Eq{"m.rule_id": ruleIDs}).
		OrderBy("m.rule_id", "dm.name")

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delivery method query: %w", err)
	}

	var rows []deliveryMethodRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select delivery methods: %w", err)
	}

	out := make(map[id.ID][]reference.DeliveryMethod, len(rows))
	for _, row := range rows {
		out[row.RuleID] = append(out[row.RuleID], reference.DeliveryMethod{
			ID:   row.MethodID,
			Name: row.Name,
		})
	}
	return out, nil
}

type inclusiveTaxRow struct {
	RuleID     id.ID `db:"rule_id"`
	CategoryID id.ID `db:"category_id"`
}

func (r *PricingRepo) inclusiveTaxes(ctx context.Context, ruleIDs []id.ID) (map[id.ID][]id.ID, error) {
	sb := builder().
		Select("rule_id", "category_id").
		From(inclusiveTaxesTable).
		Where(squirrel.Eq{"rule_id": ruleIDs}).
		OrderBy("rule_id", "category_id")

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build inclusive taxes query: %w", err)
	}

	var rows []inclusiveTaxRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select inclusive taxes: %w", err)
	}

	out := make(map[id.ID][]id.ID, len(rows))
	for _, row := range rows {
		out[row.RuleID] = append(out[row.RuleID], row.CategoryID)
	}
	return out, nil
}

type indexPriceRow struct {
	ID      id.ID `db:"id"`
	IndexID id.ID `db:"index_id"`

	Price decimal.Decimal `db:"price"`

	UnitID             id.ID           `db:"unit_id"`
	UnitDescription    string          `db:"unit_description"`
	UnitCurrency       string          `db:"unit_currency"`
	UnitDivisionUsed   bool            `db:"unit_division_used"`
	UnitDivisionFactor decimal.Decimal `db:"unit_division_factor"`
	UnitCode           string          `db:"unit_code"`
	UnitFixedUplift    bool            `db:"unit_fixed_uplift"`

	ValidFrom time.Time  `db:"valid_from"`
	ValidTo   *time.Time `db:"valid_to"`

	FlightTypes  []string `db:"flight_types"`
	Destinations []string `db:"destinations"`

	SourcePublished bool `db:"source_published"`
}

func (r *PricingRepo) indexPrices(ctx context.Context, indexIDs []id.ID) (map[id.ID][]pricing.IndexPrice, error) {
	if len(indexIDs) == 0 {
		return nil, nil
	}

	sb := builder().
		Select(
			"p.id", "p.index_id", "p.price",
			"u.id AS unit_id", "u.description AS unit_description",
			"u.currency_code AS unit_currency",
			"u.currency_division_used AS unit_division_used",
			"u.currency_division_factor AS unit_division_factor",
			"COALESCE(u.unit_code, '') AS unit_code", "u.fixed_uplift AS unit_fixed_uplift",
			"p.valid_from", "p.valid_to",
			"p.flight_types", "p.destinations",
			"p.source_published",
		).
		From(indexPriceTable + " p").
		Join("pricing_units u ON u.id = p.unit_id").
		Where(squirrel.Eq{"p.index_id": indexIDs}).
		OrderBy("p.index_id", "p.valid_from", "p.id")

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build index price query: %w", err)
	}

	var rows []indexPriceRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select index prices: %w", err)
	}

	out := make(map[id.ID][]pricing.IndexPrice, len(rows))
	for _, row := range rows {
		out[row.IndexID] = append(out[row.IndexID], pricing.IndexPrice{
			ID:              row.ID,
			IndexID:         row.IndexID,
			Price:           row.Price,
			Unit:            mapPricingUnit(row.UnitID, row.UnitDescription, row.UnitCurrency, row.UnitDivisionUsed, row.UnitDivisionFactor, row.UnitCode, row.UnitFixedUplift),
			ValidFrom:       row.ValidFrom,
			ValidTo:         row.ValidTo,
			FlightTypes:     mapFlightTypes(row.FlightTypes),
			Destinations:    mapDestinations(row.Destinations),
			SourcePublished: row.SourcePublished,
		})
	}
	return out, nil
}

func mapFuelPricingRule(
	row *fuelPricingRow,
	methods map[id.ID][]reference.DeliveryMethod,
	inclusive map[id.ID][]id.ID,
	indexPrices map[id.ID][]pricing.IndexPrice,
) *pricing.FuelPricingRule {
	rule := &pricing.FuelPricingRule{
		ID:                     row.ID,
		Kind:                   pricing.PricingKind(row.Kind),
		SupplierID:             row.SupplierID,
		SupplierName:           row.SupplierName,
		IPAID:                  row.IPAID,
		IPAName:                row.IPAName,
		AirportID:              row.AirportID,
		FuelID:                 row.FuelID,
		FuelName:               row.FuelName,
		ClientID:               row.ClientID,
		DeliveryMethods:        methods[row.ID],
		ApronID:                row.ApronID,
		ApronName:              row.ApronName,
		HandlerID:              row.HandlerID,
		HandlerName:            row.HandlerName,
		HandlerIsExcluded:      row.HandlerIsExcluded,
		ParentID:               row.ParentID,
		FlightTypes:            mapFlightTypes(row.FlightTypes),
		Destinations:           mapDestinations(row.Destinations),
		AppliesToCommercial:    row.AppliesToCommercial,
		AppliesToPrivate:       row.AppliesToPrivate,
		ValidFrom:              row.ValidFrom,
		ValidTo:                row.ValidTo,
		UntilFurtherNotice:     row.UntilFurtherNotice,
		Unit:                   mapPricingUnit(row.UnitID, row.UnitDescription, row.UnitCurrency, row.UnitDivisionUsed, row.UnitDivisionFactor, row.UnitCode, row.UnitFixedUplift),
		SourceDocID:            row.SourceDocID,
		SourceDocKind:          reference.DocKind(row.SourceDocKind),
		Published:              row.Published,
		InclusiveTaxCategories: inclusive[row.ID],
		InclusiveAll:           row.InclusiveAll,
		FeesInclusive:          row.FeesInclusive,
		UnitPrice:              row.UnitPrice,
		Differential:           row.Differential,
		VolumeConversionRatio:  row.VolumeConversionRatio,
		DiscountAmount:         row.DiscountAmount,
		DiscountPercent:        row.DiscountPercent,
		DiscountIsPercent:      row.DiscountIsPercent,
	}
	if row.Hookup != nil {
		h := pricing.HookupMethod(*row.Hookup)
		rule.Hookup = &h
	}
	if row.BandUnit != nil && row.BandStart != nil && row.BandEnd != nil {
		rule.Band = &pricing.Band{
			Unit:  reference.UnitCode(*row.BandUnit),
			Start: *row.BandStart,
			End:   *row.BandEnd,
		}
	}
	if row.IndexID != nil {
		rule.IndexID = *row.IndexID
		rule.IndexPrices = indexPrices[*row.IndexID]
	}
	return rule
}

func mapPricingUnit(unitID id.ID, desc, currency string, divUsed bool, divFactor decimal.Decimal, code string, fixed bool) reference.PricingUnit {
	return reference.PricingUnit{
		ID:                     unitID,
		Description:            desc,
		CurrencyCode:           currency,
		CurrencyDivisionUsed:   divUsed,
		CurrencyDivisionFactor: divFactor,
		UnitCode:               reference.UnitCode(code),
		FixedUplift:            fixed,
	}
}

type feeRow struct {
	ID         id.ID `db:"id"`
	SupplierID id.ID `db:"supplier_id"`

	CategoryID   id.ID  `db:"category_id"`
	CategoryName string `db:"category_name"`
	DisplayName  string `db:"display_name"`

	FuelID *id.ID `db:"fuel_id"`

	FlightTypes         []string `db:"flight_types"`
	Destinations        []string `db:"destinations"`
	AppliesToCommercial bool     `db:"applies_to_commercial"`
	AppliesToPrivate    bool     `db:"applies_to_private"`

	BandUnit  *string          `db:"band_unit"`
	BandStart *decimal.Decimal `db:"band_start"`
	BandEnd   *decimal.Decimal `db:"band_end"`

	WeightMeasure *string          `db:"weight_measure"`
	WeightStart   *decimal.Decimal `db:"weight_start"`
	WeightEnd     *decimal.Decimal `db:"weight_end"`

	DeliveryMethodID   *id.ID  `db:"delivery_method_id"`
	DeliveryMethodName string  `db:"delivery_method_name"`
	ApronID            *id.ID  `db:"apron_id"`
	ApronName          string  `db:"apron_name"`
	HandlerID          *id.ID  `db:"handler_id"`
	HandlerName        string  `db:"handler_name"`
	HandlerIsExcluded  bool    `db:"handler_is_excluded"`
	Hookup             *string `db:"hookup"`

	RequiresDefueling    bool `db:"requires_defueling"`
	RequiresMultiVehicle bool `db:"requires_multi_vehicle"`

	NativePrice       decimal.Decimal  `db:"native_price"`
	NativeCurrency    string           `db:"native_currency"`
	ConvertedPrice    *decimal.Decimal `db:"converted_price"`
	ConvertedCurrency string           `db:"converted_currency"`
	ExchangeRate      *decimal.Decimal `db:"exchange_rate"`

	UnitID             id.ID           `db:"unit_id"`
	UnitDescription    string          `db:"unit_description"`
	UnitCurrency       string          `db:"unit_currency"`
	UnitDivisionUsed   bool            `db:"unit_division_used"`
	UnitDivisionFactor decimal.Decimal `db:"unit_division_factor"`
	UnitCode           string          `db:"unit_code"`
	UnitFixedUplift    bool            `db:"unit_fixed_uplift"`

	ValidFrom          time.Time  `db:"valid_from"`
	ValidTo            *time.Time `db:"valid_to"`
	UntilFurtherNotice bool       `db:"until_further_notice"`

	SourceDocID   *id.ID `db:"source_doc_id"`
	SourceDocKind string `db:"source_doc_kind"`
}

type feePeriodRow struct {
	FeeID    id.ID `db:"fee_id"`
	DayFrom  int   `db:"day_from"`
	DayTo    int   `db:"day_to"`
	TimeFrom int   `db:"time_from"`
	TimeTo   int   `db:"time_to"`
	Local    bool  `db:"local"`
}

// Fees loads the fee rates the named suppliers publish at the airport.
// Day and time-of-day validity periods are joined on; the engine
// evaluates them against the uplift moment.
func (r *PricingRepo) Fees(ctx context.Context, q pricing.FeeQuery) ([]*pricing.FeeRule, error) {
	sb := builder().
		Select(
			"fr.id", "fr.supplier_id",
			"fr.category_id", "fc.name AS category_name", "fr.display_name",
			"fr.fuel_id",
			"fr.flight_types", "fr.destinations",
			"fr.applies_to_commercial", "fr.applies_to_private",
			"fr.band_unit", "fr.band_start", "fr.band_end",
			"fr.weight_measure", "fr.weight_start", "fr.weight_end",
			"fr.delivery_method_id", "COALESCE(dm.name, '') AS delivery_method_name",
			"fr.apron_id", "COALESCE(ap.name, '') AS apron_name",
			"fr.handler_id", "COALESCE(h.name, '') AS handler_name", "fr.handler_is_excluded",
			"fr.hookup",
			"fr.requires_defueling", "fr.requires_multi_vehicle",
			"fr.native_price", "fr.native_currency",
			"fr.converted_price", "COALESCE(fr.converted_currency, '') AS converted_currency",
			"fr.exchange_rate",
			"u.id AS unit_id", "u.description AS unit_description",
			"u.currency_code AS unit_currency",
			"u.currency_division_used AS unit_division_used",
			"u.currency_division_factor AS unit_division_factor",
			"COALESCE(u.unit_code, '') AS unit_code", "u.fixed_uplift AS unit_fixed_uplift",
			"fr.valid_from", "fr.valid_to", "fr.until_further_notice",
			"fr.source_doc_id", "COALESCE(d.kind, '') AS source_doc_kind",
		).
		From(feeRuleTable + " fr").
		Join("fee_categories fc ON fc.id = fr.category_id").
		LeftJoin("ref_delivery_methods dm ON dm.id = fr.delivery_method_id").
		LeftJoin("ref_aprons ap ON ap.id = fr.apron_id").
		LeftJoin("ref_organisations h ON h.id = fr.handler_id").
		LeftJoin("pricing_units u ON u.id = fr.unit_id").
		LeftJoin("source_documents d ON d.id = fr.source_doc_id").
		Where(squirrel.Eq{"fr.airport_id": q.AirportID}).
		Where(squirrel.Eq{"fr.supplier_id": q.SupplierIDs}).
		Where(squirrel.LtOrEq{"fr.valid_from": q.At}).
		OrderBy("fr.supplier_id", "fr.display_name", "fr.valid_from", "fr.id")

	if q.IsPrivate {
		sb = sb.Where(squirrel.Eq{"fr.applies_to_private": true})
	} else {
		sb = sb.Where(squirrel.Eq{"fr.applies_to_commercial": true})
	}
	if !q.IncludeExpired {
		sb = sb.Where(squirrel.Or{
			squirrel.Eq{"fr.until_further_notice": true},
			squirrel.Eq{"fr.valid_to": nil},
			squirrel.GtOrEq{"fr.valid_to": q.At},
		})
	}

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build fee query: %w", err)
	}

	var rows []feeRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select fee rules: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	feeIDs := make([]id.ID, len(rows))
	for i, row := range rows {
		feeIDs[i] = row.ID
	}
	periods, err := r.feePeriods(ctx, feeIDs)
	if err != nil {
		return nil, err
	}

	fees := make([]*pricing.FeeRule, 0, len(rows))
	for i := range rows {
		fees = append(fees, mapFeeRule(&rows[i], periods))
	}
	return fees, nil
}

func (r *PricingRepo) feePeriods(ctx context.Context, feeIDs []id.ID) (map[id.ID][]pricing.ValidityPeriod, error) {
	sb := builder().
		Select("fee_id", "day_from", "day_to", "time_from", "time_to", "local").
		From(feePeriodTable).
		Where(squirrel.Eq{"fee_id": feeIDs}).
		OrderBy("fee_id", "day_from", "time_from")

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build fee period query: %w", err)
	}

	var rows []feePeriodRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select fee periods: %w", err)
	}

	out := make(map[id.ID][]pricing.ValidityPeriod, len(rows))
	for _, row := range rows {
		out[row.FeeID] = append(out[row.FeeID], pricing.ValidityPeriod{
			DayFrom:  time.Weekday(row.DayFrom),
			DayTo:    time.Weekday(row.DayTo),
			TimeFrom: row.TimeFrom,
			TimeTo:   row.TimeTo,
			Local:    row.Local,
		})
	}
	return out, nil
}

func mapFeeRule(row *feeRow, periods map[id.ID][]pricing.ValidityPeriod) *pricing.FeeRule {
	fee := &pricing.FeeRule{
		ID:                   row.ID,
		SupplierID:           row.SupplierID,
		CategoryID:           row.CategoryID,
		CategoryName:         row.CategoryName,
		DisplayName:          row.DisplayName,
		FuelID:               row.FuelID,
		FlightTypes:          mapFlightTypes(row.FlightTypes),
		Destinations:         mapDestinations(row.Destinations),
		AppliesToCommercial:  row.AppliesToCommercial,
		AppliesToPrivate:     row.AppliesToPrivate,
		DeliveryMethodID:     row.DeliveryMethodID,
		DeliveryMethodName:   row.DeliveryMethodName,
		ApronID:              row.ApronID,
		ApronName:            row.ApronName,
		HandlerID:            row.HandlerID,
		HandlerName:          row.HandlerName,
		HandlerIsExcluded:    row.HandlerIsExcluded,
		RequiresDefueling:    row.RequiresDefueling,
		RequiresMultiVehicle: row.RequiresMultiVehicle,
		Periods:              periods[row.ID],
		NativePrice:          row.NativePrice,
		NativeCurrency:       row.NativeCurrency,
		ConvertedPrice:       row.ConvertedPrice,
		ConvertedCurrency:    row.ConvertedCurrency,
		ExchangeRate:         row.ExchangeRate,
		Unit:                 mapPricingUnit(row.UnitID, row.UnitDescription, row.UnitCurrency, row.UnitDivisionUsed, row.UnitDivisionFactor, row.UnitCode, row.UnitFixedUplift),
		ValidFrom:            row.ValidFrom,
		ValidTo:              row.ValidTo,
		UntilFurtherNotice:   row.UntilFurtherNotice,
		SourceDocID:          row.SourceDocID,
		SourceDocKind:        reference.DocKind(row.SourceDocKind),
	}
	if row.Hookup != nil {
		h := pricing.HookupMethod(*row.Hookup)
		fee.Hookup = &h
	}
	if row.BandUnit != nil && row.BandStart != nil && row.BandEnd != nil {
		fee.QuantityBand = &pricing.Band{
			Unit:  reference.UnitCode(*row.BandUnit),
			Start: *row.BandStart,
			End:   *row.BandEnd,
		}
	}
	if row.WeightMeasure != nil && row.WeightStart != nil && row.WeightEnd != nil {
		fee.WeightBand = &pricing.WeightBand{
			Measure: pricing.WeightMeasure(*row.WeightMeasure),
			Start:   *row.WeightStart,
			End:     *row.WeightEnd,
		}
	}
	return fee
}

type taxRow struct {
	ID         id.ID  `db:"id"`
	Official   bool   `db:"official"`
	SupplierID *id.ID `db:"supplier_id"`

	CategoryID   id.ID  `db:"category_id"`
	CategoryName string `db:"category_name"`

	AppliesToFuel bool   `db:"applies_to_fuel"`
	AppliesToFees bool   `db:"applies_to_fees"`
	FeeCategoryID *id.ID `db:"fee_category_id"`

	FuelID         *id.ID `db:"fuel_id"`
	FuelCategoryID *id.ID `db:"fuel_category_id"`

	Percentage *decimal.Decimal `db:"percentage"`
	UnitRate   *decimal.Decimal `db:"unit_rate"`

	UnitID             *id.ID           `db:"unit_id"`
	UnitDescription    *string          `db:"unit_description"`
	UnitCurrency       *string          `db:"unit_currency"`
	UnitDivisionUsed   *bool            `db:"unit_division_used"`
	UnitDivisionFactor *decimal.Decimal `db:"unit_division_factor"`
	UnitCode           *string          `db:"unit_code"`
	UnitFixedUplift    *bool            `db:"unit_fixed_uplift"`

	Band1Kind    *string          `db:"band1_kind"`
	Band1Unit    *string          `db:"band1_unit"`
	Band1Measure *string          `db:"band1_measure"`
	Band1Start   *decimal.Decimal `db:"band1_start"`
	Band1End     *decimal.Decimal `db:"band1_end"`

	Band2Kind    *string          `db:"band2_kind"`
	Band2Unit    *string          `db:"band2_unit"`
	Band2Measure *string          `db:"band2_measure"`
	Band2Start   *decimal.Decimal `db:"band2_start"`
	Band2End     *decimal.Decimal `db:"band2_end"`

	CountryID *id.ID `db:"country_id"`
	AirportID *id.ID `db:"airport_id"`

	FlightTypes  []string `db:"flight_types"`
	Destinations []string `db:"destinations"`

	TaxedByRuleID *id.ID `db:"taxed_by_rule_id"`

	ValidFrom          time.Time  `db:"valid_from"`
	ValidTo            *time.Time `db:"valid_to"`
	UntilFurtherNotice bool       `db:"until_further_notice"`

	SourceDocID   *id.ID `db:"source_doc_id"`
	SourceDocKind string `db:"source_doc_kind"`

	OfficialOnly bool `db:"official_only"`
}

var taxCols = []string{
	"t.id", "t.official", "t.supplier_id",
	"t.category_id", "tc.name AS category_name",
	"t.applies_to_fuel", "t.applies_to_fees", "t.fee_category_id",
	"t.fuel_id", "t.fuel_category_id",
	"t.percentage", "t.unit_rate",
	"u.id AS unit_id", "u.description AS unit_description",
	"u.currency_code AS unit_currency",
	"u.currency_division_used AS unit_division_used",
	"u.currency_division_factor AS unit_division_factor",
	"u.unit_code AS unit_code", "u.fixed_uplift AS unit_fixed_uplift",
	"t.band1_kind", "t.band1_unit", "t.band1_measure", "t.band1_start", "t.band1_end",
	"t.band2_kind", "t.band2_unit", "t.band2_measure", "t.band2_start", "t.band2_end",
	"t.country_id", "t.airport_id",
	"t.flight_types", "t.destinations",
	"t.taxed_by_rule_id",
	"t.valid_from", "t.valid_to", "t.until_further_notice",
	"t.source_doc_id", "COALESCE(d.kind, '') AS source_doc_kind",
	"t.official_only",
}

// OfficialTaxes loads the jurisdiction-defined tax rules for the
// airport: airport-specific rules plus the country-level rules of its
// country. The engine resolves airport-over-country supersession.
func (r *PricingRepo) OfficialTaxes(ctx context.Context, q pricing.TaxQuery) ([]*pricing.TaxRule, error) {
	return r.taxes(ctx, q, true)
}

// SupplierTaxes loads the supplier-defined tax exceptions in the same
// geographic scope.
func (r *PricingRepo) SupplierTaxes(ctx context.Context, q pricing.TaxQuery) ([]*pricing.TaxRule, error) {
	return r.taxes(ctx, q, false)
}

func (r *PricingRepo) taxes(ctx context.Context, q pricing.TaxQuery, official bool) ([]*pricing.TaxRule, error) {
	sb := builder().
		Select(taxCols...).
		From(taxRuleTable + " t").
		Join("tax_categories tc ON tc.id = t.category_id").
		LeftJoin("pricing_units u ON u.id = t.unit_id").
		LeftJoin("source_documents d ON d.id = t.source_doc_id").
		Where(squirrel.Eq{"t.official": official}).
		Where(squirrel.Or{
			squirrel.Eq{"t.airport_id": q.AirportID},
			squirrel.And{
				squirrel.Eq{"t.airport_id": nil},
				squirrel.Eq{"t.country_id": q.CountryID},
			},
		}).
		Where(squirrel.LtOrEq{"t.valid_from": q.At}).
		Where(squirrel.Or{
			squirrel.Eq{"t.until_further_notice": true},
			squirrel.Eq{"t.valid_to": nil},
			squirrel.GtOrEq{"t.valid_to": q.At},
		}).
		OrderBy("t.category_id", "t.valid_from", "t.id")

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tax query: %w", err)
	}

	var rows []taxRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select tax rules: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	rules := make([]*pricing.TaxRule, 0, len(rows))
	byID := make(map[id.ID]*pricing.TaxRule, len(rows))
	for i := range rows {
		rule := mapTaxRule(&rows[i])
		rules = append(rules, rule)
		byID[rule.ID] = rule
	}

	// Resolve cascading links within the loaded set; rules taxing a rule
	// outside the set fall back to a point fetch.
	for _, rule := range rules {
		if rule.TaxedByRuleID == nil {
			continue
		}
		if linked, ok := byID[*rule.TaxedByRuleID]; ok {
			rule.TaxedBy = linked
			continue
		}
		linked, err := r.taxByID(ctx, *rule.TaxedByRuleID)
		if err != nil {
			return nil, err
		}
		rule.TaxedBy = linked
	}
	return rules, nil
}

func (r *PricingRepo) taxByID(ctx context.Context, ruleID id.ID) (*pricing.TaxRule, error) {
	sb := builder().
		Select(taxCols...).
		From(taxRuleTable + " t").
		Join("tax_categories tc ON tc.id = t.category_id").
		LeftJoin("pricing_units u ON u.id = t.unit_id").
		LeftJoin("source_documents d ON d.id = t.source_doc_id").
		Where(squirrel.Eq{"t.id": ruleID})

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tax point query: %w", err)
	}

	var row taxRow
	if err := pgxscan.Get(ctx, r.pool, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tax rule: %w", err)
	}
	return mapTaxRule(&row), nil
}

func mapTaxRule(row *taxRow) *pricing.TaxRule {
	rule := &pricing.TaxRule{
		ID:                 row.ID,
		Official:           row.Official,
		SupplierID:         row.SupplierID,
		CategoryID:         row.CategoryID,
		CategoryName:       row.CategoryName,
		AppliesToFuel:      row.AppliesToFuel,
		AppliesToFees:      row.AppliesToFees,
		FeeCategoryID:      row.FeeCategoryID,
		FuelID:             row.FuelID,
		FuelCategoryID:     row.FuelCategoryID,
		Percentage:         row.Percentage,
		UnitRate:           row.UnitRate,
		CountryID:          row.CountryID,
		AirportID:          row.AirportID,
		FlightTypes:        mapFlightTypes(row.FlightTypes),
		Destinations:       mapDestinations(row.Destinations),
		TaxedByRuleID:      row.TaxedByRuleID,
		ValidFrom:          row.ValidFrom,
		ValidTo:            row.ValidTo,
		UntilFurtherNotice: row.UntilFurtherNotice,
		SourceDocID:        row.SourceDocID,
		SourceDocKind:      reference.DocKind(row.SourceDocKind),
		OfficialOnly:       row.OfficialOnly,
	}
	if row.UnitID != nil {
		unit := mapPricingUnit(
			*row.UnitID,
			derefString(row.UnitDescription),
			derefString(row.UnitCurrency),
			row.UnitDivisionUsed != nil && *row.UnitDivisionUsed,
			derefDecimal(row.UnitDivisionFactor),
			derefString(row.UnitCode),
			row.UnitFixedUplift != nil && *row.UnitFixedUplift,
		)
		rule.Unit = &unit
	}
	rule.Band1 = mapTaxBand(row.Band1Kind, row.Band1Unit, row.Band1Measure, row.Band1Start, row.Band1End)
	rule.Band2 = mapTaxBand(row.Band2Kind, row.Band2Unit, row.Band2Measure, row.Band2Start, row.Band2End)
	return rule
}

func mapTaxBand(kind, unit, measure *string, start, end *decimal.Decimal) *pricing.TaxBand {
	if kind == nil || start == nil || end == nil {
		return nil
	}
	b := &pricing.TaxBand{
		Kind:  pricing.TaxBandKind(*kind),
		Start: *start,
		End:   *end,
	}
	if unit != nil {
		b.Unit = reference.UnitCode(*unit)
	}
	if measure != nil {
		b.Measure = pricing.WeightMeasure(*measure)
	}
	return b
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefDecimal(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func mapFlightTypes(codes []string) []pricing.FlightType {
	if len(codes) == 0 {
		return nil
	}
	out := make([]pricing.FlightType, len(codes))
	for i, c := range codes {
		out[i] = pricing.FlightType(c)
	}
	return out
}

func mapDestinations(codes []string) []pricing.DestinationType {
	if len(codes) == 0 {
		return nil
	}
	out := make([]pricing.DestinationType, len(codes))
	for i, c := range codes {
		out[i] = pricing.DestinationType(c)
	}
	return out
}
