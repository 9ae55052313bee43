package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/core/types"
	"fuelops/internal/domain/reference"
	"fuelops/pkg/logger"
)

// resolveFees attaches supplier fee lines to every priced row. Fees more
// specific than the row (handler, apron or delivery-method restricted
// against a generic row) split off synthetic rows instead of polluting
// the generic one.
func (c *Calculation) resolveFees(ctx context.Context) error {
	scn := c.scenario
	if len(c.rows) == 0 {
		return nil
	}

	suppliers := make([]id.ID, 0, len(c.rows))
	seen := make(map[id.ID]struct{})
	for _, row := range c.rows {
		if _, ok := seen[row.Key.SupplierID]; ok {
			continue
		}
		seen[row.Key.SupplierID] = struct{}{}
		suppliers = append(suppliers, row.Key.SupplierID)
	}

	fees, err := c.source.Fees(ctx, FeeQuery{
		AirportID:      scn.AirportID,
		SupplierIDs:    suppliers,
		FlightType:     scn.FlightType,
		Destination:    scn.Destination,
		IsPrivate:      scn.IsPrivate,
		At:             scn.UpliftAt,
		IncludeExpired: scn.ExtendExpired,
	})
	if err != nil {
		return err
	}

	extendFeeBandEdges(c.log, fees)

	// Snapshot: applying fees appends synthetic rows that must not be
	// re-processed in the same pass.
	base := append([]*ResultRow(nil), c.rows...)
	for _, row := range base {
		if row.FuelPrice != nil && row.FuelPrice.FeesInclusive {
			row.AddNote("fees included in the fuel price")
			continue
		}
		if err := c.applyFees(ctx, row, fees); err != nil {
			return err
		}
	}
	return nil
}

// extendFeeBandEdges applies the integer-bound compensation across fees
// competing under one display name for one supplier.
func extendFeeBandEdges(log *logger.Logger, fees []*FeeRule) {
	type nameKey struct {
		supplier id.ID
		name     string
	}
	siblings := make(map[nameKey][]*Band)
	for _, f := range fees {
		if f.QuantityBand == nil {
			continue
		}
		k := nameKey{supplier: f.SupplierID, name: f.DisplayName}
		siblings[k] = append(siblings[k], f.QuantityBand)
	}
	for _, bands := range siblings {
		ExtendBandEdges(log, bands)
	}
}

// applyFees filters the candidate fees down to the row, splits
// dimension-specific fees into synthetic rows, deduplicates by display
// name and totals the survivors.
func (c *Calculation) applyFees(ctx context.Context, row *ResultRow, fees []*FeeRule) error {
	direct, splits, err := c.partitionFees(ctx, row, fees)
	if err != nil {
		return err
	}

	c.attachFees(ctx, row, direct)

	for _, split := range splits {
		if _, exists := c.index[split.key]; exists {
			continue
		}
		synthetic := row.clone(split.key)
		synthetic.HandlerName = pickName(synthetic.HandlerName, split.handlerName)
		synthetic.ApronName = pickName(synthetic.ApronName, split.apronName)
		synthetic.DeliveryMethodName = pickName(synthetic.DeliveryMethodName, split.deliveryName)
		// The split row receives only the fees naming its dimension
		// value; the generic set stays on the source row.
		c.attachFees(ctx, synthetic, split.fees)

		if sameFeeSet(synthetic, row) {
			continue
		}
		c.addRow(synthetic)
	}
	return nil
}

// feeSplit groups dimension-specific fees under the refined row key they
// belong to.
type feeSplit struct {
	key          RowKey
	fees         []*FeeRule
	handlerName  string
	apronName    string
	deliveryName string
}

// partitionFees separates fees directly applicable to the row from fees
// that require a more specific row. Ordering of splits follows first
// appearance in the candidate list, keeping output deterministic.
func (c *Calculation) partitionFees(ctx context.Context, row *ResultRow, fees []*FeeRule) ([]*FeeRule, []*feeSplit, error) {
	var direct []*FeeRule
	var splits []*feeSplit
	splitIndex := make(map[RowKey]*feeSplit)

	for _, f := range fees {
		ok, err := c.feeMatchesRow(ctx, row, f)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}

		key, refined := refineKey(row.Key, f)
		if !refined {
			direct = append(direct, f)
			continue
		}
		split := splitIndex[key]
		if split == nil {
			split = &feeSplit{key: key}
			splitIndex[key] = split
			splits = append(splits, split)
		}
		split.fees = append(split.fees, f)
		if f.HandlerID != nil && !f.HandlerIsExcluded {
			split.handlerName = f.HandlerName
		}
		if f.ApronID != nil {
			split.apronName = f.ApronName
		}
		if f.DeliveryMethodID != nil {
			split.deliveryName = f.DeliveryMethodName
		}
	}
	return direct, splits, nil
}

// refineKey returns the row key a dimension-specific fee demands. A fee
// naming a dimension the row leaves generic refines the key; a fee
// conflicting with a dimension the row already fixes was filtered out
// earlier.
func refineKey(key RowKey, f *FeeRule) (RowKey, bool) {
	refined := false
	if f.DeliveryMethodID != nil && id.IsNil(key.DeliveryMethodID) {
		key.DeliveryMethodID = *f.DeliveryMethodID
		refined = true
	}
	if f.ApronID != nil && id.IsNil(key.ApronID) {
		key.ApronID = *f.ApronID
		refined = true
	}
	if f.HandlerID != nil && !f.HandlerIsExcluded && id.IsNil(key.HandlerID) {
		key.HandlerID = *f.HandlerID
		refined = true
	}
	return key, refined
}

// feeMatchesRow runs the fee predicate pipeline for one row. Dimension
// checks pass when the fee either matches the row's value or could
// refine a generic row; hard conflicts fail.
func (c *Calculation) feeMatchesRow(ctx context.Context, row *ResultRow, f *FeeRule) (bool, error) {
	scn := c.scenario

	if f.SupplierID != row.Key.SupplierID {
		return false, nil
	}
	if !f.AppliesTo(scn) {
		return false, nil
	}
	if f.FuelID != nil && *f.FuelID != row.Key.FuelID {
		return false, nil
	}
	if !sourceDocCompatible(row.FuelPrice, f.SourceDocID, f.SourceDocKind) {
		return false, nil
	}
	if expiresBeforeFuelPrice(row.FuelPrice, f.ExpiresAt()) {
		return false, nil
	}
	if !periodsContain(f.Periods, scn) {
		return false, nil
	}
	if !WeightInBand(scn.Aircraft, weightBandOrZero(f.WeightBand)) {
		return false, nil
	}
	if f.QuantityBand != nil {
		in, err := c.conv.ValueInBand(ctx, *f.QuantityBand, scn.UpliftQuantity, scn.UpliftUnit, row.Key.FuelID)
		if err != nil {
			return false, err
		}
		if !in {
			return false, nil
		}
	}

	// Dimension compatibility against the row's fixed values.
	if f.DeliveryMethodID != nil && !id.IsNil(row.Key.DeliveryMethodID) && *f.DeliveryMethodID != row.Key.DeliveryMethodID {
		return false, nil
	}
	if f.ApronID != nil && !id.IsNil(row.Key.ApronID) && *f.ApronID != row.Key.ApronID {
		return false, nil
	}
	if f.HandlerID != nil {
		effective := row.Key.HandlerID
		if id.IsNil(effective) && scn.HandlerID != nil {
			effective = *scn.HandlerID
		}
		if f.HandlerIsExcluded {
			if !id.IsNil(effective) && effective == *f.HandlerID {
				return false, nil
			}
		} else if !id.IsNil(effective) && effective != *f.HandlerID {
			return false, nil
		}
	}
	return true, nil
}

// attachFees deduplicates by display name, prices the winners and
// updates the row totals.
func (c *Calculation) attachFees(ctx context.Context, row *ResultRow, fees []*FeeRule) {
	scn := c.scenario

	winners := make(map[string]*FeeRule)
	var order []string
	for _, f := range fees {
		cur, ok := winners[f.DisplayName]
		if !ok {
			winners[f.DisplayName] = f
			order = append(order, f.DisplayName)
			continue
		}
		if betterFeeRule(f, cur, scn, scn.UpliftAt) {
			winners[f.DisplayName] = f
		}
	}

	total := decimal.Zero
	for _, name := range order {
		f := winners[name]
		line, err := c.priceFee(ctx, row, f)
		if err != nil {
			// Conversion failures on a single fee degrade the row, not
			// the whole run: the fuel price is already committed.
			row.AddNote("fee skipped: " + f.DisplayName + " could not be converted")
			row.Escalate(StatusWarning)
			continue
		}
		row.Fees = append(row.Fees, line)
		total = total.Add(line.Amount)
		if line.FromAgreement {
			row.AgreementPricing = true
		}
		if !f.ValidAt(scn.UpliftAt) {
			row.AddIssue(IssueExpiredPricing, "expired fee rate used: "+f.DisplayName)
			row.Escalate(StatusWarning)
		}
	}
	row.FeeTotal = types.RoundMoney(total)
}

// priceFee computes one fee line in the row currency.
func (c *Calculation) priceFee(ctx context.Context, row *ResultRow, f *FeeRule) (FeeLine, error) {
	scn := c.scenario

	price, currency := f.EffectivePrice()
	unitPrice := f.Unit.MajorPrice(price)

	amount := decimal.Zero
	switch {
	case f.Unit.FixedUplift:
		amount = unitPrice
	case scn.IsFuelTaken:
		qty, err := c.conv.Quantity(ctx, scn.UpliftQuantity, scn.UpliftUnit, f.Unit.UnitCode, row.Key.FuelID)
		if err != nil {
			return FeeLine{}, err
		}
		amount = unitPrice.Mul(qty)
	}

	target := row.Currency
	if target == "" {
		target = scn.Currency
	}
	if target == "" {
		target = currency
		row.Currency = currency
	}
	if target != currency {
		converted, err := c.conv.Amount(ctx, amount, currency, target, scn.UpliftAt)
		if err != nil {
			return FeeLine{}, err
		}
		amount = converted
	}

	return FeeLine{
		RuleID:        f.ID,
		Name:          f.DisplayName,
		CategoryID:    f.CategoryID,
		UnitPrice:     unitPrice,
		Amount:        types.RoundMoney(amount),
		Currency:      target,
		FromAgreement: f.SourceDocKind == reference.DocAgreement,
	}, nil
}

// sameFeeSet reports whether a synthetic row resolved to exactly the
// fee set and total of the row it was split from, making it redundant.
func sameFeeSet(a, b *ResultRow) bool {
	if len(a.Fees) != len(b.Fees) || !a.FeeTotal.Equal(b.FeeTotal) {
		return false
	}
	for i := range a.Fees {
		if a.Fees[i].RuleID != b.Fees[i].RuleID {
			return false
		}
	}
	return true
}

func sourceDocCompatible(fp *FuelPriceDetail, docID *id.ID, kind reference.DocKind) bool {
	if kind == reference.DocNone || fp == nil || fp.SourceDocKind == reference.DocNone {
		return true
	}
	if kind != fp.SourceDocKind {
		return false
	}
	if docID != nil && fp.SourceDocID != nil {
		return *docID == *fp.SourceDocID
	}
	return true
}

func expiresBeforeFuelPrice(fp *FuelPriceDetail, expiry *time.Time) bool {
	if fp == nil || fp.Expiry == nil || expiry == nil {
		return false
	}
	return expiry.Before(*fp.Expiry)
}

// periodsContain checks day-of-week and time-of-day validity windows.
// Local periods evaluate in airport-local time, the rest in UTC. No
// periods means always valid.
func periodsContain(periods []ValidityPeriod, scn *Scenario) bool {
	if len(periods) == 0 {
		return true
	}
	local := scn.LocalUpliftTime()
	utc := scn.UpliftAt.UTC()
	for _, p := range periods {
		at := utc
		if p.Local {
			at = local
		}
		if p.Contains(at) {
			return true
		}
	}
	return false
}

func weightBandOrZero(b *WeightBand) WeightBand {
	if b == nil {
		return WeightBand{}
	}
	return *b
}

func pickName(existing, candidate string) string {
	if candidate != "" {
		return candidate
	}
	return existing
}
