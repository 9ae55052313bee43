package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/apperror"
	"fuelops/internal/core/id"
	"fuelops/internal/core/types"
)

// leviedTax links an emitted tax line back to its rule for the single
// tax-on-tax pass.
type leviedTax struct {
	rule      *TaxRule
	amount    decimal.Decimal
	base      TaxBase
	feeRuleID *id.ID
	feeCat    *id.ID
	line      TaxLine
}

// resolveTaxes applies official and supplier tax rules to every row.
// Official rules are processed strictly before supplier ones: supplier
// entries overwrite the supplier side an official rule populated, which
// is what makes the official/supplier comparison meaningful.
func (c *Calculation) resolveTaxes(ctx context.Context) error {
	scn := c.scenario
	if len(c.rows) == 0 {
		return nil
	}

	q := TaxQuery{
		AirportID:   scn.AirportID,
		FlightType:  scn.FlightType,
		Destination: scn.Destination,
		At:          scn.UpliftAt,
	}
	if scn.Airport != nil {
		q.CountryID = scn.Airport.CountryID
	}

	official, err := c.source.OfficialTaxes(ctx, q)
	if err != nil {
		return err
	}
	supplier, err := c.source.SupplierTaxes(ctx, q)
	if err != nil {
		return err
	}

	official = supersedeCountryRules(official, scn.AirportID)

	for _, row := range c.rows {
		if err := c.applyTaxes(ctx, row, official, supplier); err != nil {
			return err
		}
	}
	return nil
}

// supersedeCountryRules drops country-level official rules in any
// category where an airport-specific rule exists for this airport.
func supersedeCountryRules(rules []*TaxRule, airportID id.ID) []*TaxRule {
	airportCats := make(map[id.ID]struct{})
	for _, t := range rules {
		if t.AirportID != nil && *t.AirportID == airportID {
			airportCats[t.CategoryID] = struct{}{}
		}
	}
	if len(airportCats) == 0 {
		return rules
	}
	kept := rules[:0:0]
	for _, t := range rules {
		if t.AirportID == nil {
			if _, superseded := airportCats[t.CategoryID]; superseded {
				continue
			}
		}
		kept = append(kept, t)
	}
	return kept
}

// applyTaxes runs the official++supplier list through the row, then the
// single cascading pass, then totals both sides.
func (c *Calculation) applyTaxes(ctx context.Context, row *ResultRow, official, supplier []*TaxRule) error {
	entries := make([]*TaxRule, 0, len(official)+len(supplier))
	entries = append(entries, official...)
	for _, t := range supplier {
		if t.SupplierID != nil && *t.SupplierID != row.Key.SupplierID {
			continue
		}
		entries = append(entries, t)
	}

	matchedInclusive := make(map[id.ID]struct{})
	var levied []leviedTax

	for _, t := range entries {
		ok, err := c.taxMatchesRow(ctx, row, t)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if c.taxInclusive(row, t) {
			matchedInclusive[t.CategoryID] = struct{}{}
			c.recordTaxLine(row, t, TaxLine{
				RuleID:     t.ID,
				CategoryID: t.CategoryID,
				Category:   t.CategoryName,
				Official:   t.Official,
				Base:       TaxBaseFuel,
				Percentage: t.Percentage,
				UnitRate:   t.UnitRate,
				Currency:   row.Currency,
				Inclusive:  true,
			})
			continue
		}

		lines, err := c.computeTax(ctx, row, t)
		if err != nil {
			return err
		}
		for _, l := range lines {
			c.recordTaxLine(row, t, l.line)
			levied = append(levied, l)
		}
	}

	// One cascading level: a levied tax may itself be the base of a
	// linked percentage rule. Deeper chains are not supported.
	for _, l := range levied {
		linked := l.rule.TaxedBy
		if linked == nil || linked.Percentage == nil {
			continue
		}
		if !linked.AppliesTo(c.scenario) {
			continue
		}
		if !linked.MatchesFuel(row.Key.FuelID, c.scenario.FuelCategoryID) {
			continue
		}
		if l.feeCat != nil && !linked.MatchesFeeCategory(*l.feeCat) {
			continue
		}
		parent := l.rule.ID
		c.recordTaxLine(row, linked, TaxLine{
			RuleID:       linked.ID,
			CategoryID:   linked.CategoryID,
			Category:     linked.CategoryName,
			Official:     linked.Official,
			Base:         TaxBaseTax,
			ParentRuleID: &parent,
			Percentage:   linked.Percentage,
			Amount:       types.RoundMoney(l.amount.Mul(linked.Percentage.Div(types.Hundred))),
			Currency:     row.Currency,
		})
	}

	c.checkInclusiveDeclared(row, matchedInclusive)
	totalTaxSides(row)
	return nil
}

// taxMatchesRow runs the tax predicate pipeline for one row.
func (c *Calculation) taxMatchesRow(ctx context.Context, row *ResultRow, t *TaxRule) (bool, error) {
	scn := c.scenario

	if !t.AppliesTo(scn) {
		return false, nil
	}
	if !t.MatchesFuel(row.Key.FuelID, scn.FuelCategoryID) {
		return false, nil
	}
	if !sourceDocCompatible(row.FuelPrice, t.SourceDocID, t.SourceDocKind) {
		return false, nil
	}
	if expiresBeforeFuelPrice(row.FuelPrice, t.ExpiresAt()) {
		return false, nil
	}
	for _, band := range []*TaxBand{t.Band1, t.Band2} {
		if band == nil {
			continue
		}
		in, err := c.taxBandContains(ctx, row, band)
		if err != nil {
			return false, err
		}
		if !in {
			return false, nil
		}
	}
	return true, nil
}

func (c *Calculation) taxBandContains(ctx context.Context, row *ResultRow, band *TaxBand) (bool, error) {
	scn := c.scenario
	switch band.Kind {
	case TaxBandWeight:
		return WeightInBand(scn.Aircraft, WeightBand{
			Measure: band.Measure,
			Start:   band.Start,
			End:     band.End,
		}), nil
	default:
		return c.conv.ValueInBand(ctx, Band{
			Unit:  band.Unit,
			Start: band.Start,
			End:   band.End,
		}, scn.UpliftQuantity, scn.UpliftUnit, row.Key.FuelID)
	}
}

// taxInclusive reports whether the row's fuel price already bakes this
// tax category in.
func (c *Calculation) taxInclusive(row *ResultRow, t *TaxRule) bool {
	fp := row.FuelPrice
	if fp == nil {
		return false
	}
	if fp.InclusiveAll {
		return true
	}
	for _, cat := range fp.InclusiveTaxCategories {
		if cat == t.CategoryID {
			return true
		}
	}
	return false
}

// computeTax levies one rule on the fuel-price base and on each fee
// independently. A rule with neither percentage nor flat rate on an
// applicable row is a configuration error and aborts the run.
func (c *Calculation) computeTax(ctx context.Context, row *ResultRow, t *TaxRule) ([]leviedTax, error) {
	if t.Percentage == nil && t.UnitRate == nil {
		return nil, apperror.NewConfiguration("tax rule has neither percentage nor unit rate").
			WithDetail("tax_rule_id", t.ID)
	}

	var levied []leviedTax

	if t.AppliesToFuel && row.FuelPrice != nil {
		amount, err := c.taxOnFuel(ctx, row, t)
		if err != nil {
			return nil, err
		}
		levied = append(levied, leviedTax{
			rule:   t,
			amount: amount,
			base:   TaxBaseFuel,
			line: TaxLine{
				RuleID:     t.ID,
				CategoryID: t.CategoryID,
				Category:   t.CategoryName,
				Official:   t.Official,
				Base:       TaxBaseFuel,
				Percentage: t.Percentage,
				UnitRate:   t.UnitRate,
				Amount:     amount,
				Currency:   row.Currency,
			},
		})
	}

	if t.AppliesToFees && t.Percentage != nil {
		for i := range row.Fees {
			fee := &row.Fees[i]
			if !t.MatchesFeeCategory(fee.CategoryID) {
				continue
			}
			amount := types.RoundMoney(fee.Amount.Mul(t.Percentage.Div(types.Hundred)))
			feeRule := fee.RuleID
			feeCat := fee.CategoryID
			levied = append(levied, leviedTax{
				rule:      t,
				amount:    amount,
				base:      TaxBaseFee,
				feeRuleID: &feeRule,
				feeCat:    &feeCat,
				line: TaxLine{
					RuleID:     t.ID,
					CategoryID: t.CategoryID,
					Category:   t.CategoryName,
					Official:   t.Official,
					Base:       TaxBaseFee,
					FeeRuleID:  &feeRule,
					Percentage: t.Percentage,
					Amount:     amount,
					Currency:   row.Currency,
				},
			})
		}
	}
	return levied, nil
}

// taxOnFuel computes a rule's amount against the fuel-price base.
func (c *Calculation) taxOnFuel(ctx context.Context, row *ResultRow, t *TaxRule) (decimal.Decimal, error) {
	scn := c.scenario

	if t.Percentage != nil {
		return types.RoundMoney(row.fuelAmount().Mul(t.Percentage.Div(types.Hundred))), nil
	}

	// Flat rate per unit (or per uplift for fixed units).
	rate := *t.UnitRate
	currency := row.Currency
	if t.Unit != nil {
		rate = t.Unit.MajorPrice(rate)
		currency = t.Unit.CurrencyCode
	}

	amount := rate
	if t.Unit != nil && !t.Unit.FixedUplift && scn.IsFuelTaken {
		qty, err := c.conv.Quantity(ctx, scn.UpliftQuantity, scn.UpliftUnit, t.Unit.UnitCode, row.Key.FuelID)
		if err != nil {
			return decimal.Zero, err
		}
		amount = rate.Mul(qty)
	}

	if currency != "" && row.Currency != "" && currency != row.Currency {
		converted, err := c.conv.Amount(ctx, amount, currency, row.Currency, scn.UpliftAt)
		if err != nil {
			return decimal.Zero, err
		}
		amount = converted
	}
	return types.RoundMoney(amount), nil
}

// recordTaxLine routes a line to the official and supplier sides.
// Official rules populate both sides unless marked official-only;
// supplier rules overwrite any supplier-side line of the same category
// and base, which is why ordering official before supplier matters.
func (c *Calculation) recordTaxLine(row *ResultRow, t *TaxRule, line TaxLine) {
	if t.Official {
		row.OfficialTaxes = append(row.OfficialTaxes, line)
		if !t.OfficialOnly {
			supplierSide := line
			supplierSide.Official = false
			row.SupplierTaxes = append(row.SupplierTaxes, supplierSide)
		}
		return
	}
	replaced := false
	for i := range row.SupplierTaxes {
		existing := &row.SupplierTaxes[i]
		if existing.CategoryID == line.CategoryID && existing.Base == line.Base &&
			equalIDPtr(existing.FeeRuleID, line.FeeRuleID) {
			*existing = line
			replaced = true
		}
	}
	if !replaced {
		row.SupplierTaxes = append(row.SupplierTaxes, line)
	}
}

// checkInclusiveDeclared flags inclusive tax categories the fuel price
// declares but no applicable rule matched.
func (c *Calculation) checkInclusiveDeclared(row *ResultRow, matched map[id.ID]struct{}) {
	fp := row.FuelPrice
	if fp == nil || fp.InclusiveAll {
		return
	}
	for _, cat := range fp.InclusiveTaxCategories {
		if _, ok := matched[cat]; !ok {
			row.AddIssue(IssueInclusiveMismatch, "inclusive tax declared in pricing but no matching tax rule found")
			row.Escalate(StatusWarning)
			return
		}
	}
}

// totalTaxSides sums both sides, picks the effective total and flags
// divergence for side-by-side comparison.
func totalTaxSides(row *ResultRow) {
	official := decimal.Zero
	for _, l := range row.OfficialTaxes {
		if l.Inclusive {
			continue
		}
		official = official.Add(l.Amount)
	}
	supplier := decimal.Zero
	for _, l := range row.SupplierTaxes {
		if l.Inclusive {
			continue
		}
		supplier = supplier.Add(l.Amount)
	}

	row.OfficialTaxTotal = types.RoundMoney(official)
	row.SupplierTaxTotal = types.RoundMoney(supplier)
	if !row.SupplierTaxTotal.IsZero() {
		row.TaxTotal = row.SupplierTaxTotal
	} else {
		row.TaxTotal = row.OfficialTaxTotal
	}

	if !row.OfficialTaxTotal.Equal(row.SupplierTaxTotal) &&
		(len(row.OfficialTaxes) > 0 || len(row.SupplierTaxes) > 0) {
		row.TaxComparison = true
		row.Escalate(StatusWarning)
	}
}

func equalIDPtr(a, b *id.ID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
