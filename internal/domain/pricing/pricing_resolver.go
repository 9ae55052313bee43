package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/core/types"
)

// pricingGroup identifies one supplier+IPA+fuel+delivery+apron
// combination during conflict resolution. Nil dimensions collapse to
// the zero UUID, same as in RowKey.
type pricingGroup struct {
	SupplierID       id.ID
	IPAID            id.ID
	FuelID           id.ID
	DeliveryMethodID id.ID
	ApronID          id.ID
}

// supplierPair keys the extend-expired check: expired pricing is only
// resurrected when a supplier+IPA pair has no valid row anywhere.
type supplierPair struct {
	SupplierID id.ID
	IPAID      id.ID
}

func groupOf(r *FuelPricingRule) pricingGroup {
	g := pricingGroup{SupplierID: r.SupplierID, IPAID: r.IPAID, FuelID: r.FuelID}
	if len(r.DeliveryMethods) == 1 {
		g.DeliveryMethodID = r.DeliveryMethods[0].ID
	}
	if r.ApronID != nil {
		g.ApronID = *r.ApronID
	}
	return g
}

func rowKeyFor(r *FuelPricingRule) RowKey {
	g := groupOf(r)
	key := RowKey{
		SupplierID:       g.SupplierID,
		IPAID:            g.IPAID,
		FuelID:           g.FuelID,
		DeliveryMethodID: g.DeliveryMethodID,
		ApronID:          g.ApronID,
		ClientSpecific:   r.ClientID != nil,
	}
	if r.HandlerID != nil && !r.HandlerIsExcluded {
		key.HandlerID = *r.HandlerID
	}
	return key
}

// resolvePricing fetches candidate fuel pricing, resolves each
// supplier+IPA+fuel+delivery+apron group down to one winning rule, and
// emits a priced ResultRow per group plus any comparison rows a more
// specific market entry justifies.
func (c *Calculation) resolvePricing(ctx context.Context) error {
	scn := c.scenario

	rules, err := c.source.FuelPricing(ctx, RuleQuery{
		AirportID:      scn.AirportID,
		FuelCategoryID: scn.FuelCategoryID,
		ClientID:       scn.ClientID,
		HandlerID:      scn.HandlerID,
		ApronID:        scn.ApronID,
		Hookup:         scn.Hookup,
		FlightType:     scn.FlightType,
		Destination:    scn.Destination,
		IsPrivate:      scn.IsPrivate,
		At:             scn.UpliftAt,
		IncludeExpired: scn.ExtendExpired,
	})
	if err != nil {
		return err
	}

	candidates := make([]*FuelPricingRule, 0, len(rules))
	for _, r := range rules {
		if r.ValidFrom.After(scn.UpliftAt) {
			continue
		}
		if !r.AppliesTo(scn) {
			continue
		}
		if !scn.ExtendExpired && !r.ValidAt(scn.UpliftAt) {
			continue
		}
		if r.HandlerID != nil && r.HandlerIsExcluded &&
			scn.HandlerID != nil && *scn.HandlerID == *r.HandlerID {
			continue
		}
		candidates = append(candidates, r)
	}

	if scn.IsFuelTaken {
		candidates, err = c.filterQuantityBands(ctx, candidates)
		if err != nil {
			return err
		}
	}

	candidates = expandDeliveryMethods(candidates)

	// Market rules per supplier+IPA+fuel, needed to reconcile discount
	// winners against their base price list.
	marketByTrio := make(map[supplierPair]map[id.ID][]*FuelPricingRule)
	for _, r := range candidates {
		if r.Kind != KindMarket {
			continue
		}
		pair := supplierPair{SupplierID: r.SupplierID, IPAID: r.IPAID}
		if marketByTrio[pair] == nil {
			marketByTrio[pair] = make(map[id.ID][]*FuelPricingRule)
		}
		marketByTrio[pair][r.FuelID] = append(marketByTrio[pair][r.FuelID], r)
	}

	groups := make(map[pricingGroup][]*FuelPricingRule)
	var groupOrder []pricingGroup
	pairHasValid := make(map[supplierPair]bool)
	for _, r := range candidates {
		g := groupOf(r)
		if _, seen := groups[g]; !seen {
			groupOrder = append(groupOrder, g)
		}
		groups[g] = append(groups[g], r)
		if r.ValidAt(scn.UpliftAt) {
			pairHasValid[supplierPair{SupplierID: r.SupplierID, IPAID: r.IPAID}] = true
		}
	}

	for _, g := range groupOrder {
		members := groups[g]
		pair := supplierPair{SupplierID: g.SupplierID, IPAID: g.IPAID}

		// Expired client-specific and agreement-linked rates stay in the
		// running; only generic stale rows yield to live pricing.
		kept := members[:0:0]
		for _, r := range members {
			if r.ValidAt(scn.UpliftAt) || r.ClientID != nil || r.IsAgreement() {
				kept = append(kept, r)
			}
		}
		switch {
		case len(kept) > 0:
			members = kept
		case pairHasValid[pair]:
			// Another delivery/apron combination of this pair still has
			// live pricing; do not resurrect this group's stale rows.
			continue
		default:
			// Extend-expired: keep only the least-stale row.
			members = []*FuelPricingRule{leastStale(members)}
		}

		// Handler-specific rules only compete for the group row when the
		// scenario names that handler; otherwise they surface as extra
		// comparison rows below.
		eligible := members[:0:0]
		for _, r := range members {
			if r.HandlerID != nil && !r.HandlerIsExcluded &&
				(scn.HandlerID == nil || *scn.HandlerID != *r.HandlerID) {
				continue
			}
			eligible = append(eligible, r)
		}

		var winner *FuelPricingRule
		if len(eligible) > 0 {
			winner = eligible[0]
			for _, r := range eligible[1:] {
				if betterPricingRule(r, winner, scn) {
					winner = r
				}
			}
			if winner.Kind == KindDiscount {
				winner = c.reconcileDiscount(winner, members, marketByTrio[pair][g.FuelID])
			}
			row, err := c.buildRow(ctx, winner)
			if err != nil {
				return err
			}
			c.addRow(row)
		}

		if err := c.synthesizeComparisons(ctx, winner, members); err != nil {
			return err
		}
	}

	if len(c.rows) == 0 && scn.Airport != nil {
		c.log.Infow("no pricing found", "airport", scn.Airport.ICAO)
	}
	return nil
}

// filterQuantityBands drops banded rules whose band does not contain the
// uplift quantity. Sibling bands of one parent entry get their edges
// extended first so fractional uplifts never fall between adjacent
// integer bounds.
func (c *Calculation) filterQuantityBands(ctx context.Context, rules []*FuelPricingRule) ([]*FuelPricingRule, error) {
	siblings := make(map[id.ID][]*Band)
	for _, r := range rules {
		if r.Band != nil && r.ParentID != nil {
			siblings[*r.ParentID] = append(siblings[*r.ParentID], r.Band)
		}
	}
	for _, bands := range siblings {
		ExtendBandEdges(c.log, bands)
	}

	scn := c.scenario
	kept := rules[:0:0]
	for _, r := range rules {
		if r.Band == nil {
			kept = append(kept, r)
			continue
		}
		in, err := c.conv.ValueInBand(ctx, *r.Band, scn.UpliftQuantity, scn.UpliftUnit, r.FuelID)
		if err != nil {
			return nil, err
		}
		if in {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// expandDeliveryMethods splits rules covering several delivery methods
// into one clone per method, so every rule lands in exactly one group.
func expandDeliveryMethods(rules []*FuelPricingRule) []*FuelPricingRule {
	out := make([]*FuelPricingRule, 0, len(rules))
	for _, r := range rules {
		if len(r.DeliveryMethods) <= 1 {
			out = append(out, r)
			continue
		}
		for _, m := range r.DeliveryMethods {
			clone := r.Clone()
			clone.DeliveryMethods = clone.DeliveryMethods[:0]
			clone.DeliveryMethods = append(clone.DeliveryMethods, m)
			out = append(out, clone)
		}
	}
	return out
}

// leastStale picks the expired rule with the latest expiry.
func leastStale(rules []*FuelPricingRule) *FuelPricingRule {
	best := rules[0]
	for _, r := range rules[1:] {
		if expiryAfter(r.ExpiresAt(), best.ExpiresAt()) {
			best = r
		}
	}
	return best
}

// reconcileDiscount binds a discount winner to the market rule it
// discounts. Preference order: exact group match, then an unrestricted
// base covering all delivery methods and aprons, then any market rule of
// the supplier+IPA+fuel trio. Without any base the best market rule of
// the group takes over; with nothing at all the discount stays unbound
// and the row surfaces without a fuel price.
func (c *Calculation) reconcileDiscount(winner *FuelPricingRule, group, trioMarket []*FuelPricingRule) *FuelPricingRule {
	g := groupOf(winner)

	var exact, open, any *FuelPricingRule
	for _, m := range trioMarket {
		switch {
		case groupOf(m) == g:
			if exact == nil || betterPricingRule(m, exact, c.scenario) {
				exact = m
			}
		case len(m.DeliveryMethods) == 0 && m.ApronID == nil:
			if open == nil || betterPricingRule(m, open, c.scenario) {
				open = m
			}
		default:
			if any == nil || betterPricingRule(m, any, c.scenario) {
				any = m
			}
		}
	}

	bound := winner.Clone()
	bound.ID = winner.ID
	bound.SourceRuleID = winner.SourceRuleID
	switch {
	case exact != nil:
		bound.MarketBase = exact
	case open != nil:
		bound.MarketBase = open
	case any != nil:
		bound.MarketBase = any
	default:
		for _, r := range group {
			if r.Kind == KindMarket && (bound.MarketBase == nil || betterPricingRule(r, bound.MarketBase, c.scenario)) {
				bound.MarketBase = r
			}
		}
		if bound.MarketBase == nil {
			return bound
		}
	}
	return bound
}

// synthesizeComparisons adds the extra rows a winner does not cover:
// handler-specific market pricing next to a handler-agnostic winner, and
// generic agreement pricing next to a client-specific market winner.
// A nil winner means the group had only handler-specific rules; those
// still get their rows, just without a generic sibling.
func (c *Calculation) synthesizeComparisons(ctx context.Context, winner *FuelPricingRule, members []*FuelPricingRule) error {
	if winner == nil || winner.HandlerID == nil {
		byHandler := make(map[id.ID]*FuelPricingRule)
		var order []id.ID
		for _, r := range members {
			if r == winner || r.Kind != KindMarket {
				continue
			}
			if r.HandlerID == nil || r.HandlerIsExcluded {
				continue
			}
			h := *r.HandlerID
			cur, ok := byHandler[h]
			if !ok {
				byHandler[h] = r
				order = append(order, h)
			} else if betterPricingRule(r, cur, c.scenario) {
				byHandler[h] = r
			}
		}
		for _, h := range order {
			row, err := c.buildRow(ctx, byHandler[h])
			if err != nil {
				return err
			}
			if winner != nil {
				from := rowKeyFor(winner)
				row.SyntheticFrom = &from
			}
			c.addRow(row)
		}
	}

	if winner == nil {
		return nil
	}

	if winner.Kind == KindMarket && winner.ClientID != nil {
		var generic *FuelPricingRule
		for _, r := range members {
			if r == winner || r.ClientID != nil || !r.IsAgreement() {
				continue
			}
			if generic == nil || betterPricingRule(r, generic, c.scenario) {
				generic = r
			}
		}
		if generic != nil {
			if generic.Kind == KindDiscount && generic.MarketBase == nil {
				generic = c.reconcileDiscount(generic, members, nil)
			}
			row, err := c.buildRow(ctx, generic)
			if err != nil {
				return err
			}
			from := rowKeyFor(winner)
			row.SyntheticFrom = &from
			c.addRow(row)
		}
	}
	return nil
}

// buildRow turns one winning rule into a priced ResultRow.
func (c *Calculation) buildRow(ctx context.Context, r *FuelPricingRule) (*ResultRow, error) {
	row := NewResultRow(rowKeyFor(r))
	row.SupplierName = r.SupplierName
	row.IPAName = r.IPAName
	row.ApronName = r.ApronName
	if len(r.DeliveryMethods) == 1 {
		row.DeliveryMethodName = r.DeliveryMethods[0].Name
	}
	if r.HandlerID != nil && !r.HandlerIsExcluded {
		row.HandlerName = r.HandlerName
	}
	row.AgreementPricing = r.IsAgreement()

	if err := c.priceRow(ctx, row, r); err != nil {
		return nil, err
	}

	if c.scenario.AircraftRepresentative {
		row.AddIssue(IssueRepresentativeAC, "representative aircraft type substituted for weight-band checks")
		row.Escalate(StatusWarning)
	}
	return row, nil
}

// priceRow computes the fuel price detail for a rule and attaches it.
// Rules that cannot produce a price (formula without an index value,
// discount without a market base) leave the row unpriced with a note;
// only conversion failures are returned as errors.
func (c *Calculation) priceRow(ctx context.Context, row *ResultRow, r *FuelPricingRule) error {
	scn := c.scenario

	var unitPrice decimal.Decimal
	switch r.Kind {
	case KindMarket:
		unitPrice = r.Unit.MajorPrice(r.UnitPrice)

	case KindFormula:
		ip := r.latestIndexPrice(scn)
		if ip == nil {
			row.AddNote("index-linked pricing has no applicable index value")
			return nil
		}
		base := ip.Unit.MajorPrice(ip.Price)
		base, err := c.conv.Amount(ctx, base, ip.Unit.CurrencyCode, r.Unit.CurrencyCode, scn.UpliftAt)
		if err != nil {
			return err
		}
		switch {
		case r.VolumeConversionRatio != nil && r.VolumeConversionRatio.IsPositive():
			base = base.Div(*r.VolumeConversionRatio)
		case ip.Unit.UnitCode != r.Unit.UnitCode && !r.Unit.FixedUplift:
			base, err = c.conv.UnitPrice(ctx, base, ip.Unit.UnitCode, r.Unit.UnitCode, r.FuelID)
			if err != nil {
				return err
			}
		}
		unitPrice = base.Add(r.Unit.MajorPrice(r.Differential))
		if !ip.SourcePublished {
			row.AddIssue(IssueUnpublishedSource, "provisional index price used")
			row.Escalate(StatusWarning)
		}

	case KindDiscount:
		mb := r.MarketBase
		if mb == nil {
			row.AddNote("discount pricing has no market base price to discount")
			return nil
		}
		base := mb.Unit.MajorPrice(mb.UnitPrice)
		base, err := c.conv.Amount(ctx, base, mb.Unit.CurrencyCode, r.Unit.CurrencyCode, scn.UpliftAt)
		if err != nil {
			return err
		}
		if mb.Unit.UnitCode != r.Unit.UnitCode && !r.Unit.FixedUplift && !mb.Unit.FixedUplift {
			base, err = c.conv.UnitPrice(ctx, base, mb.Unit.UnitCode, r.Unit.UnitCode, r.FuelID)
			if err != nil {
				return err
			}
		}
		if r.DiscountIsPercent {
			unitPrice = base.Mul(types.One.Sub(r.DiscountPercent.Div(types.Hundred)))
		} else {
			unitPrice = base.Sub(r.Unit.MajorPrice(r.DiscountAmount))
		}
		if groupOf(mb) != groupOf(r) {
			row.AddIssue(IssueBaseScopeMismatch, "market base covers a different delivery method or apron scope")
			row.Escalate(StatusWarning)
		}
	}

	amount := decimal.Zero
	switch {
	case r.Unit.FixedUplift:
		amount = unitPrice
	case scn.IsFuelTaken:
		qty, err := c.conv.Quantity(ctx, scn.UpliftQuantity, scn.UpliftUnit, r.Unit.UnitCode, r.FuelID)
		if err != nil {
			return err
		}
		amount = unitPrice.Mul(qty)
	}

	currency := r.Unit.CurrencyCode
	if scn.Currency != "" && scn.Currency != currency {
		converted, err := c.conv.Amount(ctx, amount, currency, scn.Currency, scn.UpliftAt)
		if err != nil {
			return err
		}
		amount = converted
		currency = scn.Currency
	}

	expired := !r.ValidAt(scn.UpliftAt)
	row.FuelPrice = &FuelPriceDetail{
		RuleID:                 r.ID,
		Kind:                   r.Kind,
		SourceRuleID:           r.SourceRuleID,
		UnitPrice:              unitPrice,
		Amount:                 types.RoundMoney(amount),
		Currency:               currency,
		Expiry:                 r.ExpiresAt(),
		Expired:                expired,
		SourceDocID:            r.SourceDocID,
		SourceDocKind:          r.SourceDocKind,
		InclusiveTaxCategories: append([]id.ID(nil), r.InclusiveTaxCategories...),
		InclusiveAll:           r.InclusiveAll,
		FeesInclusive:          r.FeesInclusive,
	}
	row.Currency = currency

	if expired {
		row.AddIssue(IssueExpiredPricing, "expired pricing used as best available fallback")
		row.Escalate(StatusWarning)
	}
	if r.SourceDocKind != "" && !r.Published {
		row.AddIssue(IssueUnpublishedSource, "pricing source document is not published")
		row.Escalate(StatusWarning)
	}
	return nil
}
