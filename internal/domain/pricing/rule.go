package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
)

// PricingKind discriminates the three contractual price entry variants.
type PricingKind string

const (
	// KindMarket is a raw market price-list entry ("PAP").
	KindMarket PricingKind = "market"

	// KindFormula is index-linked agreement pricing: a differential
	// over a published index price.
	KindFormula PricingKind = "formula"

	// KindDiscount is agreement pricing quoted as a discount (amount or
	// percentage) off a linked market price.
	KindDiscount PricingKind = "discount"
)

// IndexPrice is one published value of a pricing index, joined onto
// formula rules by the rule store.
type IndexPrice struct {
	ID      id.ID
	IndexID id.ID

	Price decimal.Decimal
	Unit  reference.PricingUnit

	ValidFrom time.Time
	ValidTo   *time.Time

	// Applicability narrows which flights an index value covers; empty
	// slices mean all.
	FlightTypes  []FlightType
	Destinations []DestinationType

	// SourcePublished is false for provisional index values; using one
	// attaches a warning, never aborts.
	SourcePublished bool
}

// ValidAt reports whether the index value covers the given moment.
func (p *IndexPrice) ValidAt(t time.Time) bool {
	if t.Before(p.ValidFrom) {
		return false
	}
	return p.ValidTo == nil || !t.After(*p.ValidTo)
}

// specificity ranks index values covering the same moment: naming the
// scenario's flight type or destination outranks a blanket value.
func (p *IndexPrice) specificity(scn *Scenario) int {
	score := 0
	if len(p.FlightTypes) > 0 && containsFlightType(p.FlightTypes, scn.FlightType) {
		score += 10
	}
	if len(p.Destinations) > 0 && containsDestination(p.Destinations, scn.Destination) {
		score += 1
	}
	return score
}

// FuelPricingRule is one contractual price entry. It is a tagged union:
// Kind selects which of the variant fields are meaningful.
type FuelPricingRule struct {
	ID   id.ID
	Kind PricingKind

	SupplierID   id.ID
	SupplierName string
	IPAID        id.ID
	IPAName      string

	AirportID id.ID
	FuelID    id.ID
	FuelName  string

	// ClientID nil means generic pricing available to any client.
	ClientID *id.ID

	// DeliveryMethods empty means the price covers every method.
	DeliveryMethods []reference.DeliveryMethod

	ApronID   *id.ID
	ApronName string

	HandlerID         *id.ID
	HandlerName       string
	HandlerIsExcluded bool

	// Band is the quantity band this (child) row covers; nil for
	// unbanded pricing. ParentID groups sibling band rows of one
	// parent entry.
	Band     *Band
	ParentID *id.ID

	Hookup       *HookupMethod
	FlightTypes  []FlightType
	Destinations []DestinationType

	AppliesToCommercial bool
	AppliesToPrivate    bool

	ValidFrom          time.Time
	ValidTo            *time.Time
	UntilFurtherNotice bool

	Unit reference.PricingUnit

	SourceDocID   *id.ID
	SourceDocKind reference.DocKind
	Published     bool

	// Inclusive taxes baked into this price. InclusiveAll covers every
	// category; FeesInclusive cascades the inclusion to supplier fees.
	InclusiveTaxCategories []id.ID
	InclusiveAll           bool
	FeesInclusive          bool

	// Market variant
	UnitPrice decimal.Decimal

	// Formula variant
	IndexID      id.ID
	IndexPrices  []IndexPrice
	Differential decimal.Decimal

	// VolumeConversionRatio overrides the uom-derived conversion
	// between the index unit and the differential unit when set.
	VolumeConversionRatio *decimal.Decimal

	// Discount variant
	DiscountAmount    decimal.Decimal
	DiscountPercent   decimal.Decimal
	DiscountIsPercent bool

	// MarketBase is the market rule a discount was reconciled against;
	// populated by the pricing resolver, not the store.
	MarketBase *FuelPricingRule

	// SourceRuleID traces delivery-method expansion clones back to the
	// stored rule.
	SourceRuleID *id.ID
}

// IsAgreement reports whether the rule is agreement-linked. Formula and
// discount pricing always are; market rules are when their price list
// belongs to an agreement.
func (r *FuelPricingRule) IsAgreement() bool {
	if r.Kind == KindFormula || r.Kind == KindDiscount {
		return true
	}
	return r.SourceDocKind == reference.DocAgreement
}

// ExpiresAt returns the expiry or nil for until-further-notice rules.
func (r *FuelPricingRule) ExpiresAt() *time.Time {
	if r.UntilFurtherNotice {
		return nil
	}
	return r.ValidTo
}

// ValidAt reports whether the rule's validity window covers t.
func (r *FuelPricingRule) ValidAt(t time.Time) bool {
	if t.Before(r.ValidFrom) {
		return false
	}
	if r.UntilFurtherNotice || r.ValidTo == nil {
		return true
	}
	return !t.After(*r.ValidTo)
}

// AppliesTo reports applicability to the scenario's flight profile.
func (r *FuelPricingRule) AppliesTo(scn *Scenario) bool {
	if scn.IsPrivate && !r.AppliesToPrivate {
		return false
	}
	if !scn.IsPrivate && !r.AppliesToCommercial {
		return false
	}
	if len(r.FlightTypes) > 0 && !containsFlightType(r.FlightTypes, scn.FlightType) {
		return false
	}
	if len(r.Destinations) > 0 && !containsDestination(r.Destinations, scn.Destination) {
		return false
	}
	if r.Hookup != nil && scn.Hookup != nil && *r.Hookup != *scn.Hookup {
		return false
	}
	return true
}

// Clone deep-copies the rule for delivery-method expansion, recording
// the originating rule for auditability.
func (r *FuelPricingRule) Clone() *FuelPricingRule {
	nr := *r
	src := r.ID
	nr.SourceRuleID = &src
	nr.DeliveryMethods = append([]reference.DeliveryMethod(nil), r.DeliveryMethods...)
	nr.FlightTypes = append([]FlightType(nil), r.FlightTypes...)
	nr.Destinations = append([]DestinationType(nil), r.Destinations...)
	nr.InclusiveTaxCategories = append([]id.ID(nil), r.InclusiveTaxCategories...)
	nr.IndexPrices = append([]IndexPrice(nil), r.IndexPrices...)
	if r.Band != nil {
		b := *r.Band
		nr.Band = &b
	}
	return &nr
}

// latestIndexPrice picks the applicable index value: valid at the
// uplift moment (or the latest one before it), most specific first,
// then most recent.
func (r *FuelPricingRule) latestIndexPrice(scn *Scenario) *IndexPrice {
	var best *IndexPrice
	bestValid := false
	for i := range r.IndexPrices {
		ip := &r.IndexPrices[i]
		if ip.ValidFrom.After(scn.UpliftAt) {
			continue
		}
		valid := ip.ValidAt(scn.UpliftAt)
		switch {
		case best == nil:
			best, bestValid = ip, valid
		case valid && !bestValid:
			best, bestValid = ip, valid
		case valid == bestValid:
			if ip.specificity(scn) > best.specificity(scn) ||
				ip.specificity(scn) == best.specificity(scn) && ip.ValidFrom.After(best.ValidFrom) {
				best, bestValid = ip, valid
			}
		}
	}
	return best
}

func containsFlightType(list []FlightType, ft FlightType) bool {
	for _, v := range list {
		if v == ft || v == FlightTypeAll {
			return true
		}
	}
	return false
}

func containsDestination(list []DestinationType, d DestinationType) bool {
	for _, v := range list {
		if v == d || v == DestinationAll {
			return true
		}
	}
	return false
}

// RuleQuery is the fetch predicate set pushed to the pricing-rule
// store. Nullable dimensions match both the exact value and rules that
// leave the dimension open.
type RuleQuery struct {
	AirportID      id.ID
	FuelCategoryID id.ID
	ClientID       *id.ID
	HandlerID      *id.ID
	ApronID        *id.ID
	Hookup         *HookupMethod
	FlightType     FlightType
	Destination    DestinationType
	IsPrivate      bool
	At             time.Time

	// IncludeExpired keeps expired rows in the candidate set; they are
	// needed as extend-expired fallback.
	IncludeExpired bool
}

// FeeQuery is the fetch predicate set for supplier fee rates.
type FeeQuery struct {
	AirportID   id.ID
	SupplierIDs []id.ID
	FlightType  FlightType
	Destination DestinationType
	IsPrivate   bool
	At          time.Time

	// IncludeExpired keeps expired fee rates in the candidate set; the
	// resolver weighs validity itself and warns on expired winners.
	IncludeExpired bool
}

// TaxQuery is the fetch predicate set for tax rules.
type TaxQuery struct {
	AirportID   id.ID
	CountryID   id.ID
	FlightType  FlightType
	Destination DestinationType
	At          time.Time
}

// RuleSource is the engine's query contract: ordered, filterable
// collections of candidate rules. Implemented by the postgres stores
// and by in-memory stubs in tests.
type RuleSource interface {
	FuelPricing(ctx context.Context, q RuleQuery) ([]*FuelPricingRule, error)
	Fees(ctx context.Context, q FeeQuery) ([]*FeeRule, error)

	// OfficialTaxes returns jurisdiction-defined rules;
	// SupplierTaxes returns supplier-defined exceptions. The resolver
	// processes official entries strictly before supplier ones.
	OfficialTaxes(ctx context.Context, q TaxQuery) ([]*TaxRule, error)
	SupplierTaxes(ctx context.Context, q TaxQuery) ([]*TaxRule, error)
}
