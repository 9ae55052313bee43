package pricing

import (
	"time"

	"fuelops/internal/domain/reference"
)

// Specificity weights are decimal bitfields: each dimension's weight
// exceeds the sum of every combination one level down, so a rule naming
// a more significant dimension always outranks rules that only name
// less significant ones.
const (
	pricingWeightHandler = 1000
	pricingWeightFlight  = 100
	pricingWeightDest    = 10
	pricingWeightHookup  = 1

	feeWeightValid    = 100000
	feeWeightHandler  = 10000
	feeWeightApron    = 1000
	feeWeightDelivery = 100
	feeWeightFlight   = 10
	feeWeightDest     = 1
)

// pricingSpecificity scores a fuel pricing rule against the scenario.
// Only dimensions the rule explicitly names count.
func pricingSpecificity(r *FuelPricingRule, scn *Scenario) int {
	score := 0
	if r.HandlerID != nil && !r.HandlerIsExcluded {
		score += pricingWeightHandler
	}
	if len(r.FlightTypes) > 0 && containsFlightType(r.FlightTypes, scn.FlightType) {
		score += pricingWeightFlight
	}
	if len(r.Destinations) > 0 && containsDestination(r.Destinations, scn.Destination) {
		score += pricingWeightDest
	}
	if r.Hookup != nil {
		score += pricingWeightHookup
	}
	return score
}

// feeSpecificity scores a fee rule. Currently-valid rates outrank any
// expired fallback regardless of other dimensions.
func feeSpecificity(f *FeeRule, scn *Scenario, at time.Time) int {
	score := 0
	if f.ValidAt(at) {
		score += feeWeightValid
	}
	if f.HandlerID != nil && !f.HandlerIsExcluded {
		score += feeWeightHandler
	}
	if f.ApronID != nil {
		score += feeWeightApron
	}
	if f.DeliveryMethodID != nil {
		score += feeWeightDelivery
	}
	if len(f.FlightTypes) > 0 && containsFlightType(f.FlightTypes, scn.FlightType) {
		score += feeWeightFlight
	}
	if len(f.Destinations) > 0 && containsDestination(f.Destinations, scn.Destination) {
		score += feeWeightDest
	}
	return score
}

// expiryAfter orders expiries with nil (until further notice) as the
// latest possible moment.
func expiryAfter(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.After(*b)
}

// betterPricingRule reports whether a should win over b for the same
// group. Tie-break order: explicit client, agreement linkage, latest
// expiry, specificity score.
func betterPricingRule(a, b *FuelPricingRule, scn *Scenario) bool {
	if (a.ClientID != nil) != (b.ClientID != nil) {
		return a.ClientID != nil
	}
	if a.IsAgreement() != b.IsAgreement() {
		return a.IsAgreement()
	}
	ae, be := a.ExpiresAt(), b.ExpiresAt()
	if expiryAfter(ae, be) {
		return true
	}
	if expiryAfter(be, ae) {
		return false
	}
	return pricingSpecificity(a, scn) > pricingSpecificity(b, scn)
}

// betterFeeRule reports whether a should win over b within one fee
// display-name group. Fees carry no client dimension, so the tie-break
// starts at agreement linkage.
func betterFeeRule(a, b *FeeRule, scn *Scenario, at time.Time) bool {
	sa, sb := feeSpecificity(a, scn, at), feeSpecificity(b, scn, at)
	if sa != sb {
		return sa > sb
	}
	if (a.SourceDocKind == reference.DocAgreement) != (b.SourceDocKind == reference.DocAgreement) {
		return a.SourceDocKind == reference.DocAgreement
	}
	ae, be := a.ExpiresAt(), b.ExpiresAt()
	return expiryAfter(ae, be)
}
