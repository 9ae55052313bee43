package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
)

func TestPricingSpecificityMonotonic(t *testing.T) {
	scn := testScenario()

	generic := marketRule("2.00")
	score := pricingSpecificity(generic, scn)

	withFlight := marketRule("2.00")
	withFlight.FlightTypes = []FlightType{FlightTypeScheduled}
	assert.Greater(t, pricingSpecificity(withFlight, scn), score)

	withHandler := marketRule("2.00")
	withHandler.FlightTypes = []FlightType{FlightTypeScheduled}
	h := testHandler
	withHandler.HandlerID = &h
	assert.Greater(t, pricingSpecificity(withHandler, scn), pricingSpecificity(withFlight, scn))
}

func TestPricingHandlerOutranksAllLowerDimensions(t *testing.T) {
	scn := testScenario()

	lower := marketRule("2.00")
	lower.FlightTypes = []FlightType{FlightTypeScheduled}
	lower.Destinations = []DestinationType{DestinationInternational}
	hk := HookupSinglePoint
	lower.Hookup = &hk

	handlerOnly := marketRule("2.00")
	h := testHandler
	handlerOnly.HandlerID = &h

	assert.Greater(t, pricingSpecificity(handlerOnly, scn), pricingSpecificity(lower, scn))
}

func TestBetterPricingRuleClientBeatsEverything(t *testing.T) {
	scn := testScenario()

	clientRule := marketRule("2.00")
	cl := testClient
	clientRule.ClientID = &cl

	agreement := marketRule("2.00")
	agreement.SourceDocKind = reference.DocAgreement
	agreement.FlightTypes = []FlightType{FlightTypeScheduled}
	h := testHandler
	agreement.HandlerID = &h

	assert.True(t, betterPricingRule(clientRule, agreement, scn))
	assert.False(t, betterPricingRule(agreement, clientRule, scn))
}

func TestBetterPricingRuleAgreementBeatsMarket(t *testing.T) {
	scn := testScenario()

	agreement := marketRule("2.00")
	agreement.SourceDocKind = reference.DocAgreement

	market := marketRule("1.00")
	h := testHandler
	market.HandlerID = &h

	assert.True(t, betterPricingRule(agreement, market, scn))
}

func TestBetterPricingRuleLatestExpiryWins(t *testing.T) {
	scn := testScenario()

	early := marketRule("2.00")
	early.UntilFurtherNotice = false
	e1 := testUplift.AddDate(0, 1, 0)
	early.ValidTo = &e1

	late := marketRule("2.00")
	late.UntilFurtherNotice = false
	e2 := testUplift.AddDate(0, 6, 0)
	late.ValidTo = &e2

	ufn := marketRule("2.00")

	assert.True(t, betterPricingRule(late, early, scn))
	assert.True(t, betterPricingRule(ufn, late, scn), "until further notice counts as the latest expiry")
}

func TestFeeSpecificityValidOutranksExpired(t *testing.T) {
	scn := testScenario()

	expired := feeRule("Hookup fee", "50")
	expired.UntilFurtherNotice = false
	past := testUplift.AddDate(0, 0, -1)
	expired.ValidTo = &past
	h := testHandler
	a := id.New()
	m := testMethod
	expired.HandlerID = &h
	expired.ApronID = &a
	expired.DeliveryMethodID = &m
	expired.FlightTypes = []FlightType{FlightTypeScheduled}
	expired.Destinations = []DestinationType{DestinationInternational}

	valid := feeRule("Hookup fee", "60")

	assert.Greater(t, feeSpecificity(valid, scn, testUplift), feeSpecificity(expired, scn, testUplift))
}

func TestExpiryAfterTreatsNilAsLatest(t *testing.T) {
	now := time.Now()
	assert.True(t, expiryAfter(nil, &now))
	assert.False(t, expiryAfter(&now, nil))
	assert.False(t, expiryAfter(nil, nil))
}
