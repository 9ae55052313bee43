package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
)

func TestResolvePricingMarketRule(t *testing.T) {
	scn := testScenario()
	src := &stubSource{pricing: []*FuelPricingRule{marketRule("2.50")}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.NotNil(t, row.FuelPrice)
	assert.Equal(t, KindMarket, row.FuelPrice.Kind)
	// 1000 USG at 2.50 USD/USG.
	assert.Equal(t, "2500", row.FuelPrice.Amount.String())
	assert.Equal(t, "USD", row.FuelPrice.Currency)
	assert.Equal(t, "AirFuel Ltd", row.SupplierName)
	assert.False(t, row.AgreementPricing)
}

func TestResolvePricingFixedUpliftUnit(t *testing.T) {
	scn := testScenario()
	rule := marketRule("500")
	rule.Unit = usdPerUplift()
	src := &stubSource{pricing: []*FuelPricingRule{rule}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "500", rows[0].FuelPrice.Amount.String())
}

func TestResolvePricingCentsDivisionFactor(t *testing.T) {
	scn := testScenario()
	rule := marketRule("250") // cents
	rule.Unit.CurrencyDivisionUsed = true
	rule.Unit.CurrencyDivisionFactor = decimal.NewFromInt(100)
	src := &stubSource{pricing: []*FuelPricingRule{rule}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2.5", rows[0].FuelPrice.UnitPrice.String())
	assert.Equal(t, "2500", rows[0].FuelPrice.Amount.String())
}

func TestResolvePricingDiscountPercentageAgainstMarketBase(t *testing.T) {
	scn := testScenario()

	market := marketRule("2.00")
	market.SourceDocKind = reference.DocPriceList

	discount := marketRule("0")
	discount.Kind = KindDiscount
	discount.DiscountPercent = decimal.NewFromInt(10)
	discount.DiscountIsPercent = true
	cl := testClient
	discount.ClientID = &cl
	discount.SourceDocKind = reference.DocAgreement

	src := &stubSource{pricing: []*FuelPricingRule{market, discount}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.NotNil(t, row.FuelPrice)
	assert.Equal(t, KindDiscount, row.FuelPrice.Kind)
	// 2.00 × (1 − 10/100) = 1.80 per USG, 1000 USG.
	assert.Equal(t, "1.8", row.FuelPrice.UnitPrice.String())
	assert.Equal(t, "1800", row.FuelPrice.Amount.String())
	assert.True(t, row.AgreementPricing)
	assert.True(t, row.Key.ClientSpecific)
}

func TestResolvePricingDiscountAmount(t *testing.T) {
	scn := testScenario()

	market := marketRule("2.00")
	discount := marketRule("0")
	discount.Kind = KindDiscount
	discount.DiscountAmount = decimal.RequireFromString("0.15")
	cl := testClient
	discount.ClientID = &cl

	src := &stubSource{pricing: []*FuelPricingRule{market, discount}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1.85", rows[0].FuelPrice.UnitPrice.String())
	assert.Equal(t, "1850", rows[0].FuelPrice.Amount.String())
}

func TestResolvePricingDiscountWithoutBaseSurfacesUnpriced(t *testing.T) {
	scn := testScenario()
	scn.IsFuelTaken = true

	discount := marketRule("0")
	discount.Kind = KindDiscount
	discount.DiscountPercent = decimal.NewFromInt(5)
	discount.DiscountIsPercent = true

	src := &stubSource{pricing: []*FuelPricingRule{discount}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].FuelPrice)
	assert.Equal(t, StatusError, rows[0].Status)
}

func TestResolvePricingFormulaIndexPlusDifferential(t *testing.T) {
	scn := testScenario()

	formula := marketRule("0")
	formula.Kind = KindFormula
	formula.IndexID = id.New()
	formula.Differential = decimal.RequireFromString("0.30")
	formula.IndexPrices = []IndexPrice{{
		ID:              id.New(),
		IndexID:         formula.IndexID,
		Price:           decimal.RequireFromString("1.90"),
		Unit:            formula.Unit,
		ValidFrom:       testUplift.AddDate(0, 0, -7),
		SourcePublished: true,
	}}

	src := &stubSource{pricing: []*FuelPricingRule{formula}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2.2", rows[0].FuelPrice.UnitPrice.String())
	assert.Equal(t, "2200", rows[0].FuelPrice.Amount.String())
}

func TestResolvePricingFormulaUnpublishedIndexWarns(t *testing.T) {
	scn := testScenario()

	formula := marketRule("0")
	formula.Kind = KindFormula
	formula.IndexID = id.New()
	formula.Differential = decimal.RequireFromString("0.30")
	formula.IndexPrices = []IndexPrice{{
		ID:        id.New(),
		IndexID:   formula.IndexID,
		Price:     decimal.RequireFromString("1.90"),
		Unit:      formula.Unit,
		ValidFrom: testUplift.AddDate(0, 0, -7),
	}}

	src := &stubSource{
		pricing: []*FuelPricingRule{formula},
		fees:    []*FeeRule{feeRule("Hookup fee", "10")},
	}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusWarning, rows[0].Status)
	assert.True(t, hasIssue(rows[0], IssueUnpublishedSource))
}

func TestResolvePricingDeliveryMethodExpansion(t *testing.T) {
	scn := testScenario()

	m1 := reference.DeliveryMethod{ID: testMethod, Name: "Hydrant"}
	m2 := reference.DeliveryMethod{ID: id.New(), Name: "Bowser"}
	rule := marketRule("2.00")
	rule.DeliveryMethods = []reference.DeliveryMethod{m1, m2}

	src := &stubSource{pricing: []*FuelPricingRule{rule}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	names := []string{rows[0].DeliveryMethodName, rows[1].DeliveryMethodName}
	assert.ElementsMatch(t, []string{"Hydrant", "Bowser"}, names)
	for _, row := range rows {
		require.NotNil(t, row.FuelPrice.SourceRuleID, "expansion clones must trace their origin")
		assert.Equal(t, rule.ID, *row.FuelPrice.SourceRuleID)
	}
}

func TestResolvePricingExpiredDroppedWhenValidExists(t *testing.T) {
	scn := testScenario()
	scn.ExtendExpired = true

	valid := marketRule("2.00")
	expired := marketRule("1.00")
	expired.UntilFurtherNotice = false
	past := testUplift.AddDate(0, -1, 0)
	expired.ValidTo = &past

	src := &stubSource{pricing: []*FuelPricingRule{expired, valid}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, valid.ID, rows[0].FuelPrice.RuleID)
	assert.False(t, rows[0].FuelPrice.Expired)
}

func TestResolvePricingExpiredClientAgreementSurvivesValidGeneric(t *testing.T) {
	// A stale client-specific agreement rate is not displaced by live
	// generic pricing; it wins the group and flags the row expired.
	scn := testScenario()
	scn.ExtendExpired = true
	cl := testClient
	scn.ClientID = &cl

	generic := marketRule("2.00")

	clientRate := marketRule("1.70")
	clientRate.ClientID = &cl
	clientRate.SourceDocKind = reference.DocAgreement
	clientRate.UntilFurtherNotice = false
	past := testUplift.AddDate(0, 0, -5)
	clientRate.ValidTo = &past

	src := &stubSource{
		pricing: []*FuelPricingRule{generic, clientRate},
		fees:    []*FeeRule{feeRule("Hookup fee", "10")},
	}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, clientRate.ID, row.FuelPrice.RuleID)
	assert.Equal(t, "1700", row.FuelPrice.Amount.String())
	assert.True(t, row.Key.ClientSpecific)
	assert.True(t, row.AgreementPricing)
	assert.True(t, row.FuelPrice.Expired)
	assert.Equal(t, StatusWarning, row.Status)
	assert.True(t, hasIssue(row, IssueExpiredPricing))
}

func TestResolvePricingExtendExpiredKeepsLeastStale(t *testing.T) {
	scn := testScenario()
	scn.ExtendExpired = true

	older := marketRule("1.00")
	older.UntilFurtherNotice = false
	e1 := testUplift.AddDate(0, -2, 0)
	older.ValidTo = &e1

	newer := marketRule("1.50")
	newer.UntilFurtherNotice = false
	e2 := testUplift.AddDate(0, -1, 0)
	newer.ValidTo = &e2

	src := &stubSource{
		pricing: []*FuelPricingRule{older, newer},
		fees:    []*FeeRule{feeRule("Hookup fee", "10")},
	}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, newer.ID, row.FuelPrice.RuleID)
	assert.True(t, row.FuelPrice.Expired)
	assert.Equal(t, StatusWarning, row.Status)
	assert.True(t, hasIssue(row, IssueExpiredPricing))
}

func TestResolvePricingQuantityBandFilter(t *testing.T) {
	scn := testScenario() // 1000 USG uplift

	parent := id.New()
	low := marketRule("2.10")
	low.ParentID = &parent
	b1 := mkBand(unitGallon, 0, 500)
	low.Band = &b1

	high := marketRule("1.90")
	high.ParentID = &parent
	b2 := mkBand(unitGallon, 501, 5000)
	high.Band = &b2

	src := &stubSource{pricing: []*FuelPricingRule{low, high}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, high.ID, rows[0].FuelPrice.RuleID)
	assert.Equal(t, "1900", rows[0].FuelPrice.Amount.String())
}

func TestResolvePricingHandlerSpecificMarketSynthesized(t *testing.T) {
	scn := testScenario()

	generic := marketRule("2.00")

	handlerSpecific := marketRule("1.80")
	h := testHandler
	handlerSpecific.HandlerID = &h
	handlerSpecific.HandlerName = "GroundServe"

	src := &stubSource{pricing: []*FuelPricingRule{generic, handlerSpecific}}
	calc := testCalculation(scn, src, nil)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Sorted ascending by total: the handler-specific row is cheaper.
	assert.Equal(t, "1800", rows[0].Total.String())
	assert.Equal(t, "GroundServe", rows[0].HandlerName)
	assert.True(t, rows[0].Cheapest)
	require.NotNil(t, rows[0].SyntheticFrom)
	assert.True(t, id.IsNil(rows[0].SyntheticFrom.HandlerID))
}

func TestResolvePricingCurrencyConversion(t *testing.T) {
	scn := testScenario()
	scn.Currency = "EUR"

	rates := newStubRates()
	rates.set("EUR", map[string]string{"USD": "1.25"})
	conv := testConverter(nil, rates)

	src := &stubSource{pricing: []*FuelPricingRule{marketRule("2.50")}}
	calc := testCalculation(scn, src, conv)

	rows, err := calc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	// 2500 USD at 1.25 USD per EUR.
	assert.Equal(t, "2000", rows[0].FuelPrice.Amount.String())
	assert.Equal(t, "EUR", rows[0].Currency)
	assert.Equal(t, [][2]string{{"USD", "EUR"}}, calc.UsedCurrencyPairs())
}

func hasIssue(row *ResultRow, code IssueCode) bool {
	for _, i := range row.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}
