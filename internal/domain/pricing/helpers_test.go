package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/exchange"
	"fuelops/internal/domain/reference"
	"fuelops/pkg/logger"
)

// factorTriple keys the stub factor table.
type factorTriple struct {
	from reference.UnitCode
	to   reference.UnitCode
	fuel string // "" for the all-fuels row
}

type stubFactors struct {
	factors map[factorTriple]decimal.Decimal
	calls   int
}

func newStubFactors() *stubFactors {
	return &stubFactors{factors: make(map[factorTriple]decimal.Decimal)}
}

func (s *stubFactors) set(from, to reference.UnitCode, fuelID *id.ID, f string) {
	key := factorTriple{from: from, to: to}
	if fuelID != nil {
		key.fuel = fuelID.String()
	}
	s.factors[key] = decimal.RequireFromString(f)
}

func (s *stubFactors) Factor(_ context.Context, from, to reference.UnitCode, fuelID *id.ID) (decimal.Decimal, bool, error) {
	s.calls++
	key := factorTriple{from: from, to: to}
	if fuelID != nil {
		key.fuel = fuelID.String()
	}
	f, ok := s.factors[key]
	return f, ok, nil
}

type stubRates struct {
	tables map[string]*exchange.Rates
	calls  int
	err    error
}

func newStubRates() *stubRates {
	return &stubRates{tables: make(map[string]*exchange.Rates)}
}

func (s *stubRates) set(base string, quotes map[string]string) {
	rates := make(map[string]decimal.Decimal, len(quotes))
	for code, v := range quotes {
		rates[code] = decimal.RequireFromString(v)
	}
	s.tables[base] = &exchange.Rates{
		Base:      base,
		Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Source:    "stub",
		Rates:     rates,
	}
}

func (s *stubRates) Rates(_ context.Context, base string, _ time.Time) (*exchange.Rates, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if t, ok := s.tables[base]; ok {
		return t, nil
	}
	return &exchange.Rates{Base: base, Rates: map[string]decimal.Decimal{}}, nil
}

type stubSource struct {
	pricing  []*FuelPricingRule
	fees     []*FeeRule
	official []*TaxRule
	supplier []*TaxRule

	feeQuery FeeQuery
}

func (s *stubSource) FuelPricing(context.Context, RuleQuery) ([]*FuelPricingRule, error) {
	return s.pricing, nil
}

func (s *stubSource) Fees(_ context.Context, q FeeQuery) ([]*FeeRule, error) {
	s.feeQuery = q
	return s.fees, nil
}

func (s *stubSource) OfficialTaxes(context.Context, TaxQuery) ([]*TaxRule, error) {
	return s.official, nil
}

func (s *stubSource) SupplierTaxes(context.Context, TaxQuery) ([]*TaxRule, error) {
	return s.supplier, nil
}

var (
	testAirport  = id.MustParse("018e4a00-0000-7000-8000-000000000001")
	testCountry  = id.MustParse("018e4a00-0000-7000-8000-000000000002")
	testFuelCat  = id.MustParse("018e4a00-0000-7000-8000-000000000003")
	testFuel     = id.MustParse("018e4a00-0000-7000-8000-000000000004")
	testSupplier = id.MustParse("018e4a00-0000-7000-8000-000000000005")
	testIPA      = id.MustParse("018e4a00-0000-7000-8000-000000000006")
	testClient   = id.MustParse("018e4a00-0000-7000-8000-000000000007")
	testHandler  = id.MustParse("018e4a00-0000-7000-8000-000000000008")
	testMethod   = id.MustParse("018e4a00-0000-7000-8000-000000000009")
	testTaxCat   = id.MustParse("018e4a00-0000-7000-8000-00000000000a")
	testFeeCat   = id.MustParse("018e4a00-0000-7000-8000-00000000000b")
)

var testUplift = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

const (
	unitLitre  reference.UnitCode = "L"
	unitGallon reference.UnitCode = "USG"
)

func usdPerGallon() reference.PricingUnit {
	return reference.PricingUnit{
		ID:           id.New(),
		Description:  "USD per USG",
		CurrencyCode: "USD",
		UnitCode:     unitGallon,
	}
}

func usdPerUplift() reference.PricingUnit {
	return reference.PricingUnit{
		ID:           id.New(),
		Description:  "USD per uplift",
		CurrencyCode: "USD",
		FixedUplift:  true,
	}
}

func testScenario() *Scenario {
	return &Scenario{
		AirportID: testAirport,
		Airport: &reference.Airport{
			ID:        testAirport,
			ICAO:      "EGLL",
			Name:      "Heathrow",
			CountryID: testCountry,
			TimeZone:  "Europe/London",
		},
		FuelCategoryID: testFuelCat,
		UpliftQuantity: decimal.NewFromInt(1000),
		UpliftUnit:     unitGallon,
		UpliftAt:       testUplift,
		FlightType:     FlightTypeScheduled,
		Destination:    DestinationInternational,
		Currency:       "USD",
		IsFuelTaken:    true,
	}
}

func testConverter(factors *stubFactors, rates *stubRates) *Converter {
	if factors == nil {
		factors = newStubFactors()
	}
	if rates == nil {
		rates = newStubRates()
	}
	return NewConverter(factors, rates, logger.Nop())
}

func testCalculation(scn *Scenario, src *stubSource, conv *Converter) *Calculation {
	if conv == nil {
		conv = testConverter(nil, nil)
	}
	return NewCalculation(scn, src, conv, logger.Nop())
}

func marketRule(price string) *FuelPricingRule {
	return &FuelPricingRule{
		ID:                  id.New(),
		Kind:                KindMarket,
		SupplierID:          testSupplier,
		SupplierName:        "AirFuel Ltd",
		IPAID:               testIPA,
		IPAName:             "IntoPlane Co",
		AirportID:           testAirport,
		FuelID:              testFuel,
		FuelName:            "Jet A-1",
		AppliesToCommercial: true,
		AppliesToPrivate:    true,
		ValidFrom:           testUplift.AddDate(0, -1, 0),
		UntilFurtherNotice:  true,
		Unit:                usdPerGallon(),
		Published:           true,
		UnitPrice:           decimal.RequireFromString(price),
	}
}

func feeRule(name, price string) *FeeRule {
	return &FeeRule{
		ID:                  id.New(),
		SupplierID:          testSupplier,
		CategoryID:          testFeeCat,
		CategoryName:        "Into-plane fee",
		DisplayName:         name,
		AppliesToCommercial: true,
		AppliesToPrivate:    true,
		NativePrice:         decimal.RequireFromString(price),
		NativeCurrency:      "USD",
		Unit:                usdPerUplift(),
		ValidFrom:           testUplift.AddDate(0, -1, 0),
		UntilFurtherNotice:  true,
	}
}

func pctTaxRule(official bool, pct string) *TaxRule {
	p := decimal.RequireFromString(pct)
	t := &TaxRule{
		ID:                 id.New(),
		Official:           official,
		CategoryID:         testTaxCat,
		CategoryName:       "VAT",
		AppliesToFuel:      true,
		Percentage:         &p,
		CountryID:          &testCountry,
		ValidFrom:          testUplift.AddDate(0, -1, 0),
		UntilFurtherNotice: true,
	}
	if !official {
		sup := testSupplier
		t.SupplierID = &sup
	}
	return t
}
