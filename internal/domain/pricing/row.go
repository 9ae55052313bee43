package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/id"
	"fuelops/internal/domain/reference"
)

// Status reflects the health of a result row. It is monotonic: once
// escalated to warning or error it is never downgraded within a run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

func statusRank(s Status) int {
	switch s {
	case StatusError:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// IssueCode identifies a row-level problem class.
type IssueCode string

const (
	IssueNoFuelPrice       IssueCode = "no_fuel_price"
	IssueNoFees            IssueCode = "no_fees"
	IssueNoTaxes           IssueCode = "no_taxes"
	IssueExpiredPricing    IssueCode = "expired_pricing_used"
	IssueUnpublishedSource IssueCode = "unpublished_source_used"
	IssueRepresentativeAC  IssueCode = "representative_aircraft_type"
	IssueInclusiveMismatch IssueCode = "inclusive_tax_not_found"
	IssueTaxDivergence     IssueCode = "tax_totals_diverge"
	IssueBaseScopeMismatch IssueCode = "market_base_scope_mismatch"
)

// Issue is one problem attached to the smallest-scoped object that
// caused it.
type Issue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

// RowKey uniquely identifies one fuel-price+fee+tax combination. Nil
// dimensions are represented by the zero UUID so the key has value
// equality and a stable string form.
type RowKey struct {
	SupplierID       id.ID
	IPAID            id.ID
	FuelID           id.ID
	DeliveryMethodID id.ID
	ApronID          id.ID
	ClientSpecific   bool
	HandlerID        id.ID
}

// String returns a stable, sortable form used for deterministic output
// ordering and logging.
func (k RowKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%t|%s",
		k.SupplierID, k.IPAID, k.FuelID, k.DeliveryMethodID, k.ApronID, k.ClientSpecific, k.HandlerID)
}

// FuelPriceDetail carries the priced fuel component of a row.
type FuelPriceDetail struct {
	RuleID id.ID       `json:"ruleId"`
	Kind   PricingKind `json:"kind"`

	// SourceRuleID traces a synthesized or expanded row back to the
	// rule it was cloned from.
	SourceRuleID *id.ID `json:"sourceRuleId,omitempty"`

	// UnitPrice is in major units of Currency per pricing uom.
	UnitPrice decimal.Decimal `json:"unitPrice"`

	// Amount is the total fuel cost, 2dp, in the row currency.
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	Expiry  *time.Time `json:"expiry,omitempty"`
	Expired bool       `json:"expired"`

	SourceDocID   *id.ID            `json:"sourceDocId,omitempty"`
	SourceDocKind reference.DocKind `json:"sourceDocKind,omitempty"`

	// InclusiveTaxCategories lists tax categories already baked into
	// this price; InclusiveAll covers every category and FeesInclusive
	// cascades the inclusion to supplier fees.
	InclusiveTaxCategories []id.ID `json:"inclusiveTaxCategories,omitempty"`
	InclusiveAll           bool    `json:"inclusiveAll"`
	FeesInclusive          bool    `json:"feesInclusive"`
}

// FeeLine is one applied supplier fee.
type FeeLine struct {
	RuleID     id.ID           `json:"ruleId"`
	Name       string          `json:"name"`
	CategoryID id.ID           `json:"categoryId"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`

	// FromAgreement marks agreement-sourced fees; any such fee flags
	// the whole row as agreement pricing.
	FromAgreement bool `json:"fromAgreement"`
}

// TaxBase identifies what a tax line was levied on.
type TaxBase string

const (
	TaxBaseFuel TaxBase = "fuel"
	TaxBaseFee  TaxBase = "fee"
	TaxBaseTax  TaxBase = "tax"
)

// TaxLine is one applied tax, on either the official or supplier side.
type TaxLine struct {
	RuleID     id.ID  `json:"ruleId"`
	CategoryID id.ID  `json:"categoryId"`
	Category   string `json:"category"`
	Official   bool   `json:"official"`

	Base TaxBase `json:"base"`

	// FeeRuleID is set when Base is TaxBaseFee.
	FeeRuleID *id.ID `json:"feeRuleId,omitempty"`

	// ParentRuleID is set when Base is TaxBaseTax (one level only).
	ParentRuleID *id.ID `json:"parentRuleId,omitempty"`

	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	UnitRate   *decimal.Decimal `json:"unitRate,omitempty"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// Inclusive marks zero-amount lines for taxes already baked into
	// the fuel price; shown but excluded from totals.
	Inclusive bool `json:"inclusive"`
}

// ResultRow is one emitted combination.
type ResultRow struct {
	Key RowKey `json:"key"`

	SupplierName       string `json:"supplierName"`
	IPAName            string `json:"ipaName,omitempty"`
	DeliveryMethodName string `json:"deliveryMethodName,omitempty"`
	ApronName          string `json:"apronName,omitempty"`
	HandlerName        string `json:"handlerName,omitempty"`

	FuelPrice *FuelPriceDetail `json:"fuelPrice,omitempty"`

	Fees     []FeeLine       `json:"fees"`
	FeeTotal decimal.Decimal `json:"feeTotal"`

	OfficialTaxes    []TaxLine       `json:"officialTaxes"`
	SupplierTaxes    []TaxLine       `json:"supplierTaxes"`
	OfficialTaxTotal decimal.Decimal `json:"officialTaxTotal"`
	SupplierTaxTotal decimal.Decimal `json:"supplierTaxTotal"`
	TaxTotal         decimal.Decimal `json:"taxTotal"`

	// TaxComparison flags divergent official/supplier totals for UI
	// side-by-side display.
	TaxComparison bool `json:"taxComparison"`

	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`

	Status Status   `json:"status"`
	Issues []Issue  `json:"issues,omitempty"`
	Notes  []string `json:"notes,omitempty"`

	// AgreementPricing is set when the fuel price or any applied fee is
	// agreement-sourced.
	AgreementPricing bool `json:"agreementPricing"`

	// Cheapest tags the least expensive option after sorting.
	Cheapest bool `json:"cheapest"`

	// SyntheticFrom traces a fee- or handler-synthesized row back to
	// the generic row key it was split from.
	SyntheticFrom *RowKey `json:"syntheticFrom,omitempty"`
}

// NewResultRow builds an empty row in ok state.
func NewResultRow(key RowKey) *ResultRow {
	return &ResultRow{
		Key:    key,
		Status: StatusOK,
	}
}

// Escalate raises the row status; it never downgrades.
func (r *ResultRow) Escalate(s Status) {
	if statusRank(s) > statusRank(r.Status) {
		r.Status = s
	}
}

// AddIssue attaches a row-level issue.
func (r *ResultRow) AddIssue(code IssueCode, message string) {
	r.Issues = append(r.Issues, Issue{Code: code, Message: message})
}

// AddNote attaches an informational note, deduplicated.
func (r *ResultRow) AddNote(note string) {
	for _, n := range r.Notes {
		if n == note {
			return
		}
	}
	r.Notes = append(r.Notes, note)
}

func (r *ResultRow) fuelAmount() decimal.Decimal {
	if r.FuelPrice == nil {
		return decimal.Zero
	}
	return r.FuelPrice.Amount
}

// clone deep-copies the row for dimension splitting. Fee and tax lines
// are not carried over; the caller re-resolves them for the new key.
func (r *ResultRow) clone(key RowKey) *ResultRow {
	from := r.Key
	nr := &ResultRow{
		Key:                key,
		SupplierName:       r.SupplierName,
		IPAName:            r.IPAName,
		DeliveryMethodName: r.DeliveryMethodName,
		ApronName:          r.ApronName,
		HandlerName:        r.HandlerName,
		Currency:           r.Currency,
		Status:             r.Status,
		AgreementPricing:   r.AgreementPricing,
		SyntheticFrom:      &from,
	}
	if r.FuelPrice != nil {
		fp := *r.FuelPrice
		nr.FuelPrice = &fp
	}
	nr.Issues = append([]Issue(nil), r.Issues...)
	nr.Notes = append([]string(nil), r.Notes...)
	return nr
}
