// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"fuelops/internal/core/apperror"
	"fuelops/internal/core/id"
	"fuelops/internal/domain/pricing"
	"fuelops/internal/domain/reference"
)

// CalculateRequest is the calculation input. Decimal values are sent as
// strings to avoid float precision loss in transit.
type CalculateRequest struct {
	AirportID      string `json:"airportId" binding:"required,uuid"`
	FuelCategoryID string `json:"fuelCategoryId" binding:"required,uuid"`

	UpliftQuantity string    `json:"upliftQuantity"`
	UpliftUnit     string    `json:"upliftUnit"`
	UpliftAt       time.Time `json:"upliftAt" binding:"required"`

	FlightType  string `json:"flightType" binding:"required,oneof=A S N M"`
	Destination string `json:"destination" binding:"required,oneof=ALL DOM INT"`
	IsPrivate   bool   `json:"isPrivate"`

	Currency string `json:"currency" binding:"omitempty,len=3"`

	ClientID       *string `json:"clientId" binding:"omitempty,uuid"`
	HandlerID      *string `json:"handlerId" binding:"omitempty,uuid"`
	ApronID        *string `json:"apronId" binding:"omitempty,uuid"`
	Hookup         *string `json:"hookup" binding:"omitempty,oneof=OW SP"`
	AircraftTypeID *string `json:"aircraftTypeId" binding:"omitempty,uuid"`

	IsFuelTaken    bool `json:"isFuelTaken"`
	IsDefueling    bool `json:"isDefueling"`
	IsMultiVehicle bool `json:"isMultiVehicle"`
	ExtendExpired  bool `json:"extendExpired"`
}

// ToRequest converts the DTO into the service request, validating the
// pieces gin's binding tags cannot express.
func (r *CalculateRequest) ToRequest() (pricing.Request, error) {
	var req pricing.Request
	var err error

	if req.AirportID, err = id.Parse(r.AirportID); err != nil {
		return req, apperror.NewValidation("invalid airportId")
	}
	if req.FuelCategoryID, err = id.Parse(r.FuelCategoryID); err != nil {
		return req, apperror.NewValidation("invalid fuelCategoryId")
	}

	if r.UpliftQuantity != "" {
		req.UpliftQuantity, err = decimal.NewFromString(r.UpliftQuantity)
		if err != nil {
			return req, apperror.NewValidation("upliftQuantity is not a valid decimal").
				WithDetail("value", r.UpliftQuantity)
		}
	}
	req.UpliftUnit = reference.UnitCode(r.UpliftUnit)
	req.UpliftAt = r.UpliftAt

	req.FlightType = pricing.FlightType(r.FlightType)
	req.Destination = pricing.DestinationType(r.Destination)
	req.IsPrivate = r.IsPrivate
	req.Currency = r.Currency

	if req.ClientID, err = parseOptionalID(r.ClientID, "clientId"); err != nil {
		return req, err
	}
	if req.HandlerID, err = parseOptionalID(r.HandlerID, "handlerId"); err != nil {
		return req, err
	}
	if req.ApronID, err = parseOptionalID(r.ApronID, "apronId"); err != nil {
		return req, err
	}
	if req.AircraftTypeID, err = parseOptionalID(r.AircraftTypeID, "aircraftTypeId"); err != nil {
		return req, err
	}
	if r.Hookup != nil {
		h := pricing.HookupMethod(*r.Hookup)
		req.Hookup = &h
	}

	req.IsFuelTaken = r.IsFuelTaken
	req.IsDefueling = r.IsDefueling
	req.IsMultiVehicle = r.IsMultiVehicle
	req.ExtendExpired = r.ExtendExpired
	return req, nil
}

func parseOptionalID(s *string, field string) (*id.ID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	parsed, err := id.Parse(*s)
	if err != nil {
		return nil, apperror.NewValidation("invalid " + field)
	}
	return &parsed, nil
}

// CalculateResponse wraps the calculation result with run metadata.
type CalculateResponse struct {
	Rows          []*pricing.ResultRow `json:"rows"`
	CurrencyPairs [][2]string          `json:"currencyPairs,omitempty"`
	DurationMs    int64                `json:"durationMs"`
}

// NewCalculateResponse builds the response from a service result.
func NewCalculateResponse(res *pricing.Result) CalculateResponse {
	return CalculateResponse{
		Rows:          res.Rows,
		CurrencyPairs: res.CurrencyPairs,
		DurationMs:    res.Duration.Milliseconds(),
	}
}

// CalcLogEntryResponse is one audit history entry, payload omitted.
type CalcLogEntryResponse struct {
	ID          string    `json:"id"`
	TraceID     string    `json:"traceId"`
	AirportID   string    `json:"airportId"`
	FlightType  string    `json:"flightType"`
	UpliftAt    time.Time `json:"upliftAt"`
	RowCount    int       `json:"rowCount"`
	WorstStatus string    `json:"worstStatus"`
	DurationMs  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}
