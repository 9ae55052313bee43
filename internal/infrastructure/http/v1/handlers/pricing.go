package handlers

import (
	"github.com/gin-gonic/gin"

	"fuelops/internal/core/apperror"
	"fuelops/internal/core/id"
	"fuelops/internal/domain/pricing"
	"fuelops/internal/infrastructure/http/v1/dto"
	"fuelops/internal/infrastructure/storage/postgres"
)

// PricingHandler serves the calculation endpoints.
type PricingHandler struct {
	*BaseHandler
	service *pricing.Service
	calcLog *postgres.CalcLog
}

// NewPricingHandler creates the pricing handler. The calc log may be
// nil; the history endpoint then returns 404.
func NewPricingHandler(base *BaseHandler, service *pricing.Service, calcLog *postgres.CalcLog) *PricingHandler {
	return &PricingHandler{
		BaseHandler: base,
		service:     service,
		calcLog:     calcLog,
	}
}

// RegisterRoutes mounts the pricing routes on the group.
func (h *PricingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/calculate", h.Calculate)
	rg.GET("/calculations/:airportID", h.History)
}

// Calculate runs one pricing calculation.
func (h *PricingHandler) Calculate(c *gin.Context) {
	var body dto.CalculateRequest
	if !h.BindJSON(c, &body) {
		return
	}

	req, err := body.ToRequest()
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.service.Calculate(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewCalculateResponse(res))
}

// History lists recent recorded calculations for an airport.
func (h *PricingHandler) History(c *gin.Context) {
	if h.calcLog == nil {
		h.Error(c, apperror.NewNotFound("calculation log", "disabled"))
		return
	}

	airportID, err := id.Parse(c.Param("airportID"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid airport id"))
		return
	}
	limit := h.ParseIntQuery(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, err := h.calcLog.History(c.Request.Context(), airportID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.CalcLogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.CalcLogEntryResponse{
			ID:          e.ID.String(),
			TraceID:     e.TraceID,
			AirportID:   e.AirportID.String(),
			FlightType:  e.FlightType,
			UpliftAt:    e.UpliftAt,
			RowCount:    e.RowCount,
			WorstStatus: e.WorstStatus,
			DurationMs:  e.DurationMs,
			CreatedAt:   e.CreatedAt,
		})
	}
	h.OK(c, gin.H{"items": out})
}
