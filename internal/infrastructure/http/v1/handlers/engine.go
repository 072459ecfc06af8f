package handlers

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/core/id"
	"docflow/internal/domain/costing"
	"docflow/internal/domain/document"
	"docflow/internal/domain/lifecycle"
	"docflow/internal/domain/tax"
	"docflow/internal/infrastructure/http/v1/dto"
)

// EngineHandler exposes the calculators and registers behind the lifecycle.
type EngineHandler struct {
	*BaseHandler
	service *lifecycle.Service
}

// NewEngineHandler creates a new engine handler.
func NewEngineHandler(base *BaseHandler, service *lifecycle.Service) *EngineHandler {
	return &EngineHandler{BaseHandler: base, service: service}
}

// ComputeTax handles POST /tax/compute
func (h *EngineHandler) ComputeTax(c *gin.Context) {
	var req dto.TaxComputeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	mode, err := tax.ParseMode(req.TaxMode, tax.Exclude)
	if err != nil {
		h.Error(c, err)
		return
	}

	calc := h.service.Calculator()
	h.OK(c, dto.TaxComputeResponse{Rate: calc.Rate(), Result: calc.Compute(req.ToLines(), mode)})
}

// AverageCost handles GET /costing/average?itemId=&locationId=
func (h *EngineHandler) AverageCost(c *gin.Context) {
	itemID, ok := h.QueryID(c, "itemId")
	if !ok {
		return
	}
	locationID, ok := h.QueryID(c, "locationId")
	if !ok {
		return
	}

	layer, err := h.service.CostLayer(c.Request.Context(), itemID, locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.CostLayerResponse{
		ItemID:          itemID,
		LocationID:      locationID,
		QuantityOnHand:  layer.Quantity,
		AverageUnitCost: layer.AverageCost,
		Value:           layer.Value(),
	})
}

// DistributeCost handles POST /costing/distribute
func (h *EngineHandler) DistributeCost(c *gin.Context) {
	var req dto.DistributeCostRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.OK(c, dto.DistributeCostResponse{
		UnitCosts: costing.DistributeConversionCost(req.TotalInputCost, req.OutputQuantities),
	})
}

// Balances handles GET /balances?partnerId=&kind=
func (h *EngineHandler) Balances(c *gin.Context) {
	var partnerID *id.ID
	if c.Query("partnerId") != "" {
		v, ok := h.QueryID(c, "partnerId")
		if !ok {
			return
		}
		partnerID = &v
	}

	balances, err := h.service.OpenBalances(c.Request.Context(), partnerID, document.Kind(c.Query("kind")))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": balances})
}

// SuggestAllocations handles POST /allocations/suggest
func (h *EngineHandler) SuggestAllocations(c *gin.Context) {
	var req dto.SuggestAllocationsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	s, err := h.service.SuggestAllocations(c.Request.Context(), document.Kind(req.Kind), req.PartnerID, req.Amount)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}
