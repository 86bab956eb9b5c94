package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradepipeline/internal/application/service/intake"
	"tradepipeline/internal/application/service/pricing"
	"tradepipeline/internal/application/service/risk"
	"tradepipeline/internal/application/service/valuation"
	"tradepipeline/internal/domain/entity/pipeline"
)

// Hop payloads decode numbers as pointers so an absent field is told apart
// from a zero value.
type pricingPayload struct {
	TradeID  string `json:"trade_id"`
	Symbol   string `json:"symbol"`
	Quantity *int64 `json:"quantity"`
}

func (p pricingPayload) validate() error {
	return missingFields(
		field{"trade_id", p.TradeID != ""},
		field{"symbol", p.Symbol != ""},
		field{"quantity", p.Quantity != nil},
	)
}

type valuationPayload struct {
	TradeID       string           `json:"trade_id"`
	Symbol        string           `json:"symbol"`
	ComputedPrice *decimal.Decimal `json:"computed_price"`
	Quantity      *int64           `json:"quantity"`
}

func (p valuationPayload) validate() error {
	return missingFields(
		field{"trade_id", p.TradeID != ""},
		field{"symbol", p.Symbol != ""},
		field{"computed_price", p.ComputedPrice != nil},
		field{"quantity", p.Quantity != nil},
	)
}

type riskPayload struct {
	TradeID  string           `json:"trade_id"`
	PnLValue *decimal.Decimal `json:"pnl_value"`
	Quantity *int64           `json:"quantity"`
}

func (p riskPayload) validate() error {
	return missingFields(
		field{"trade_id", p.TradeID != ""},
		field{"pnl_value", p.PnLValue != nil},
		field{"quantity", p.Quantity != nil},
	)
}

type field struct {
	name    string
	present bool
}

func missingFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
}

// bindPayload decodes the body and checks required fields.
func bindPayload[T interface{ validate() error }](c *gin.Context, payload *T) error {
	if err := c.ShouldBindJSON(payload); err != nil {
		return err
	}
	return (*payload).validate()
}

func NewIntakeHandler(svc *intake.Service, metrics *Metrics) *Handler {
	h := newHandler(pipeline.StageIntake.Service(), metrics)
	h.intake = svc
	h.router.POST(intake.EndpointTrades, h.createTrade)
	h.router.GET(intake.EndpointTrade, h.getTrade)
	return h
}

func NewPricingHandler(svc *pricing.Service, metrics *Metrics) *Handler {
	h := newHandler(pipeline.StagePricing.Service(), metrics)
	h.pricing = svc
	h.router.POST(pricing.EndpointPrices, h.computePrice)
	return h
}

func NewValuationHandler(svc *valuation.Service, metrics *Metrics) *Handler {
	h := newHandler(pipeline.StageValuation.Service(), metrics)
	h.valuation = svc
	h.router.POST(valuation.EndpointPnL, h.computePnL)
	return h
}

func NewRiskHandler(svc *risk.Service, metrics *Metrics) *Handler {
	h := newHandler(pipeline.StageRisk.Service(), metrics)
	h.risk = svc
	h.router.POST(risk.EndpointRisk, h.assessRisk)
	return h
}

// createTrade answers 200 whenever the trade was stored, even if the chain
// stopped further down; the response chain says how far it got.
func (h *Handler) createTrade(c *gin.Context) {
	traceID := traceIDFrom(c)
	var trade pipeline.Trade
	if err := c.ShouldBindJSON(&trade); err != nil {
		h.intake.Reject(traceID, err)
		h.reject(c, pipeline.StageIntake, err)
		return
	}
	resp, err := h.intake.CreateTrade(c.Request.Context(), traceID, trade)
	if err != nil {
		h.reject(c, pipeline.StageIntake, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getTrade(c *gin.Context) {
	tradeID := c.Param("trade_id")
	trade, err := h.intake.GetTrade(traceIDFrom(c), tradeID)
	if errors.Is(err, intake.ErrTradeNotFound) {
		h.writeFailure(c, tradeID, &pipeline.StageError{
			Stage:  pipeline.StageIntake,
			Kind:   pipeline.KindNotFound,
			Detail: err.Error(),
		})
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (h *Handler) computePrice(c *gin.Context) {
	traceID := traceIDFrom(c)
	var payload pricingPayload
	if err := bindPayload(c, &payload); err != nil {
		h.pricing.Reject(traceID, err)
		h.reject(c, pipeline.StagePricing, err)
		return
	}
	resp, err := h.pricing.ComputePrice(c.Request.Context(), traceID, pipeline.PricingRequest{
		TradeID:  payload.TradeID,
		Symbol:   payload.Symbol,
		Quantity: *payload.Quantity,
	})
	if err != nil {
		h.writeFailure(c, payload.TradeID, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) computePnL(c *gin.Context) {
	traceID := traceIDFrom(c)
	var payload valuationPayload
	if err := bindPayload(c, &payload); err != nil {
		h.valuation.Reject(traceID, err)
		h.reject(c, pipeline.StageValuation, err)
		return
	}
	resp, err := h.valuation.ComputePnL(c.Request.Context(), traceID, pipeline.ValuationRequest{
		TradeID:       payload.TradeID,
		Symbol:        payload.Symbol,
		ComputedPrice: *payload.ComputedPrice,
		Quantity:      *payload.Quantity,
	})
	if err != nil {
		h.writeFailure(c, payload.TradeID, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) assessRisk(c *gin.Context) {
	traceID := traceIDFrom(c)
	var payload riskPayload
	if err := bindPayload(c, &payload); err != nil {
		h.risk.Reject(traceID, err)
		h.reject(c, pipeline.StageRisk, err)
		return
	}
	c.JSON(http.StatusOK, h.risk.AssessRisk(c.Request.Context(), traceID, pipeline.RiskRequest{
		TradeID:  payload.TradeID,
		PnLValue: *payload.PnLValue,
		Quantity: *payload.Quantity,
	}))
}
