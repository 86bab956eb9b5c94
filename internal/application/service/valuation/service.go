package valuation

import (
	"context"
	"net/http"

	"tradepipeline/internal/application/service/stagelog"
	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/domain/interfaces"

	"github.com/shopspring/decimal"
)

const EndpointPnL = "/pnl"

type Config struct {
	Costs                    map[string]decimal.Decimal
	DefaultCost              decimal.Decimal
	InconsistencyProbability float64
}

// Cost returns the cost basis for symbol or the default.
func (c Config) Cost(symbol string) decimal.Decimal {
	if cost, ok := c.Costs[symbol]; ok {
		return cost
	}
	return c.DefaultCost
}

// PnL is (computedPrice - cost) * quantity without rounding.
func PnL(computedPrice, cost decimal.Decimal, quantity int64) decimal.Decimal {
	return computedPrice.Sub(cost).Mul(decimal.NewFromInt(quantity))
}

type Service struct {
	cfg    Config
	faults interfaces.FaultStrategy
	risk   interfaces.RiskClient
	log    *stagelog.Recorder
}

func NewService(cfg Config, faults interfaces.FaultStrategy, risk interfaces.RiskClient, log *stagelog.Recorder) *Service {
	return &Service{cfg: cfg, faults: faults, risk: risk, log: log}
}

// ComputePnL values the priced trade and forwards the result to Risk.
// A returned error is always a *pipeline.StageError raised here.
func (s *Service) ComputePnL(ctx context.Context, traceID string, req pipeline.ValuationRequest) (*pipeline.ValuationResponse, error) {
	extra := stagelog.Fields{
		tracelog.ExtraEndpoint:      EndpointPnL,
		tracelog.ExtraMethod:        http.MethodPost,
		tracelog.ExtraTradeID:       req.TradeID,
		tracelog.ExtraSymbol:        req.Symbol,
		tracelog.ExtraQuantity:      req.Quantity,
		tracelog.ExtraComputedPrice: stagelog.Decimal(req.ComputedPrice),
	}

	if s.faults.Trigger(s.cfg.InconsistencyProbability) {
		err := &pipeline.StageError{
			Stage:  pipeline.StageValuation,
			Kind:   pipeline.KindInconsistency,
			Detail: "cost basis does not reconcile with position data",
		}
		extra[tracelog.ExtraDetail] = err.Detail
		s.log.Error(s.log.Now(), traceID, "P&L computation failed due to data inconsistency", pipeline.KindInconsistency, extra)
		return nil, err
	}

	cost := s.cfg.Cost(req.Symbol)
	pnl := PnL(req.ComputedPrice, cost, req.Quantity)
	decidedAt := s.log.Now()
	extra[tracelog.ExtraCost] = stagelog.Decimal(cost)
	extra[tracelog.ExtraPnLValue] = stagelog.Decimal(pnl)

	resp := &pipeline.ValuationResponse{
		ValuationResult: pipeline.ValuationResult{
			TradeID:  req.TradeID,
			PnLValue: pnl,
			Quantity: req.Quantity,
		},
	}

	assessed, err := s.risk.AssessRisk(ctx, traceID, pipeline.RiskRequest{
		TradeID:  req.TradeID,
		PnLValue: pnl,
		Quantity: req.Quantity,
	})
	resp.Downstream = pipeline.ChainFromRisk(assessed, err)

	if hopErr := pipeline.AsHopError(pipeline.StageRisk, err); hopErr != nil && hopErr.Transport() {
		s.log.HopFailure(decidedAt, traceID, hopErr, extra)
	} else {
		s.log.Info(decidedAt, traceID, "P&L computed successfully", extra)
	}
	return resp, nil
}

func (s *Service) Reject(traceID string, err error) {
	s.log.Reject(traceID, EndpointPnL, http.MethodPost, err)
}
