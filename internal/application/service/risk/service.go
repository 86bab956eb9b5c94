package risk

import (
	"context"
	"net/http"

	"tradepipeline/internal/application/service/stagelog"
	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"

	"github.com/shopspring/decimal"
)

const EndpointRisk = "/risk"

const largePositionQuantity = 50

// mediumLossThreshold is inclusive: a loss of exactly 100 is MEDIUM.
var mediumLossThreshold = decimal.NewFromInt(-100)

// Classify applies the rules in order; the first match wins.
func Classify(pnl decimal.Decimal, quantity int64) pipeline.RiskLevel {
	switch {
	case pnl.IsNegative() && quantity > largePositionQuantity:
		return pipeline.RiskHigh
	case pnl.LessThanOrEqual(mediumLossThreshold):
		return pipeline.RiskMedium
	default:
		return pipeline.RiskLow
	}
}

// Service is the terminal stage. It never fails once reached.
type Service struct {
	log *stagelog.Recorder
}

func NewService(log *stagelog.Recorder) *Service {
	return &Service{log: log}
}

func (s *Service) AssessRisk(_ context.Context, traceID string, req pipeline.RiskRequest) *pipeline.RiskResult {
	level := Classify(req.PnLValue, req.Quantity)
	s.log.Info(s.log.Now(), traceID, "Risk assessed successfully", stagelog.Fields{
		tracelog.ExtraEndpoint:  EndpointRisk,
		tracelog.ExtraMethod:    http.MethodPost,
		tracelog.ExtraTradeID:   req.TradeID,
		tracelog.ExtraPnLValue:  stagelog.Decimal(req.PnLValue),
		tracelog.ExtraQuantity:  req.Quantity,
		tracelog.ExtraRiskLevel: level.String(),
	})
	return &pipeline.RiskResult{TradeID: req.TradeID, RiskLevel: level}
}

func (s *Service) Reject(traceID string, err error) {
	s.log.Reject(traceID, EndpointRisk, http.MethodPost, err)
}
