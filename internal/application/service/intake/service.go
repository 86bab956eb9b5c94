package intake

import (
	"context"
	"errors"
	"net/http"

	"tradepipeline/internal/application/service/stagelog"
	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/domain/interfaces"
)

const (
	EndpointTrades = "/trades"
	EndpointTrade  = "/trades/:trade_id"
)

var ErrTradeNotFound = errors.New("trade not found")

// Service is the first hop: it validates and stores the trade, then starts
// the chain by calling Pricing.
type Service struct {
	store   interfaces.TradeStore
	pricing interfaces.PricingClient
	log     *stagelog.Recorder
}

func NewService(store interfaces.TradeStore, pricing interfaces.PricingClient, log *stagelog.Recorder) *Service {
	return &Service{store: store, pricing: pricing, log: log}
}

// CreateTrade only returns an error for a rejected trade. Anything that goes
// wrong further down is reported in the response chain.
func (s *Service) CreateTrade(ctx context.Context, traceID string, trade pipeline.Trade) (*pipeline.IntakeResponse, error) {
	extra := stagelog.Fields{
		tracelog.ExtraEndpoint:  EndpointTrades,
		tracelog.ExtraMethod:    http.MethodPost,
		tracelog.ExtraTradeID:   trade.TradeID,
		tracelog.ExtraSymbol:    trade.Symbol,
		tracelog.ExtraQuantity:  trade.Quantity,
		tracelog.ExtraPrice:     stagelog.Decimal(trade.Price),
		tracelog.ExtraTradeType: trade.TradeType.String(),
	}
	if err := trade.Validate(); err != nil {
		extra[tracelog.ExtraDetail] = err.Error()
		s.log.Error(s.log.Now(), traceID, "Trade validation failed", pipeline.KindValidation, extra)
		return nil, err
	}

	decidedAt := s.log.Now()
	trade.CreatedAt = decidedAt
	s.store.Put(trade)

	priced, err := s.pricing.ComputePrice(ctx, traceID, pipeline.PricingRequest{
		TradeID:  trade.TradeID,
		Symbol:   trade.Symbol,
		Quantity: trade.Quantity,
	})
	chain := pipeline.ChainFromPricing(priced, err)

	if hopErr := pipeline.AsHopError(pipeline.StagePricing, err); hopErr != nil && hopErr.Transport() {
		s.log.HopFailure(decidedAt, traceID, hopErr, extra)
	} else {
		s.log.Info(decidedAt, traceID, "Trade created successfully", extra)
	}

	return &pipeline.IntakeResponse{
		Message:  "Trade created",
		TraceID:  traceID,
		Trade:    trade,
		Complete: chain.Complete(),
		Chain:    chain,
	}, nil
}

// GetTrade reads a stored trade. Lookups are logged but are not part of any
// pipeline chain.
func (s *Service) GetTrade(traceID, tradeID string) (pipeline.Trade, error) {
	extra := stagelog.Fields{
		tracelog.ExtraEndpoint: EndpointTrade,
		tracelog.ExtraMethod:   http.MethodGet,
		tracelog.ExtraTradeID:  tradeID,
	}
	trade, ok := s.store.Get(tradeID)
	if !ok {
		s.log.Error(s.log.Now(), traceID, "Trade not found", pipeline.KindNotFound, extra)
		return pipeline.Trade{}, ErrTradeNotFound
	}
	s.log.Info(s.log.Now(), traceID, "Trade fetched", extra)
	return trade, nil
}

// Reject records a payload that could not be decoded.
func (s *Service) Reject(traceID string, err error) {
	s.log.Reject(traceID, EndpointTrades, http.MethodPost, err)
}
