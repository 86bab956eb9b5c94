package intake

import (
	"context"
	"errors"
	"testing"

	"tradepipeline/internal/application/service/stagelog"
	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/infrastructure/tradestore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureEmitter struct {
	records []tracelog.Record
}

func (c *captureEmitter) Emit(rec tracelog.Record) {
	c.records = append(c.records, rec)
}

type stubPricing struct {
	calls int
	fn    func(req pipeline.PricingRequest) (*pipeline.PricingResponse, error)
}

func (s *stubPricing) ComputePrice(_ context.Context, _ string, req pipeline.PricingRequest) (*pipeline.PricingResponse, error) {
	s.calls++
	return s.fn(req)
}

func newTrade() pipeline.Trade {
	return pipeline.Trade{
		TradeID:   "T-1",
		Symbol:    "AAPL",
		Quantity:  10,
		Price:     decimal.RequireFromString("150.25"),
		TradeType: pipeline.TradeTypeBuy,
	}
}

func fullChain(req pipeline.PricingRequest) (*pipeline.PricingResponse, error) {
	return &pipeline.PricingResponse{
		PricingResult: pipeline.PricingResult{
			TradeID:       req.TradeID,
			Symbol:        req.Symbol,
			Quantity:      req.Quantity,
			ComputedPrice: decimal.RequireFromString("148.5"),
		},
		Downstream: pipeline.Chain{
			Valuation: &pipeline.ValuationResult{TradeID: req.TradeID, PnLValue: decimal.NewFromInt(85), Quantity: req.Quantity},
			Risk:      &pipeline.RiskResult{TradeID: req.TradeID, RiskLevel: pipeline.RiskLow},
		},
	}, nil
}

func newService(pricing *stubPricing) (*Service, *tradestore.Store, *captureEmitter) {
	store := tradestore.NewStore()
	sink := &captureEmitter{}
	return NewService(store, pricing, stagelog.NewRecorder(pipeline.StageIntake, sink)), store, sink
}

func TestCreateTradeCompleteChain(t *testing.T) {
	pricing := &stubPricing{fn: fullChain}
	svc, store, sink := newService(pricing)

	resp, err := svc.CreateTrade(context.Background(), "trace-1", newTrade())
	require.NoError(t, err)

	assert.Equal(t, "Trade created", resp.Message)
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.True(t, resp.Complete)
	require.NotNil(t, resp.Chain.Risk)
	assert.Equal(t, pipeline.RiskLow, resp.Chain.Risk.RiskLevel)
	assert.False(t, resp.Trade.CreatedAt.IsZero())

	_, ok := store.Get("T-1")
	assert.True(t, ok)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, tracelog.LevelInfo, rec.Level)
	assert.Equal(t, "intake_service", rec.Service)
	assert.Equal(t, "trace-1", rec.TraceID)
	assert.Equal(t, "Trade created successfully", rec.Message)
	assert.Equal(t, "T-1", rec.Extra[tracelog.ExtraTradeID])
	assert.Equal(t, "BUY", rec.Extra[tracelog.ExtraTradeType])
	assert.Equal(t, resp.Trade.CreatedAt, rec.Timestamp)
}

func TestCreateTradeStoresBeforeCallingPricing(t *testing.T) {
	store := tradestore.NewStore()
	pricing := &stubPricing{}
	pricing.fn = func(req pipeline.PricingRequest) (*pipeline.PricingResponse, error) {
		_, ok := store.Get(req.TradeID)
		assert.True(t, ok, "trade must be stored before Pricing is called")
		assert.Equal(t, pipeline.PricingRequest{TradeID: "T-1", Symbol: "AAPL", Quantity: 10}, req)
		return fullChain(req)
	}
	svc := NewService(store, pricing, stagelog.NewRecorder(pipeline.StageIntake, &captureEmitter{}))

	_, err := svc.CreateTrade(context.Background(), "trace-1", newTrade())
	require.NoError(t, err)
	assert.Equal(t, 1, pricing.calls)
}

func TestCreateTradePricingUnreachable(t *testing.T) {
	pricing := &stubPricing{fn: func(pipeline.PricingRequest) (*pipeline.PricingResponse, error) {
		return nil, &pipeline.HopError{Stage: pipeline.StagePricing, Kind: pipeline.KindConnectionFailure, Detail: "connection refused"}
	}}
	svc, store, sink := newService(pricing)

	resp, err := svc.CreateTrade(context.Background(), "trace-2", newTrade())
	require.NoError(t, err)

	assert.False(t, resp.Complete)
	assert.Nil(t, resp.Chain.Pricing)
	require.NotNil(t, resp.Chain.Failure)
	assert.Equal(t, pipeline.StagePricing, resp.Chain.Failure.Stage)
	assert.Equal(t, pipeline.KindConnectionFailure, resp.Chain.Failure.Kind)

	_, ok := store.Get("T-1")
	assert.True(t, ok, "stored trade survives a Pricing failure")

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, tracelog.LevelError, rec.Level)
	assert.Equal(t, "Error calling pricing_service", rec.Message)
	assert.Equal(t, "connection-failure", rec.Extra[tracelog.ExtraError])
	assert.Equal(t, "pricing", rec.Extra[tracelog.ExtraFailedStage])
}

func TestCreateTradePricingAnsweredWithFailure(t *testing.T) {
	pricing := &stubPricing{fn: func(pipeline.PricingRequest) (*pipeline.PricingResponse, error) {
		return nil, &pipeline.HopError{Stage: pipeline.StagePricing, Kind: pipeline.KindTimeout, Status: 504, Detail: "price computation exceeded 5s"}
	}}
	svc, _, sink := newService(pricing)

	resp, err := svc.CreateTrade(context.Background(), "trace-3", newTrade())
	require.NoError(t, err)

	assert.False(t, resp.Complete)
	assert.Nil(t, resp.Chain.Pricing)
	assert.Nil(t, resp.Chain.Valuation)
	assert.Nil(t, resp.Chain.Risk)
	require.NotNil(t, resp.Chain.Failure)
	assert.Equal(t, pipeline.KindTimeout, resp.Chain.Failure.Kind)

	require.Len(t, sink.records, 1)
	assert.Equal(t, tracelog.LevelInfo, sink.records[0].Level)
	assert.NotContains(t, sink.records[0].Extra, tracelog.ExtraFailedStage)
}

func TestCreateTradeValidation(t *testing.T) {
	pricing := &stubPricing{fn: fullChain}
	svc, store, sink := newService(pricing)

	trade := newTrade()
	trade.Quantity = 0
	resp, err := svc.CreateTrade(context.Background(), "trace-4", trade)

	assert.Nil(t, resp)
	var vErr *pipeline.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "quantity", vErr.Field)
	assert.Zero(t, pricing.calls)
	assert.Zero(t, store.Len())

	require.Len(t, sink.records, 1)
	assert.Equal(t, tracelog.LevelError, sink.records[0].Level)
	assert.Equal(t, "validation", sink.records[0].Extra[tracelog.ExtraError])
}

func TestGetTrade(t *testing.T) {
	svc, _, sink := newService(&stubPricing{fn: fullChain})

	_, err := svc.GetTrade("trace-5", "T-1")
	assert.ErrorIs(t, err, ErrTradeNotFound)

	_, err = svc.CreateTrade(context.Background(), "trace-6", newTrade())
	require.NoError(t, err)

	trade, err := svc.GetTrade("trace-7", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", trade.Symbol)

	require.Len(t, sink.records, 3)
	assert.Equal(t, "not-found", sink.records[0].Extra[tracelog.ExtraError])
	assert.Equal(t, "GET", sink.records[2].Extra[tracelog.ExtraMethod])
}
