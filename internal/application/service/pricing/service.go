package pricing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tradepipeline/internal/application/service/stagelog"
	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/domain/interfaces"

	"github.com/shopspring/decimal"
)

const EndpointPrices = "/prices"

// Config holds the price table and the faults Pricing may inject.
type Config struct {
	BasePrices           map[string]decimal.Decimal
	DefaultPrice         decimal.Decimal
	Perturbation         float64
	TimeoutProbability   float64
	MalformedProbability float64
	TimeoutDelay         time.Duration
	LatencyMin           time.Duration
	LatencyMax           time.Duration
}

// latency draws the simulated compute delay from [LatencyMin, LatencyMax].
func (c Config) latency(faults interfaces.FaultStrategy) time.Duration {
	if c.LatencyMax <= 0 {
		return 0
	}
	mid := (c.LatencyMin + c.LatencyMax) / 2
	half := float64(c.LatencyMax-c.LatencyMin) / 2
	return mid + time.Duration(faults.Perturb(half))
}

// BasePrice returns the table price for symbol or the default.
func (c Config) BasePrice(symbol string) decimal.Decimal {
	if price, ok := c.BasePrices[symbol]; ok {
		return price
	}
	return c.DefaultPrice
}

type Service struct {
	cfg       Config
	faults    interfaces.FaultStrategy
	valuation interfaces.ValuationClient
	log       *stagelog.Recorder
	sleep     func(time.Duration)
}

func NewService(cfg Config, faults interfaces.FaultStrategy, valuation interfaces.ValuationClient, log *stagelog.Recorder) *Service {
	return &Service{
		cfg:       cfg,
		faults:    faults,
		valuation: valuation,
		log:       log,
		sleep:     time.Sleep,
	}
}

// WithSleep replaces the blocking wait used by the timeout fault and the
// simulated latency.
func (s *Service) WithSleep(sleep func(time.Duration)) *Service {
	s.sleep = sleep
	return s
}

// ComputePrice prices the trade and, on success, forwards it to Valuation.
// A returned error is always a *pipeline.StageError raised here.
func (s *Service) ComputePrice(ctx context.Context, traceID string, req pipeline.PricingRequest) (*pipeline.PricingResponse, error) {
	extra := stagelog.Fields{
		tracelog.ExtraEndpoint: EndpointPrices,
		tracelog.ExtraMethod:   http.MethodPost,
		tracelog.ExtraTradeID:  req.TradeID,
		tracelog.ExtraSymbol:   req.Symbol,
		tracelog.ExtraQuantity: req.Quantity,
	}

	// Both faults are sampled on every request so one does not shift the
	// random sequence seen by the other.
	timedOut := s.faults.Trigger(s.cfg.TimeoutProbability)
	malformed := s.faults.Trigger(s.cfg.MalformedProbability)

	if timedOut {
		s.sleep(s.cfg.TimeoutDelay)
		err := &pipeline.StageError{
			Stage:  pipeline.StagePricing,
			Kind:   pipeline.KindTimeout,
			Detail: fmt.Sprintf("price computation exceeded %s", s.cfg.TimeoutDelay),
		}
		extra[tracelog.ExtraDelayMS] = s.cfg.TimeoutDelay.Milliseconds()
		extra[tracelog.ExtraDetail] = err.Detail
		s.log.Error(s.log.Now(), traceID, "Price computation timed out", pipeline.KindTimeout, extra)
		return nil, err
	}
	if malformed {
		err := &pipeline.StageError{
			Stage:  pipeline.StagePricing,
			Kind:   pipeline.KindMalformed,
			Detail: "price source returned an incomplete quote",
		}
		extra[tracelog.ExtraDetail] = err.Detail
		s.log.Error(s.log.Now(), traceID, "Price computation returned malformed result", pipeline.KindMalformed, extra)
		return nil, err
	}

	if delay := s.cfg.latency(s.faults); delay > 0 {
		s.sleep(delay)
	}
	price := s.cfg.BasePrice(req.Symbol).Add(decimal.NewFromFloat(s.faults.Perturb(s.cfg.Perturbation)))
	decidedAt := s.log.Now()
	extra[tracelog.ExtraComputedPrice] = stagelog.Decimal(price)

	resp := &pipeline.PricingResponse{
		PricingResult: pipeline.PricingResult{
			TradeID:       req.TradeID,
			Symbol:        req.Symbol,
			Quantity:      req.Quantity,
			ComputedPrice: price,
		},
	}

	valued, err := s.valuation.ComputePnL(ctx, traceID, pipeline.ValuationRequest{
		TradeID:       req.TradeID,
		Symbol:        req.Symbol,
		ComputedPrice: price,
		Quantity:      req.Quantity,
	})
	resp.Downstream = pipeline.ChainFromValuation(valued, err)

	if hopErr := pipeline.AsHopError(pipeline.StageValuation, err); hopErr != nil && hopErr.Transport() {
		s.log.HopFailure(decidedAt, traceID, hopErr, extra)
	} else {
		s.log.Info(decidedAt, traceID, "Price computed successfully", extra)
	}
	return resp, nil
}

// Reject records a payload that could not be decoded.
func (s *Service) Reject(traceID string, err error) {
	s.log.Reject(traceID, EndpointPrices, http.MethodPost, err)
}
