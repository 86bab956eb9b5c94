package interfaces

import (
	"context"

	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"
)

// TradeStore keeps accepted trades for the life of the Intake process.
type TradeStore interface {
	Put(trade pipeline.Trade)
	Get(tradeID string) (pipeline.Trade, bool)
}

// PricingClient is Intake's hop to Pricing.
type PricingClient interface {
	ComputePrice(ctx context.Context, traceID string, req pipeline.PricingRequest) (*pipeline.PricingResponse, error)
}

// ValuationClient is Pricing's hop to Valuation.
type ValuationClient interface {
	ComputePnL(ctx context.Context, traceID string, req pipeline.ValuationRequest) (*pipeline.ValuationResponse, error)
}

// RiskClient is Valuation's hop to Risk.
type RiskClient interface {
	AssessRisk(ctx context.Context, traceID string, req pipeline.RiskRequest) (*pipeline.RiskResult, error)
}

// RecordEmitter writes a stage record synchronously.
type RecordEmitter interface {
	Emit(record tracelog.Record)
}

// FaultStrategy decides injected faults and price perturbation.
type FaultStrategy interface {
	// Trigger reports whether an event with the given probability fires.
	Trigger(probability float64) bool
	// Perturb returns a value drawn uniformly from [-spread, spread].
	Perturb(spread float64) float64
}
