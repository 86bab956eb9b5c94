package tracelog

import (
	"strings"
	"time"

	"tradepipeline/internal/domain/entity/pipeline"
)

// ChainState is the pipeline progress implied by the records of one trace.
type ChainState string

const (
	StateUnknown  ChainState = "UNKNOWN"
	StatePending  ChainState = "PENDING"
	StatePriced   ChainState = "PRICED"
	StateValued   ChainState = "VALUED"
	StateAssessed ChainState = "ASSESSED"
)

// StateAfter is the state reached once stage has logged a success.
func StateAfter(stage pipeline.Stage) ChainState {
	switch stage {
	case pipeline.StageIntake:
		return StatePending
	case pipeline.StagePricing:
		return StatePriced
	case pipeline.StageValuation:
		return StateValued
	case pipeline.StageRisk:
		return StateAssessed
	default:
		return StateUnknown
	}
}

func FailedAt(stage pipeline.Stage) ChainState {
	return ChainState("FAILED_AT_" + strings.ToUpper(stage.String()))
}

func (s ChainState) Failed() bool {
	return strings.HasPrefix(string(s), "FAILED_AT_")
}

// AnomalyKind names a data-quality problem found while reading records.
type AnomalyKind string

const (
	AnomalyPnLMismatch         AnomalyKind = "pnl_mismatch"
	AnomalyTimestampRegression AnomalyKind = "timestamp_regression"
	AnomalyDuplicateRecord     AnomalyKind = "duplicate_stage_record"
	AnomalyOrphanRecord        AnomalyKind = "orphan_record"
	AnomalyRecordAfterFailure  AnomalyKind = "record_after_failure"
)

type Anomaly struct {
	Kind   AnomalyKind    `json:"kind"`
	Stage  pipeline.Stage `json:"stage"`
	Detail string         `json:"detail"`
}

// StageObservation is what one stage record says about its hop.
type StageObservation struct {
	Stage     pipeline.Stage `json:"stage"`
	Level     Level          `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
}

// ChainStatus is derived from records only; nothing stores it.
type ChainStatus struct {
	TraceID   string             `json:"trace_id"`
	TradeID   string             `json:"trade_id,omitempty"`
	State     ChainState         `json:"state"`
	Stages    []StageObservation `json:"stages"`
	Failure   *pipeline.Failure  `json:"failure,omitempty"`
	Anomalies []Anomaly          `json:"anomalies,omitempty"`
}

// Terminal reports whether no further record can move the chain forward.
func (s ChainStatus) Terminal() bool {
	return s.State == StateAssessed || s.State.Failed()
}
