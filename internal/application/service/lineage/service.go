package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"tradepipeline/internal/application/service/valuation"
	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/domain/interfaces"

	"github.com/shopspring/decimal"
)

var (
	ErrTraceNotFound = errors.New("no records for trace")
	ErrMissingTrace  = errors.New("trace id is required")
	ErrMissingTrade  = errors.New("trade id is required")
	ErrNoTraceIndex  = errors.New("record source cannot search by trade")
)

// pnlTolerance absorbs float noise in records written by other producers.
var pnlTolerance = decimal.New(1, -6)

// Service reconstructs chain status from stage records. It never stores the
// result: every call rescans the records.
type Service struct {
	source interfaces.RecordSource
	index  interfaces.TraceIndex
}

func NewService(source interfaces.RecordSource, index interfaces.TraceIndex) *Service {
	return &Service{source: source, index: index}
}

func (s *Service) Status(ctx context.Context, traceID string) (*tracelog.ChainStatus, error) {
	if traceID == "" {
		return nil, ErrMissingTrace
	}
	records, err := s.source.GetRecordsByTrace(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("load records for %s: %w", traceID, err)
	}
	if len(records) == 0 {
		return nil, ErrTraceNotFound
	}
	status := Derive(traceID, records)
	return &status, nil
}

func (s *Service) TracesForTrade(ctx context.Context, tradeID string) ([]string, error) {
	if tradeID == "" {
		return nil, ErrMissingTrade
	}
	if s.index == nil {
		return nil, ErrNoTraceIndex
	}
	return s.index.GetTraceIDsByTrade(ctx, tradeID)
}

// Group splits records by trace id, keeping each group in timestamp order.
func Group(records []tracelog.Record) map[string][]tracelog.Record {
	groups := make(map[string][]tracelog.Record)
	for _, rec := range records {
		if rec.TraceID == "" {
			continue
		}
		groups[rec.TraceID] = append(groups[rec.TraceID], rec)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})
	}
	return groups
}

// Derive computes the chain state of one trace: the longest prefix of stages
// that logged, in call order, ending at the first ERROR record. A caller that
// gave up on the next hop names it in failed_stage; that stage may still log
// its own record, which is observed rather than reported as an anomaly.
func Derive(traceID string, records []tracelog.Record) tracelog.ChainStatus {
	status := tracelog.ChainStatus{
		TraceID: traceID,
		State:   tracelog.StateUnknown,
		Stages:  []tracelog.StageObservation{},
	}

	byStage := make(map[pipeline.Stage][]tracelog.Record)
	for _, rec := range records {
		stage, ok := pipeline.StageFromService(rec.Service)
		if !ok || !isPipelineCall(rec) {
			continue
		}
		byStage[stage] = append(byStage[stage], rec)
		if status.TradeID == "" {
			status.TradeID = rec.ExtraString(tracelog.ExtraTradeID)
		}
	}

	stopped := false
	failed := false
	var awaiting pipeline.Stage
	var prev *tracelog.Record
	for _, stage := range pipeline.Stages {
		recs := byStage[stage]
		if len(recs) == 0 {
			stopped = true
			awaiting = ""
			continue
		}
		if len(recs) > 1 {
			status.Anomalies = append(status.Anomalies, tracelog.Anomaly{
				Kind:   tracelog.AnomalyDuplicateRecord,
				Stage:  stage,
				Detail: fmt.Sprintf("%d records for one request", len(recs)),
			})
		}
		rec := recs[0]
		late := stopped && stage == awaiting
		awaiting = ""
		if stopped && !late {
			kind := tracelog.AnomalyOrphanRecord
			detail := "record without a record from the calling stage"
			if failed {
				kind = tracelog.AnomalyRecordAfterFailure
				detail = "stage kept working after the chain was reported failed"
			}
			status.Anomalies = append(status.Anomalies, tracelog.Anomaly{Kind: kind, Stage: stage, Detail: detail})
			continue
		}

		obs := tracelog.StageObservation{
			Stage:     stage,
			Level:     rec.Level,
			Timestamp: rec.Timestamp,
			Message:   rec.Message,
			Error:     rec.ExtraString(tracelog.ExtraError),
		}
		status.Stages = append(status.Stages, obs)

		if prev != nil && rec.Timestamp.Before(prev.Timestamp) {
			status.Anomalies = append(status.Anomalies, tracelog.Anomaly{
				Kind:   tracelog.AnomalyTimestampRegression,
				Stage:  stage,
				Detail: fmt.Sprintf("logged at %s, before the calling stage at %s", rec.Timestamp.Format(tracelog.TimestampLayout), prev.Timestamp.Format(tracelog.TimestampLayout)),
			})
		}
		if stage == pipeline.StageValuation && rec.Level == tracelog.LevelInfo {
			if anomaly, ok := checkPnL(rec); ok {
				status.Anomalies = append(status.Anomalies, anomaly)
			}
		}
		prev = &recs[0]

		if rec.Level == tracelog.LevelError {
			failedStage := stage
			if named, err := pipeline.ParseStage(rec.ExtraString(tracelog.ExtraFailedStage)); err == nil {
				failedStage = named
			}
			if failedStage != stage {
				awaiting = failedStage
			}
			status.State = tracelog.FailedAt(failedStage)
			detail := rec.ExtraString(tracelog.ExtraDetail)
			if detail == "" {
				detail = rec.Message
			}
			status.Failure = &pipeline.Failure{
				Stage:  failedStage,
				Kind:   pipeline.FailureKind(obs.Error),
				Detail: detail,
			}
			stopped = true
			failed = true
			continue
		}
		if late {
			// The stage finished after its caller gave up; the chain stays failed.
			continue
		}
		status.State = tracelog.StateAfter(stage)
	}
	return status
}

// isPipelineCall drops lookups such as GET /trades/:trade_id.
func isPipelineCall(rec tracelog.Record) bool {
	method := rec.ExtraString(tracelog.ExtraMethod)
	return method == "" || method == http.MethodPost
}

// checkPnL surfaces valuation records whose P&L disagrees with
// (computed_price - cost) * quantity. The record is reported, not corrected.
func checkPnL(rec tracelog.Record) (tracelog.Anomaly, bool) {
	price, okPrice := decimalExtra(rec, tracelog.ExtraComputedPrice)
	cost, okCost := decimalExtra(rec, tracelog.ExtraCost)
	qty, okQty := decimalExtra(rec, tracelog.ExtraQuantity)
	pnl, okPnL := decimalExtra(rec, tracelog.ExtraPnLValue)
	if !okPrice || !okCost || !okQty || !okPnL || !qty.IsInteger() {
		return tracelog.Anomaly{}, false
	}
	expected := valuation.PnL(price, cost, qty.IntPart())
	if expected.Sub(pnl).Abs().LessThanOrEqual(pnlTolerance) {
		return tracelog.Anomaly{}, false
	}
	return tracelog.Anomaly{
		Kind:   tracelog.AnomalyPnLMismatch,
		Stage:  pipeline.StageValuation,
		Detail: fmt.Sprintf("logged pnl_value %s, formula gives %s", pnl, expected),
	}, true
}

func decimalExtra(rec tracelog.Record, key string) (decimal.Decimal, bool) {
	switch v := rec.Extra[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case decimal.Decimal:
		return v, true
	default:
		return decimal.Decimal{}, false
	}
}
