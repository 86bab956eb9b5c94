package stagelog

import (
	"encoding/json"
	"testing"
	"time"

	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"

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

var clock = func() time.Time {
	return time.Date(2024, 1, 15, 11, 30, 0, 0, time.FixedZone("CET", 3600))
}

func TestRecorderInfo(t *testing.T) {
	sink := &captureEmitter{}
	rec := NewRecorder(pipeline.StageRisk, sink).WithClock(clock)

	at := rec.Now()
	assert.Equal(t, time.UTC, at.Location())
	rec.Info(at, "trace-1", "Risk assessed successfully", Fields{tracelog.ExtraRiskLevel: "LOW"})

	require.Len(t, sink.records, 1)
	got := sink.records[0]
	assert.Equal(t, tracelog.LevelInfo, got.Level)
	assert.Equal(t, "risk_service", got.Service)
	assert.Equal(t, "trace-1", got.TraceID)
	assert.Equal(t, at, got.Timestamp)
	assert.Equal(t, "LOW", got.Extra[tracelog.ExtraRiskLevel])
}

func TestRecorderErrorSetsKind(t *testing.T) {
	sink := &captureEmitter{}
	rec := NewRecorder(pipeline.StagePricing, sink)

	rec.Error(rec.Now(), "trace-2", "Price computation timed out", pipeline.KindTimeout, nil)

	require.Len(t, sink.records, 1)
	assert.Equal(t, tracelog.LevelError, sink.records[0].Level)
	assert.Equal(t, "timeout", sink.records[0].Extra[tracelog.ExtraError])
}

func TestRecorderReject(t *testing.T) {
	sink := &captureEmitter{}
	NewRecorder(pipeline.StageValuation, sink).Reject("trace-3", "/pnl", "POST", &pipeline.ValidationError{Field: "trade_id", Reason: "required"})

	require.Len(t, sink.records, 1)
	got := sink.records[0]
	assert.Equal(t, "Invalid request payload", got.Message)
	assert.Equal(t, "validation", got.Extra[tracelog.ExtraError])
	assert.Equal(t, "/pnl", got.Extra[tracelog.ExtraEndpoint])
	assert.Equal(t, "invalid trade_id: required", got.Extra[tracelog.ExtraDetail])
}

func TestRecorderHopFailure(t *testing.T) {
	tests := []struct {
		kind    pipeline.FailureKind
		message string
	}{
		{pipeline.KindConnectionFailure, "Error calling valuation_service"},
		{pipeline.KindTimeout, "Call to valuation_service timed out"},
	}
	for _, tt := range tests {
		sink := &captureEmitter{}
		rec := NewRecorder(pipeline.StagePricing, sink)
		rec.HopFailure(rec.Now(), "trace-4", &pipeline.HopError{Stage: pipeline.StageValuation, Kind: tt.kind, Detail: "dial tcp"}, Fields{tracelog.ExtraTradeID: "T-1"})

		require.Len(t, sink.records, 1)
		got := sink.records[0]
		assert.Equal(t, tt.message, got.Message)
		assert.Equal(t, "pricing_service", got.Service)
		assert.Equal(t, "valuation", got.Extra[tracelog.ExtraFailedStage])
		assert.Equal(t, tt.kind.String(), got.Extra[tracelog.ExtraError])
		assert.Equal(t, "dial tcp", got.Extra[tracelog.ExtraDetail])
		assert.Equal(t, "T-1", got.Extra[tracelog.ExtraTradeID])
	}
}

func TestDecimal(t *testing.T) {
	assert.Equal(t, json.Number("-200"), Decimal(decimal.RequireFromString("-200.00")))
	assert.Equal(t, json.Number("148.5"), Decimal(decimal.RequireFromString("148.5")))
}
