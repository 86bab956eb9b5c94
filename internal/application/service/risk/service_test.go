package risk

import (
	"context"
	"testing"

	"tradepipeline/internal/application/service/stagelog"
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

func TestClassify(t *testing.T) {
	tests := []struct {
		pnl  string
		qty  int64
		want pipeline.RiskLevel
	}{
		{"-100", 10, pipeline.RiskMedium},
		{"-100.01", 10, pipeline.RiskMedium},
		{"-99.99", 10, pipeline.RiskLow},
		{"-50", 60, pipeline.RiskHigh},
		{"-50", 50, pipeline.RiskLow},
		{"-200", 100, pipeline.RiskHigh},
		{"-500", 51, pipeline.RiskHigh},
		{"-500", 5, pipeline.RiskMedium},
		{"0", 1000, pipeline.RiskLow},
		{"85", 10, pipeline.RiskLow},
	}
	for _, tt := range tests {
		got := Classify(decimal.RequireFromString(tt.pnl), tt.qty)
		assert.Equal(t, tt.want, got, "pnl=%s qty=%d", tt.pnl, tt.qty)
	}
}

func TestAssessRiskRecords(t *testing.T) {
	sink := &captureEmitter{}
	svc := NewService(stagelog.NewRecorder(pipeline.StageRisk, sink))

	res := svc.AssessRisk(context.Background(), "trace-1", pipeline.RiskRequest{TradeID: "T-1", PnLValue: decimal.NewFromInt(85), Quantity: 10})
	assert.Equal(t, &pipeline.RiskResult{TradeID: "T-1", RiskLevel: pipeline.RiskLow}, res)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, tracelog.LevelInfo, rec.Level)
	assert.Equal(t, "risk_service", rec.Service)
	assert.Equal(t, "LOW", rec.Extra[tracelog.ExtraRiskLevel])
}
