package tracelog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMarshalIsBitExact(t *testing.T) {
	rec := Record{
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 123456000, time.UTC),
		Level:     LevelInfo,
		Service:   "valuation_service",
		TraceID:   "4f0c6b1e-1c9a-4bd4-9d0e-3c1f5d9a2b7e",
		Message:   "P&L computed successfully",
		Extra: map[string]any{
			ExtraTradeID:  "T-1",
			ExtraPnLValue: json.Number("85.0"),
			ExtraQuantity: 10,
		},
	}

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t,
		`{"timestamp":"2024-01-15T10:30:00.123456Z","level":"INFO","service":"valuation_service",`+
			`"trace_id":"4f0c6b1e-1c9a-4bd4-9d0e-3c1f5d9a2b7e","message":"P&L computed successfully",`+
			`"extra":{"pnl_value":85.0,"quantity":10,"trade_id":"T-1"}}`,
		string(out))

	line, err := rec.AppendLine(nil)
	require.NoError(t, err)
	assert.Equal(t, string(out)+"\n", string(line))
}

func TestRecordMarshalNilExtra(t *testing.T) {
	rec := Record{
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600)),
		Level:     LevelError,
		Service:   "pricing_service",
		TraceID:   "t-1",
		Message:   "Price computation timed out",
	}
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"timestamp":"2024-01-15T09:30:00.000000Z"`)
	assert.Contains(t, string(out), `"extra":{}`)
}

func TestRecordUnmarshalKeepsNumbers(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"timestamp":"2024-01-15T10:30:00.123456Z","level":"ERROR","service":"pricing_service","trace_id":"t-9","message":"x","extra":{"computed_price":148.50,"error":"timeout"}}`), &rec)
	require.NoError(t, err)

	assert.Equal(t, LevelError, rec.Level)
	assert.Equal(t, "t-9", rec.TraceID)
	assert.Equal(t, json.Number("148.50"), rec.Extra[ExtraComputedPrice])
	assert.Equal(t, "timeout", rec.ExtraString(ExtraError))
	assert.Equal(t, "148.50", rec.ExtraString(ExtraComputedPrice))
	assert.Equal(t, "", rec.ExtraString(ExtraRiskLevel))
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 123456000, time.UTC), rec.Timestamp)
}

func TestRecordUnmarshalLegacyTimestamps(t *testing.T) {
	for _, ts := range []string{"2024-01-15T10:30:00.5", "2024-01-15 10:30:00,500"} {
		var rec Record
		err := json.Unmarshal([]byte(`{"timestamp":"`+ts+`","level":"INFO","service":"risk_service","trace_id":"t","message":"m","extra":{}}`), &rec)
		require.NoError(t, err, ts)
		assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 500000000, time.UTC), rec.Timestamp, ts)
	}

	var rec Record
	err := json.Unmarshal([]byte(`{"timestamp":"yesterday","level":"INFO"}`), &rec)
	assert.Error(t, err)
}

func TestChainStates(t *testing.T) {
	assert.Equal(t, ChainState("FAILED_AT_VALUATION"), FailedAt("valuation"))
	assert.True(t, FailedAt("pricing").Failed())
	assert.False(t, StateAssessed.Failed())
	assert.Equal(t, StatePending, StateAfter("intake"))
	assert.Equal(t, StateAssessed, StateAfter("risk"))

	assert.True(t, ChainStatus{State: StateAssessed}.Terminal())
	assert.True(t, ChainStatus{State: FailedAt("pricing")}.Terminal())
	assert.False(t, ChainStatus{State: StatePending}.Terminal())
	assert.False(t, ChainStatus{State: StateValued}.Terminal())
}
