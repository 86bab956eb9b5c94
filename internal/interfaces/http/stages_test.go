package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postHop(t *testing.T, url, traceID, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(pipeline.TraceHeader, traceID)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&decoded))
	return res.StatusCode, decoded
}

func TestHopsRejectMissingFields(t *testing.T) {
	p := newTestPipeline(t, faults{}, "")

	tests := []struct {
		name    string
		path    func() string
		service string
		stage   pipeline.Stage
		body    string
		missing string
	}{
		{
			name:    "pricing without quantity",
			path:    func() string { return p.pricing.URL + "/prices" },
			service: "pricing_service",
			stage:   pipeline.StagePricing,
			body:    `{"trade_id":"T-1","symbol":"AAPL"}`,
			missing: "quantity",
		},
		{
			name:    "valuation without computed price",
			path:    func() string { return p.valuation.URL + "/pnl" },
			service: "valuation_service",
			stage:   pipeline.StageValuation,
			body:    `{"trade_id":"T-1","symbol":"AAPL","quantity":100}`,
			missing: "computed_price",
		},
		{
			name:    "valuation without quantity",
			path:    func() string { return p.valuation.URL + "/pnl" },
			service: "valuation_service",
			stage:   pipeline.StageValuation,
			body:    `{"trade_id":"T-1","symbol":"AAPL","computed_price":150}`,
			missing: "quantity",
		},
		{
			name:    "valuation without symbol",
			path:    func() string { return p.valuation.URL + "/pnl" },
			service: "valuation_service",
			stage:   pipeline.StageValuation,
			body:    `{"trade_id":"T-1","computed_price":150,"quantity":100}`,
			missing: "symbol",
		},
		{
			name:    "risk without pnl",
			path:    func() string { return p.risk.URL + "/risk" },
			service: "risk_service",
			stage:   pipeline.StageRisk,
			body:    `{"trade_id":"T-1","quantity":10}`,
			missing: "pnl_value",
		},
		{
			name:    "risk without quantity",
			path:    func() string { return p.risk.URL + "/risk" },
			service: "risk_service",
			stage:   pipeline.StageRisk,
			body:    `{"trade_id":"T-1","pnl_value":-500}`,
			missing: "quantity",
		},
		{
			name:    "risk without trade id",
			path:    func() string { return p.risk.URL + "/risk" },
			service: "risk_service",
			stage:   pipeline.StageRisk,
			body:    `{"pnl_value":-500,"quantity":10}`,
			missing: "trade_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traceID := "trace-" + strings.ReplaceAll(tt.name, " ", "-")
			status, body := postHop(t, tt.path(), traceID, tt.body)

			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, body["error"], tt.missing)
			failure, ok := body["failure"].(map[string]any)
			require.True(t, ok, "failure object in %v", body)
			assert.Equal(t, string(tt.stage), failure["stage"])
			assert.Equal(t, string(pipeline.KindValidation), failure["kind"])
			assert.NotContains(t, body, "risk_level")
			assert.NotContains(t, body, "pnl_value")

			recs := p.sink.byTrace(traceID)
			require.Len(t, recs, 1, "only the rejecting stage logs")
			assert.Equal(t, tt.service, recs[0].Service)
			assert.Equal(t, tracelog.LevelError, recs[0].Level)
			assert.Equal(t, "validation", recs[0].Extra[tracelog.ExtraError])
			assert.Contains(t, recs[0].ExtraString(tracelog.ExtraDetail), tt.missing)
		})
	}
}

func TestHopsAcceptExplicitZeroValues(t *testing.T) {
	p := newTestPipeline(t, faults{}, "")

	status, body := postHop(t, p.risk.URL+"/risk", "trace-zero", `{"trade_id":"T-1","pnl_value":0,"quantity":0}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(pipeline.RiskLow), body["risk_level"])

	recs := p.sink.byTrace("trace-zero")
	require.Len(t, recs, 1)
	assert.Equal(t, tracelog.LevelInfo, recs[0].Level)
}
