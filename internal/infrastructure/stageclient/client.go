package stageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"tradepipeline/internal/domain/entity/pipeline"
)

const (
	pricesPath = "/prices"
	pnlPath    = "/pnl"
	riskPath   = "/risk"
)

// Client posts to one downstream stage. The caller's context supplies values
// only: its cancellation is not forwarded, and the client timeout is the only
// bound on a call.
type Client struct {
	stage   pipeline.Stage
	baseURL string
	http    *http.Client
}

func newClient(stage pipeline.Stage, baseURL string, timeout time.Duration) *Client {
	return &Client{
		stage:   stage,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type PricingClient struct{ *Client }

func NewPricingClient(baseURL string, timeout time.Duration) *PricingClient {
	return &PricingClient{newClient(pipeline.StagePricing, baseURL, timeout)}
}

func (c *PricingClient) ComputePrice(ctx context.Context, traceID string, req pipeline.PricingRequest) (*pipeline.PricingResponse, error) {
	var resp pipeline.PricingResponse
	status, err := c.post(ctx, pricesPath, traceID, req, &resp)
	if err != nil {
		return nil, err
	}
	if resp.TradeID == "" {
		return nil, c.malformed(status, "response has no trade_id")
	}
	return &resp, nil
}

type ValuationClient struct{ *Client }

func NewValuationClient(baseURL string, timeout time.Duration) *ValuationClient {
	return &ValuationClient{newClient(pipeline.StageValuation, baseURL, timeout)}
}

func (c *ValuationClient) ComputePnL(ctx context.Context, traceID string, req pipeline.ValuationRequest) (*pipeline.ValuationResponse, error) {
	var resp pipeline.ValuationResponse
	status, err := c.post(ctx, pnlPath, traceID, req, &resp)
	if err != nil {
		return nil, err
	}
	if resp.TradeID == "" {
		return nil, c.malformed(status, "response has no trade_id")
	}
	return &resp, nil
}

type RiskClient struct{ *Client }

func NewRiskClient(baseURL string, timeout time.Duration) *RiskClient {
	return &RiskClient{newClient(pipeline.StageRisk, baseURL, timeout)}
}

func (c *RiskClient) AssessRisk(ctx context.Context, traceID string, req pipeline.RiskRequest) (*pipeline.RiskResult, error) {
	var resp pipeline.RiskResult
	status, err := c.post(ctx, riskPath, traceID, req, &resp)
	if err != nil {
		return nil, err
	}
	if resp.TradeID == "" || resp.RiskLevel == "" {
		return nil, c.malformed(status, "response has no risk_level")
	}
	return &resp, nil
}

// errorBody is what a stage answers with when it fails.
type errorBody struct {
	Error   string            `json:"error"`
	Failure *pipeline.Failure `json:"failure"`
}

func (c *Client) post(ctx context.Context, path, traceID string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode %s request: %w", c.stage, err)
	}
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", c.stage, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(pipeline.TraceHeader, traceID)

	res, err := c.http.Do(req)
	if err != nil {
		kind := pipeline.KindConnectionFailure
		if isTimeout(err) {
			kind = pipeline.KindTimeout
		}
		return 0, &pipeline.HopError{Stage: c.stage, Kind: kind, Detail: err.Error(), Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, &pipeline.HopError{Stage: c.stage, Kind: pipeline.KindConnectionFailure, Status: res.StatusCode, Detail: err.Error(), Err: err}
	}
	if res.StatusCode != http.StatusOK {
		return res.StatusCode, c.failure(res.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return res.StatusCode, c.malformed(res.StatusCode, err.Error())
	}
	return res.StatusCode, nil
}

func (c *Client) failure(status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)
	hopErr := &pipeline.HopError{
		Stage:  c.stage,
		Kind:   kindForStatus(status),
		Status: status,
		Detail: body.Error,
	}
	if body.Failure != nil {
		if body.Failure.Stage != "" {
			hopErr.Stage = body.Failure.Stage
		}
		if body.Failure.Kind != "" {
			hopErr.Kind = body.Failure.Kind
		}
		if body.Failure.Detail != "" {
			hopErr.Detail = body.Failure.Detail
		}
	}
	if hopErr.Detail == "" {
		hopErr.Detail = http.StatusText(status)
	}
	return hopErr
}

func (c *Client) malformed(status int, detail string) error {
	return &pipeline.HopError{Stage: c.stage, Kind: pipeline.KindMalformed, Status: status, Detail: detail}
}

func kindForStatus(status int) pipeline.FailureKind {
	switch status {
	case http.StatusGatewayTimeout:
		return pipeline.KindTimeout
	case http.StatusBadRequest:
		return pipeline.KindValidation
	case http.StatusUnprocessableEntity:
		return pipeline.KindMalformed
	case http.StatusInternalServerError:
		return pipeline.KindInconsistency
	default:
		return pipeline.KindConnectionFailure
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
