package pipeline

import "github.com/shopspring/decimal"

// RiskLevel is the category assigned by the terminal stage.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

func (r RiskLevel) String() string {
	return string(r)
}

// PricingRequest is the reduced payload Intake forwards.
type PricingRequest struct {
	TradeID  string `json:"trade_id"`
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

type PricingResult struct {
	TradeID       string          `json:"trade_id"`
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	ComputedPrice decimal.Decimal `json:"computed_price"`
}

type ValuationRequest struct {
	TradeID       string          `json:"trade_id"`
	Symbol        string          `json:"symbol"`
	ComputedPrice decimal.Decimal `json:"computed_price"`
	Quantity      int64           `json:"quantity"`
}

type ValuationResult struct {
	TradeID  string          `json:"trade_id"`
	PnLValue decimal.Decimal `json:"pnl_value"`
	Quantity int64           `json:"quantity"`
}

type RiskRequest struct {
	TradeID  string          `json:"trade_id"`
	PnLValue decimal.Decimal `json:"pnl_value"`
	Quantity int64           `json:"quantity"`
}

type RiskResult struct {
	TradeID   string    `json:"trade_id"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// Chain holds whatever the hops below a stage produced. Failure is set when
// the chain stopped before reaching Risk.
type Chain struct {
	Pricing   *PricingResult   `json:"pricing,omitempty"`
	Valuation *ValuationResult `json:"valuation,omitempty"`
	Risk      *RiskResult      `json:"risk,omitempty"`
	Failure   *Failure         `json:"failure,omitempty"`
}

func (c Chain) Complete() bool {
	return c.Failure == nil && c.Risk != nil
}

// PricingResponse is Pricing's own result plus the rest of the chain.
type PricingResponse struct {
	PricingResult
	Downstream Chain `json:"chain"`
}

// ValuationResponse is Valuation's own result plus the Risk outcome.
type ValuationResponse struct {
	ValuationResult
	Downstream Chain `json:"chain"`
}

// IntakeResponse echoes the stored trade together with the chain outcome.
type IntakeResponse struct {
	Message  string `json:"message"`
	TraceID  string `json:"trace_id"`
	Trade    Trade  `json:"trade"`
	Complete bool   `json:"complete"`
	Chain    Chain  `json:"chain"`
}

// ChainFromPricing folds a Pricing answer into the chain seen by Intake.
func ChainFromPricing(resp *PricingResponse, err error) Chain {
	if err != nil {
		failure := FailureOf(StagePricing, err)
		return Chain{Failure: &failure}
	}
	result := resp.PricingResult
	return Chain{
		Pricing:   &result,
		Valuation: resp.Downstream.Valuation,
		Risk:      resp.Downstream.Risk,
		Failure:   resp.Downstream.Failure,
	}
}

// ChainFromValuation folds a Valuation answer into the chain seen by Pricing.
func ChainFromValuation(resp *ValuationResponse, err error) Chain {
	if err != nil {
		failure := FailureOf(StageValuation, err)
		return Chain{Failure: &failure}
	}
	result := resp.ValuationResult
	return Chain{
		Valuation: &result,
		Risk:      resp.Downstream.Risk,
		Failure:   resp.Downstream.Failure,
	}
}

// ChainFromRisk folds a Risk answer into the chain seen by Valuation.
func ChainFromRisk(resp *RiskResult, err error) Chain {
	if err != nil {
		failure := FailureOf(StageRisk, err)
		return Chain{Failure: &failure}
	}
	result := *resp
	return Chain{Risk: &result}
}
