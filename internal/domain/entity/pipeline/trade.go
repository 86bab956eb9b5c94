package pipeline

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices and P&L travel between stages as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// TradeType is the direction stated by the caller.
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

func (t TradeType) String() string {
	return string(t)
}

func (t TradeType) IsValid() bool {
	switch t {
	case TradeTypeBuy, TradeTypeSell:
		return true
	default:
		return false
	}
}

// Trade is the request accepted by Intake. It is never modified once stored.
type Trade struct {
	TradeID   string          `json:"trade_id"`
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	TradeType TradeType       `json:"trade_type"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Validate checks the fields Intake refuses to forward.
func (t Trade) Validate() error {
	switch {
	case strings.TrimSpace(t.TradeID) == "":
		return &ValidationError{Field: "trade_id", Reason: "must not be empty"}
	case strings.TrimSpace(t.Symbol) == "":
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	case t.Quantity <= 0:
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	case !t.Price.IsPositive():
		return &ValidationError{Field: "price", Reason: "must be greater than zero"}
	case !t.TradeType.IsValid():
		return &ValidationError{Field: "trade_type", Reason: "must be BUY or SELL"}
	}
	return nil
}
