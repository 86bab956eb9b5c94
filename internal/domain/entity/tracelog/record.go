package tracelog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout renders record timestamps as ISO-8601 UTC.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Level is the severity of a record. Only INFO and ERROR are emitted.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Keys written to Extra by the stages.
const (
	ExtraError         = "error"
	ExtraDetail        = "detail"
	ExtraFailedStage   = "failed_stage"
	ExtraEndpoint      = "endpoint"
	ExtraMethod        = "method"
	ExtraTradeID       = "trade_id"
	ExtraSymbol        = "symbol"
	ExtraQuantity      = "quantity"
	ExtraPrice         = "price"
	ExtraTradeType     = "trade_type"
	ExtraComputedPrice = "computed_price"
	ExtraCost          = "cost"
	ExtraPnLValue      = "pnl_value"
	ExtraRiskLevel     = "risk_level"
	ExtraStatusCode    = "status_code"
	ExtraDelayMS       = "delay_ms"
)

// Record is one line of a stage log. A stage writes exactly one per handled
// request and never touches it again.
type Record struct {
	Timestamp time.Time
	Level     Level
	Service   string
	TraceID   string
	Message   string
	Extra     map[string]any
}

type wireRecord struct {
	Timestamp string         `json:"timestamp"`
	Level     Level          `json:"level"`
	Service   string         `json:"service"`
	TraceID   string         `json:"trace_id"`
	Message   string         `json:"message"`
	Extra     map[string]any `json:"extra"`
}

// MarshalJSON renders the fixed schema consumed by the analysis tooling.
// Field order is part of the contract.
func (r Record) MarshalJSON() ([]byte, error) {
	extra := r.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(wireRecord{
		Timestamp: r.Timestamp.UTC().Format(TimestampLayout),
		Level:     r.Level,
		Service:   r.Service,
		TraceID:   r.TraceID,
		Message:   r.Message,
		Extra:     extra,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// AppendLine appends the record and a trailing newline to dst. Unlike
// json.Marshal it leaves characters such as '&' unescaped.
func (r Record) AppendLine(dst []byte) ([]byte, error) {
	line, err := r.MarshalJSON()
	if err != nil {
		return dst, err
	}
	dst = append(dst, line...)
	return append(dst, '\n'), nil
}

// UnmarshalJSON keeps numeric extras as json.Number so decimals survive.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var wire wireRecord
	if err := dec.Decode(&wire); err != nil {
		return err
	}
	ts, err := parseTimestamp(wire.Timestamp)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", wire.Timestamp, err)
	}
	*r = Record{
		Timestamp: ts,
		Level:     wire.Level,
		Service:   wire.Service,
		TraceID:   wire.TraceID,
		Message:   wire.Message,
		Extra:     wire.Extra,
	}
	return nil
}

// ExtraString returns the extra value under key rendered as a string.
func (r Record) ExtraString(key string) string {
	value, ok := r.Extra[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// legacyLayouts covers timestamps written by earlier producers of the same
// schema, which logged local time without a zone.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05,000",
}

func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range legacyLayouts {
		if legacy, legacyErr := time.Parse(layout, value); legacyErr == nil {
			return legacy.UTC(), nil
		}
	}
	return time.Time{}, err
}
