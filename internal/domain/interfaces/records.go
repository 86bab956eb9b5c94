package interfaces

import (
	"context"

	"tradepipeline/internal/domain/entity/tracelog"
)

// RecordSource returns every record carrying a trace id.
type RecordSource interface {
	GetRecordsByTrace(ctx context.Context, traceID string) ([]tracelog.Record, error)
}

// TraceIndex finds the trace ids that touched a trade.
type TraceIndex interface {
	GetTraceIDsByTrade(ctx context.Context, tradeID string) ([]string, error)
}

type RecordRepository interface {
	RecordSource
	TraceIndex
	AddRecord(ctx context.Context, record *tracelog.Record) error
	AddRecords(ctx context.Context, records []tracelog.Record) error
	Close()
}
