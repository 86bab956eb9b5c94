package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository keeps collected records in Postgres for lineage queries.
type Repository struct {
	pool *pgxpool.Pool
}

var _ interfaces.RecordRepository = (*Repository)(nil)

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

const schema = `
	CREATE TABLE IF NOT EXISTS log_records (
		record_id   uuid PRIMARY KEY,
		trace_id    text NOT NULL,
		service     text NOT NULL,
		level       text NOT NULL,
		message     text NOT NULL,
		extra       jsonb NOT NULL DEFAULT '{}'::jsonb,
		logged_at   timestamptz NOT NULL,
		received_at timestamptz NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS log_records_trace_idx ON log_records (trace_id, logged_at);
	CREATE INDEX IF NOT EXISTS log_records_trade_idx ON log_records ((extra->>'trade_id'));`

// EnsureSchema creates the records table when it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create log_records schema: %w", err)
	}
	return nil
}

const insertRecordQuery = `
	INSERT INTO log_records (record_id, trace_id, service, level, message, extra, logged_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`

func (r *Repository) AddRecord(ctx context.Context, record *tracelog.Record) error {
	if record == nil {
		return errors.New("nil record")
	}
	extra, err := marshalExtra(record.Extra)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, insertRecordQuery,
		uuid.New(),
		record.TraceID,
		record.Service,
		string(record.Level),
		record.Message,
		extra,
		record.Timestamp,
	)
	return err
}

func (r *Repository) AddRecords(ctx context.Context, records []tracelog.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(records))
	for i := range records {
		extra, err := marshalExtra(records[i].Extra)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			uuid.New(),
			records[i].TraceID,
			records[i].Service,
			string(records[i].Level),
			records[i].Message,
			extra,
			records[i].Timestamp,
		})
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"log_records"},
		[]string{"record_id", "trace_id", "service", "level", "message", "extra", "logged_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (r *Repository) GetRecordsByTrace(ctx context.Context, traceID string) ([]tracelog.Record, error) {
	const query = `
		SELECT trace_id, service, level, message, extra, logged_at
		FROM log_records
		WHERE trace_id=$1
		ORDER BY logged_at ASC, received_at ASC`
	rows, err := r.pool.Query(ctx, query, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []tracelog.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *Repository) GetTraceIDsByTrade(ctx context.Context, tradeID string) ([]string, error) {
	const query = `
		SELECT trace_id
		FROM log_records
		WHERE extra->>'trade_id' = $1
		GROUP BY trace_id
		ORDER BY min(logged_at) ASC`
	rows, err := r.pool.Query(ctx, query, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traceIDs []string
	for rows.Next() {
		var traceID string
		if err := rows.Scan(&traceID); err != nil {
			return nil, err
		}
		traceIDs = append(traceIDs, traceID)
	}
	return traceIDs, rows.Err()
}

func scanRecord(row pgx.Row) (tracelog.Record, error) {
	var (
		level     string
		extraJSON []byte
		loggedAt  time.Time
	)
	record := tracelog.Record{}
	err := row.Scan(
		&record.TraceID,
		&record.Service,
		&level,
		&record.Message,
		&extraJSON,
		&loggedAt,
	)
	if err != nil {
		return tracelog.Record{}, err
	}
	extra, err := unmarshalExtra(extraJSON)
	if err != nil {
		return tracelog.Record{}, err
	}
	record.Level = tracelog.Level(level)
	record.Timestamp = loggedAt.UTC()
	record.Extra = extra
	return record, nil
}

// Helpers

func marshalExtra(extra map[string]any) ([]byte, error) {
	if extra == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(extra)
}

func unmarshalExtra(data []byte) (map[string]any, error) {
	extra := map[string]any{}
	if len(data) == 0 {
		return extra, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&extra); err != nil {
		return nil, err
	}
	return extra, nil
}
