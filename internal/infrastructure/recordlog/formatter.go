package recordlog

import (
	"fmt"

	"tradepipeline/internal/domain/entity/tracelog"

	"github.com/sirupsen/logrus"
)

// TraceIDField is the logrus field lifted into the record's trace_id.
const TraceIDField = "trace_id"

// Formatter renders logrus entries in the record schema, one JSON object per
// line. Every field other than trace_id lands in extra.
type Formatter struct {
	Service string
}

var _ logrus.Formatter = (*Formatter)(nil)

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	line, err := f.Record(entry).AppendLine(nil)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return line, nil
}

// Record converts an entry to the record it represents.
func (f *Formatter) Record(entry *logrus.Entry) tracelog.Record {
	rec := tracelog.Record{
		Timestamp: entry.Time.UTC(),
		Level:     levelOf(entry.Level),
		Service:   f.Service,
		Message:   entry.Message,
		Extra:     make(map[string]any, len(entry.Data)),
	}
	for key, value := range entry.Data {
		if key == TraceIDField {
			rec.TraceID = fmt.Sprint(value)
			continue
		}
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		rec.Extra[key] = value
	}
	return rec
}

func levelOf(level logrus.Level) tracelog.Level {
	if level <= logrus.ErrorLevel {
		return tracelog.LevelError
	}
	return tracelog.LevelInfo
}
