package recordlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Logger is the record sink of one stage. Writes and hooks run synchronously
// on the calling goroutine.
type Logger struct {
	logger *logrus.Logger
}

var _ interfaces.RecordEmitter = (*Logger)(nil)

func New(service string, out io.Writer, hooks ...logrus.Hook) *Logger {
	logger := logrus.New()
	logger.SetFormatter(&Formatter{Service: service})
	logger.SetOutput(out)
	logger.SetLevel(logrus.InfoLevel)
	for _, hook := range hooks {
		logger.AddHook(hook)
	}
	return &Logger{logger: logger}
}

func (l *Logger) Emit(rec tracelog.Record) {
	fields := make(logrus.Fields, len(rec.Extra)+1)
	for key, value := range rec.Extra {
		fields[key] = value
	}
	fields[TraceIDField] = rec.TraceID

	entry := l.logger.WithFields(fields)
	if !rec.Timestamp.IsZero() {
		entry = entry.WithTime(rec.Timestamp)
	}
	level := logrus.InfoLevel
	if rec.Level == tracelog.LevelError {
		level = logrus.ErrorLevel
	}
	entry.Log(level, rec.Message)
}

// OpenFile opens dir/<service>.log for appending, creating it if needed.
func OpenFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, service+".log")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open record log %s: %w", path, err)
	}
	return file, nil
}
