package records

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/domain/interfaces"
)

const maxLineBytes = 1 << 20

// Read decodes one record per non-blank line.
func Read(r io.Reader) ([]tracelog.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []tracelog.Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record tracelog.Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ReadFile(path string) ([]tracelog.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	out, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// FileSource serves records from stage log files loaded once.
type FileSource struct {
	records []tracelog.Record
}

var (
	_ interfaces.RecordSource = (*FileSource)(nil)
	_ interfaces.TraceIndex   = (*FileSource)(nil)
)

func NewFileSource(paths ...string) (*FileSource, error) {
	src := &FileSource{}
	for _, path := range paths {
		recs, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		src.records = append(src.records, recs...)
	}
	sort.SliceStable(src.records, func(i, j int) bool {
		return src.records[i].Timestamp.Before(src.records[j].Timestamp)
	})
	return src, nil
}

func (s *FileSource) Records() []tracelog.Record {
	return s.records
}

func (s *FileSource) GetRecordsByTrace(_ context.Context, traceID string) ([]tracelog.Record, error) {
	var out []tracelog.Record
	for _, rec := range s.records {
		if rec.TraceID == traceID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *FileSource) GetTraceIDsByTrade(_ context.Context, tradeID string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range s.records {
		if rec.ExtraString(tracelog.ExtraTradeID) != tradeID {
			continue
		}
		if _, ok := seen[rec.TraceID]; ok {
			continue
		}
		seen[rec.TraceID] = struct{}{}
		out = append(out, rec.TraceID)
	}
	return out, nil
}
