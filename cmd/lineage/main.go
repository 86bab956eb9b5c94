package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"sort"

	"tradepipeline/internal/application/service/lineage"
	"tradepipeline/internal/config"
	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/infrastructure/records"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	traceID := flag.String("trace", "", "only report this trace id")
	tradeID := flag.String("trade", "", "only report traces of this trade id")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatalf("failed to load config: %v", err)
		}
		paths, err = filepath.Glob(filepath.Join(cfg.Log.Dir, "*.log"))
		if err != nil {
			logger.Fatalf("list log files: %v", err)
		}
	}
	if len(paths) == 0 {
		logger.Fatal("no record files to read")
	}

	src, err := records.NewFileSource(paths...)
	if err != nil {
		logger.Fatalf("read records: %v", err)
	}

	groups := lineage.Group(src.Records())
	traceIDs := selectTraces(groups, *traceID, *tradeID)

	enc := json.NewEncoder(os.Stdout)
	for _, id := range traceIDs {
		status := lineage.Derive(id, groups[id])
		if err := enc.Encode(status); err != nil {
			logger.Fatalf("write status: %v", err)
		}
	}
	logger.WithFields(logrus.Fields{
		"files":  len(paths),
		"traces": len(traceIDs),
	}).Info("lineage derived")
}

// selectTraces orders traces by their first record so output follows arrival.
func selectTraces(groups map[string][]tracelog.Record, traceID, tradeID string) []string {
	ids := make([]string, 0, len(groups))
	for id, recs := range groups {
		if traceID != "" && id != traceID {
			continue
		}
		if tradeID != "" && !hasTrade(recs, tradeID) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := groups[ids[i]][0].Timestamp, groups[ids[j]][0].Timestamp
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.Before(b)
	})
	return ids
}

func hasTrade(recs []tracelog.Record, tradeID string) bool {
	for _, rec := range recs {
		if rec.ExtraString(tracelog.ExtraTradeID) == tradeID {
			return true
		}
	}
	return false
}
