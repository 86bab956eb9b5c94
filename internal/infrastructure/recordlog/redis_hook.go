package recordlog

import (
	"bytes"
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// KeyPrefix namespaces the Redis lists holding shipped records.
const KeyPrefix = "pipeline:records:"

// pushTimeout bounds the time a record write waits on Redis.
const pushTimeout = 500 * time.Millisecond

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisHook appends every record line to a per-service Redis list for
// external ingestion.
type RedisHook struct {
	client    listPusher
	key       string
	formatter *Formatter
	timeout   time.Duration
}

var _ logrus.Hook = (*RedisHook)(nil)

func NewRedisHook(client listPusher, service string) *RedisHook {
	return &RedisHook{
		client:    client,
		key:       KeyPrefix + service,
		formatter: &Formatter{Service: service},
		timeout:   pushTimeout,
	}
}

func (h *RedisHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *RedisHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.client.RPush(ctx, h.key, string(bytes.TrimRight(line, "\n"))).Err()
}
