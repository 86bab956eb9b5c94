package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tradepipeline/internal/application/service/intake"
	"tradepipeline/internal/application/service/lineage"
	"tradepipeline/internal/application/service/pricing"
	"tradepipeline/internal/application/service/risk"
	"tradepipeline/internal/application/service/valuation"
	"tradepipeline/internal/domain/entity/pipeline"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
	traceIDKey  = "trace_id"

	// cacheableKey marks a response that may be served from the cache.
	cacheableKey = "cacheable"
)

type responseCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Handler serves the routes of one stage, or of the collector.
type Handler struct {
	router  *gin.Engine
	service string
	metrics *Metrics

	intake    *intake.Service
	pricing   *pricing.Service
	valuation *valuation.Service
	risk      *risk.Service

	lineage  *lineage.Service
	cache    responseCache
	cacheTTL time.Duration
}

func newHandler(service string, metrics *Metrics) *Handler {
	if metrics == nil {
		metrics = NewMetrics()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(traceMiddleware())
	router.Use(metrics.middleware(service))

	h := &Handler{
		router:  router,
		service: service,
		metrics: metrics,
	}
	router.GET(healthPath, h.health)
	router.GET(metricsPath, gin.WrapH(metrics.Handler()))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// health is not a pipeline request and writes no record.
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": h.service})
}

// traceMiddleware passes an inbound trace id through unchanged and mints one
// when the header is absent.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(pipeline.TraceHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDKey, traceID)
		c.Header(pipeline.TraceHeader, traceID)
		c.Next()
	}
}

func traceIDFrom(c *gin.Context) string {
	return c.GetString(traceIDKey)
}

type failureCarrier interface {
	Failure() pipeline.Failure
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// writeFailure answers with the status mapped from the failure kind and the
// failure itself, which the calling stage decodes.
func (h *Handler) writeFailure(c *gin.Context, tradeID string, err error) {
	var carrier failureCarrier
	if !errors.As(err, &carrier) {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	failure := carrier.Failure()
	h.metrics.observeFailure(h.service, failure)

	body := gin.H{"error": err.Error(), "failure": failure}
	if tradeID != "" {
		body["trade_id"] = tradeID
	}
	c.JSON(statusForKind(failure.Kind), body)
}

// reject answers a request refused before the stage did any work.
func (h *Handler) reject(c *gin.Context, stage pipeline.Stage, err error) {
	h.writeFailure(c, "", &pipeline.StageError{
		Stage:  stage,
		Kind:   pipeline.KindValidation,
		Detail: err.Error(),
	})
}

func statusForKind(kind pipeline.FailureKind) int {
	switch kind {
	case pipeline.KindValidation:
		return http.StatusBadRequest
	case pipeline.KindNotFound:
		return http.StatusNotFound
	case pipeline.KindTimeout:
		return http.StatusGatewayTimeout
	case pipeline.KindMalformed:
		return http.StatusUnprocessableEntity
	case pipeline.KindInconsistency:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// cacheMiddleware caches GET responses in Redis. Only responses the handler
// marked cacheable are stored.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if c.GetBool(cacheableKey) && recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	path := c.FullPath()
	if id := c.Param("trace_id"); id != "" {
		path = strings.Replace(path, ":trace_id", id, 1)
	}
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, path, c.Request.URL.RawQuery)
}
