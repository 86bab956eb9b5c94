package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"tradepipeline/internal/application/service/lineage"
)

const tracesBasePath = "/api/v1/traces"

const collectorService = "record_collector"

// NewLineageHandler serves chain status derived from collected records. A nil
// cache disables response caching.
func NewLineageHandler(svc *lineage.Service, cache *redis.Client, cacheTTL time.Duration, metrics *Metrics) *Handler {
	if cache == nil {
		return newLineageHandler(svc, nil, cacheTTL, metrics)
	}
	return newLineageHandler(svc, cache, cacheTTL, metrics)
}

func newLineageHandler(svc *lineage.Service, cache responseCache, cacheTTL time.Duration, metrics *Metrics) *Handler {
	h := newHandler(collectorService, metrics)
	h.lineage = svc
	h.cache = cache
	h.cacheTTL = cacheTTL

	traces := h.router.Group(tracesBasePath)
	if h.cache != nil {
		traces.Use(h.cacheMiddleware())
	}
	{
		traces.GET("", h.listTraces)
		traces.GET("/:trace_id", h.getTraceStatus)
	}
	return h
}

func (h *Handler) getTraceStatus(c *gin.Context) {
	status, err := h.lineage.Status(c.Request.Context(), c.Param("trace_id"))
	switch {
	case errors.Is(err, lineage.ErrMissingTrace):
		writeError(c, http.StatusBadRequest, err)
		return
	case errors.Is(err, lineage.ErrTraceNotFound):
		writeError(c, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	// A running chain is read again until it settles.
	if status.Terminal() {
		c.Set(cacheableKey, true)
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) listTraces(c *gin.Context) {
	tradeID := c.Query("trade_id")
	traceIDs, err := h.lineage.TracesForTrade(c.Request.Context(), tradeID)
	switch {
	case errors.Is(err, lineage.ErrMissingTrade):
		writeError(c, http.StatusBadRequest, err)
		return
	case errors.Is(err, lineage.ErrNoTraceIndex):
		writeError(c, http.StatusNotImplemented, err)
		return
	case err != nil:
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	if traceIDs == nil {
		traceIDs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"trade_id": tradeID, "trace_ids": traceIDs})
}
