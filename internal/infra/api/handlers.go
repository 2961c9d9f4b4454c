package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"medirate_alerts/internal/app"
	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/record"

	"github.com/gin-gonic/gin"
)

const defaultRunsLimit = 10

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) GetHealth(c *gin.Context) {
	status := h.service.CheckConnections(c.Request.Context())

	feeds := make([]gin.H, 0, len(status.Feeds))
	for _, f := range status.Feeds {
		entry := gin.H{"source": f.Source, "file": f.File}
		if f.Err != nil {
			entry["error"] = f.Err.Error()
		}
		feeds = append(feeds, entry)
	}
	body := gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    "ok",
		"feeds":     feeds,
	}
	if status.StoreErr != nil {
		body["store_error"] = status.StoreErr.Error()
	}

	code := http.StatusOK
	if !status.OK() {
		code = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	c.JSON(code, body)
}

func (h *Handler) RunFullCycle(c *gin.Context) {
	h.runCycle(c, h.service.RunFullCycle)
}

func (h *Handler) RunBillReconciliation(c *gin.Context) {
	h.runCycle(c, h.service.RunBillReconciliation)
}

func (h *Handler) RunAlertReconciliation(c *gin.Context) {
	h.runCycle(c, h.service.RunAlertReconciliation)
}

// runCycle answers 409 while another run holds the lock and 503 when a feed or the
// store could not be reached. The cycle result is returned either way. A client
// disconnect does not abort the cycle.
func (h *Handler) runCycle(c *gin.Context, run func(context.Context) (*cycle.Result, error)) {
	res, err := run(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, app.ErrCycleInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if res == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	code := http.StatusOK
	if res.HardFailure() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, toCycleJSON(res))
}

func (h *Handler) ListNewRecords(c *gin.Context) {
	recs, err := h.service.FetchNewRecords(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": toRecordsJSON(recs),
		"total":   len(recs),
	})
}

func (h *Handler) ListUncategorized(c *gin.Context) {
	src, err := record.ParseSource(c.Param("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := h.service.ListUncategorized(c.Request.Context(), src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source":  src,
		"records": toRecordsJSON(recs),
		"total":   len(recs),
	})
}

func (h *Handler) DispatchNotifications(c *gin.Context) {
	report, err := h.service.Dispatch(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, app.ErrCycleInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toDispatchJSON(report))
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	runs, err := h.service.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(runs))
	for _, r := range runs {
		out = append(out, gin.H{
			"id":          r.ID,
			"kind":        r.Kind,
			"sources":     r.Sources,
			"started_at":  r.StartedAt,
			"finished_at": r.FinishedAt,
			"flags_reset": r.FlagsReset,
			"inserted":    r.Totals.Inserted,
			"updated":     r.Totals.Updated,
			"skipped":     r.Totals.Skipped,
			"failed":      r.Totals.Failed,
			"error":       r.Error,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out, "total": len(out)})
}
