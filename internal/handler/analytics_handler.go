package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Overview godoc
// @Summary Session and improvement overview
// @Tags Analytics
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param tutor_id query string false "Tutor ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/overview [get]
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	start := time.Now()
	overview, cacheHit, err := h.analytics.Overview(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, overview)
}

// Leaderboard godoc
// @Summary Improvement leaderboard
// @Tags Analytics
// @Produce json
// @Param role query string true "TUTOR or TUTEE"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /analytics/leaderboard [get]
func (h *AnalyticsHandler) Leaderboard(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	start := time.Now()
	entries, cacheHit, err := h.analytics.Leaderboard(c.Request.Context(), models.UserRole(c.Query("role")), filter, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, entries)
}

// Satisfaction godoc
// @Summary Survey satisfaction averages
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/satisfaction [get]
func (h *AnalyticsHandler) Satisfaction(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.analytics.Satisfaction(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, summary)
}

// Me godoc
// @Summary Personal statistics for the caller
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /analytics/me [get]
func (h *AnalyticsHandler) Me(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	start := time.Now()
	stats, cacheHit, err := h.analytics.Personal(c.Request.Context(), viewer, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, stats)
}

// System returns instrumentation metrics snapshots.
func (h *AnalyticsHandler) System(c *gin.Context) {
	start := time.Now()
	h.respond(c, start, false, h.analytics.SystemMetrics())
}

func (h *AnalyticsHandler) filter(c *gin.Context) (models.AnalyticsFilter, bool) {
	filter := models.AnalyticsFilter{TutorID: c.Query("tutor_id"), TuteeID: c.Query("tutee_id")}
	var err error
	if filter.DateFrom, err = dateQuery(c, "date_from"); err != nil {
		response.Error(c, err)
		return filter, false
	}
	if filter.DateTo, err = dateQuery(c, "date_to"); err != nil {
		response.Error(c, err)
		return filter, false
	}
	return filter, true
}

func (h *AnalyticsHandler) respond(c *gin.Context, start time.Time, cacheHit bool, data interface{}) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, nil, meta)
}
