package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/usagegate/usagegate/internal/errors"
	"github.com/usagegate/usagegate/internal/models"
	"github.com/usagegate/usagegate/internal/quota"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status      string `json:"status"`
	RecordCount int    `json:"record_count"`
}

func (s *Server) handleHealth(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		RecordCount: stats.RecordCount,
	})
}

func (s *Server) handleGetStatus(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	decision, err := s.quotaSvc.GetStatus(c.Request.Context(), userID)
	if err != nil {
		s.transientError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// handleConsume is the gate the metered operation's caller must pass. A 200
// means one invocation was consumed and the work may proceed; 429 means the
// work must not be performed until the reported reset.
func (s *Server) handleConsume(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	decision, err := s.quotaSvc.TryConsume(c.Request.Context(), userID)
	if err != nil {
		s.transientError(c, err)
		return
	}

	if !decision.Allowed {
		c.JSON(http.StatusTooManyRequests, decision)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// SetLimitsRequest updates per-user overrides. Omitted fields stay unchanged;
// custom_daily_limit of 0 clears the override.
type SetLimitsRequest struct {
	CustomDailyLimit *int  `json:"custom_daily_limit"`
	Unlimited        *bool `json:"unlimited"`
}

func (s *Server) handleSetLimits(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	var req SetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
		return
	}
	if req.CustomDailyLimit == nil && req.Unlimited == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one of custom_daily_limit or unlimited is required"})
		return
	}
	if req.CustomDailyLimit != nil && *req.CustomDailyLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "custom_daily_limit must not be negative"})
		return
	}

	rec, err := s.quotaSvc.SetOverrides(c.Request.Context(), userID, quota.Overrides{
		CustomDailyLimit: req.CustomDailyLimit,
		Unlimited:        req.Unlimited,
	})
	if err != nil {
		s.transientError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ViewOf(rec))
}

func (s *Server) handleClearLimits(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	rec, err := s.quotaSvc.ClearOverrides(c.Request.Context(), userID)
	if err != nil {
		s.transientError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ViewOf(rec))
}

// QuotaListResponse wraps the record list.
type QuotaListResponse struct {
	Records []*models.UsageRecord `json:"records"`
	Count   int                   `json:"count"`
}

func (s *Server) handleListQuotas(c *gin.Context) {
	records, err := s.quotaSvc.ListRecords(c.Request.Context())
	if err != nil {
		s.transientError(c, err)
		return
	}
	c.JSON(http.StatusOK, QuotaListResponse{
		Records: records,
		Count:   len(records),
	})
}

// transientError maps store and contention failures to 503 so callers know
// the metered operation was not attempted and the whole check may be retried.
func (s *Server) transientError(c *gin.Context, err error) {
	if errors.IsTransient(err) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "temporarily unavailable",
			"message": "quota check could not complete, retry the request",
		})
		return
	}
	s.logger.ErrorWithContext(c.Request.Context(), "unexpected error", "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
