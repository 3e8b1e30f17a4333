// Package analytics provides the REST endpoints for invitation rollups,
// quality overviews, and reviewer profiles.
package analytics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/service/analytics"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// AnalyticsService interface for rollup computation.
type AnalyticsService interface {
	InvitationRollup(ctx context.Context, period string) (*analytics.InvitationAnalytics, error)
	QualityOverview(ctx context.Context) (*analytics.QualityOverview, error)
	Leaderboard(ctx context.Context, limit int) ([]analytics.LeaderboardEntry, error)
}

// ProfileService interface for reviewer profile reads.
type ProfileService interface {
	GetProfile(reviewerID uint) (*models.ReviewerQualityProfile, error)
}

// Handler handles analytics API requests.
type Handler struct {
	analyticsService AnalyticsService
	profileService   ProfileService
	log              *logger.Logger
}

// NewHandler creates a new analytics handler.
func NewHandler(analyticsService AnalyticsService, profileService ProfileService, log *logger.Logger) *Handler {
	return &Handler{
		analyticsService: analyticsService,
		profileService:   profileService,
		log:              log,
	}
}

// GetInvitationAnalytics returns the invitation funnel rollup.
// GET /api/v1/analytics/invitations?period=30d.
func (h *Handler) GetInvitationAnalytics(c *gin.Context) {
	period := c.DefaultQuery("period", "30d")

	rollup, err := h.analyticsService.InvitationRollup(c.Request.Context(), period)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analytics":    rollup,
		"generated_at": time.Now().UTC(),
	})
}

// GetQualityOverview returns the quality score distribution and queue health.
// GET /api/v1/analytics/quality.
func (h *Handler) GetQualityOverview(c *gin.Context) {
	overview, err := h.analyticsService.QualityOverview(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build quality overview")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve quality overview")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"overview":     overview,
		"generated_at": time.Now().UTC(),
	})
}

// GetLeaderboard returns the top reviewers by average quality score.
// GET /api/v1/analytics/leaderboard?limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			h.errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	entries, err := h.analyticsService.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetReviewerProfile returns one reviewer's quality profile.
// GET /api/v1/analytics/reviewers/:id.
func (h *Handler) GetReviewerProfile(c *gin.Context) {
	reviewerID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || reviewerID == 0 {
		h.errorResponse(c, http.StatusBadRequest, "reviewer id must be a positive integer")
		return
	}

	profile, err := h.profileService.GetProfile(uint(reviewerID))
	if err != nil {
		h.errorResponse(c, http.StatusNotFound, "Reviewer profile not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":      profile,
		"generated_at": time.Now().UTC(),
	})
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
