// Package trigger provides the manual operations endpoint. Editors and
// admins invoke analysis, maintenance, and notification actions through a
// single POST envelope, with role checks per action.
package trigger

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/service/consistency"
	"github.com/openjournal-dev/review-quality-service/internal/service/notifications"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Trigger actions.
const (
	ActionAnalyzeReview    = "analyze_review"
	ActionBatchAnalyze     = "batch_analyze"
	ActionDailyMaintenance = "daily_maintenance"
	ActionWeeklySummary    = "weekly_summary"
	ActionConsistencyCheck = "consistency_check"
	ActionTestNotification = "test_notification"
	ActionEditorRating     = "editor_rating"
	ActionMetricConfig     = "update_metric_config"
)

// ErrUnknownAction is returned for unrecognized trigger actions.
var ErrUnknownAction = errors.New("unknown action")

// adminOnly lists actions restricted to the admin role. Everything else
// accepts editor or admin.
var adminOnly = map[string]bool{
	ActionBatchAnalyze:     true,
	ActionDailyMaintenance: true,
	ActionTestNotification: true,
	ActionMetricConfig:     true,
}

// Request is the trigger envelope.
type Request struct {
	Action string         `json:"action" binding:"required"`
	Target string         `json:"target"`
	Params map[string]any `json:"params"`
}

// QueueService interface for job operations.
type QueueService interface {
	Enqueue(reviewID uint, jobType string, priority int) (*models.AnalysisJob, error)
	BatchEnqueue(manuscriptID *uint) ([]uint, error)
	JobStatus(jobID uint) (*models.AnalysisJob, error)
}

// ConsistencyService interface for consistency recomputation.
type ConsistencyService interface {
	Analyze(ctx context.Context, manuscriptID uint) (*models.ConsistencyScore, error)
}

// ScoringService interface for editor review operations.
type ScoringService interface {
	RecordEditorRating(ctx context.Context, reviewID uint, rating int, comments string) (*models.QualityReport, error)
}

// MaintenanceRunner runs the scheduled jobs on demand.
type MaintenanceRunner interface {
	RunDailyMaintenance(ctx context.Context)
	RunWeeklySummary(ctx context.Context)
}

// NotificationDispatcher interface for test notification delivery.
type NotificationDispatcher interface {
	Send(ctx context.Context, req *notifications.Request) (*notifications.Result, error)
}

// MetricConfigStore interface for metric weight and threshold tuning.
type MetricConfigStore interface {
	GetAll() ([]models.MetricConfig, error)
	Upsert(cfg *models.MetricConfig) error
}

// Handler handles manual trigger requests.
type Handler struct {
	queueService       QueueService
	consistencyService ConsistencyService
	scoringService     ScoringService
	maintenance        MaintenanceRunner
	dispatcher         NotificationDispatcher
	metricConfigs      MetricConfigStore
	log                *logger.Logger
}

// NewHandler creates a new trigger handler.
func NewHandler(
	queueService QueueService,
	consistencyService ConsistencyService,
	scoringService ScoringService,
	maintenance MaintenanceRunner,
	dispatcher NotificationDispatcher,
	metricConfigs MetricConfigStore,
	log *logger.Logger,
) *Handler {
	return &Handler{
		queueService:       queueService,
		consistencyService: consistencyService,
		scoringService:     scoringService,
		maintenance:        maintenance,
		dispatcher:         dispatcher,
		metricConfigs:      metricConfigs,
		log:                log,
	}
}

// Trigger executes a manual action.
// POST /api/v1/trigger.
func (h *Handler) Trigger(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return
	}

	role := c.GetString(roleContextKey)
	if !roleAllowed(req.Action, role) {
		h.errorResponse(c, http.StatusForbidden, req.Action, "role "+role+" may not invoke "+req.Action)
		return
	}

	result, status, err := h.execute(c.Request.Context(), &req)
	if err != nil {
		h.log.Warn().
			Err(err).
			Str("action", req.Action).
			Str("target", req.Target).
			Msg("Trigger action failed")
		h.errorResponse(c, status, req.Action, err.Error())
		return
	}

	h.log.Info().
		Str("action", req.Action).
		Str("target", req.Target).
		Str("role", role).
		Msg("Trigger action executed")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"action":  req.Action,
		"target":  req.Target,
		"result":  result,
	})
}

// GetJob returns the status of one analysis job.
// GET /api/v1/jobs/:id.
func (h *Handler) GetJob(c *gin.Context) {
	jobID, err := parseID(c.Param("id"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "", err.Error())
		return
	}

	job, err := h.queueService.JobStatus(jobID)
	if err != nil {
		h.errorResponse(c, http.StatusNotFound, "", "job not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":          job,
		"generated_at": time.Now().UTC(),
	})
}

func (h *Handler) execute(ctx context.Context, req *Request) (any, int, error) {
	switch req.Action {
	case ActionAnalyzeReview:
		return h.analyzeReview(req)
	case ActionBatchAnalyze:
		return h.batchAnalyze(req)
	case ActionConsistencyCheck:
		return h.consistencyCheck(ctx, req)
	case ActionDailyMaintenance:
		h.maintenance.RunDailyMaintenance(ctx)
		return gin.H{"status": "completed"}, 0, nil
	case ActionWeeklySummary:
		h.maintenance.RunWeeklySummary(ctx)
		return gin.H{"status": "completed"}, 0, nil
	case ActionTestNotification:
		return h.testNotification(ctx, req)
	case ActionEditorRating:
		return h.editorRating(ctx, req)
	case ActionMetricConfig:
		return h.updateMetricConfig(req)
	default:
		return nil, http.StatusBadRequest, ErrUnknownAction
	}
}

func (h *Handler) analyzeReview(req *Request) (any, int, error) {
	reviewID, err := parseID(req.Target)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	jobType := models.JobTypeFull
	if t, ok := req.Params["job_type"].(string); ok && t != "" {
		jobType = t
	}
	priority := 7
	if p, ok := req.Params["priority"].(float64); ok {
		priority = int(p)
	}

	job, err := h.queueService.Enqueue(reviewID, jobType, priority)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	return gin.H{"job_id": job.ID, "status": job.Status}, 0, nil
}

func (h *Handler) batchAnalyze(req *Request) (any, int, error) {
	var manuscriptID *uint
	if req.Target != "" {
		id, err := parseID(req.Target)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		manuscriptID = &id
	}

	jobIDs, err := h.queueService.BatchEnqueue(manuscriptID)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return gin.H{"job_ids": jobIDs, "count": len(jobIDs)}, 0, nil
}

func (h *Handler) consistencyCheck(ctx context.Context, req *Request) (any, int, error) {
	manuscriptID, err := parseID(req.Target)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	score, err := h.consistencyService.Analyze(ctx, manuscriptID)
	if errors.Is(err, consistency.ErrInsufficientReviews) {
		return gin.H{"computed": false, "reason": err.Error()}, 0, nil
	}
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return gin.H{"computed": true, "consistency_score": score}, 0, nil
}

func (h *Handler) testNotification(ctx context.Context, req *Request) (any, int, error) {
	notifReq := &notifications.Request{
		Channels: []string{notifications.ChannelEmail},
		Priority: notifications.PriorityHigh,
		Subject:  "Test notification",
		Body:     "This is a test notification from the review quality service.",
	}
	if email, ok := req.Params["email"].(string); ok {
		notifReq.Email = email
	}
	if channels, ok := req.Params["channels"].([]any); ok {
		notifReq.Channels = nil
		for _, ch := range channels {
			if s, ok := ch.(string); ok {
				notifReq.Channels = append(notifReq.Channels, s)
			}
		}
	}
	if recipient, ok := req.Params["recipient_id"].(float64); ok {
		notifReq.RecipientID = uint(recipient)
	}

	result, err := h.dispatcher.Send(ctx, notifReq)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	return result, 0, nil
}

func (h *Handler) editorRating(ctx context.Context, req *Request) (any, int, error) {
	reviewID, err := parseID(req.Target)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	rating, ok := req.Params["rating"].(float64)
	if !ok {
		return nil, http.StatusBadRequest, errors.New("params.rating is required")
	}
	comments, _ := req.Params["comments"].(string)

	report, err := h.scoringService.RecordEditorRating(ctx, reviewID, int(rating), comments)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	return gin.H{"report_id": report.ID, "status": report.Status}, 0, nil
}

// updateMetricConfig upserts one metric's weight, type, thresholds, and
// enabled flag, then returns the full config set so the caller sees the
// resulting weights.
func (h *Handler) updateMetricConfig(req *Request) (any, int, error) {
	if req.Target == "" {
		return nil, http.StatusBadRequest, errors.New("target metric name is required")
	}

	cfg := &models.MetricConfig{Name: req.Target, Enabled: true}
	if t, ok := req.Params["type"].(string); ok {
		cfg.Type = t
	}
	if w, ok := req.Params["weight"].(float64); ok {
		cfg.Weight = w
	}
	if e, ok := req.Params["enabled"].(bool); ok {
		cfg.Enabled = e
	}
	if v, ok := req.Params["threshold_poor"].(float64); ok {
		cfg.ThresholdPoor = v
	}
	if v, ok := req.Params["threshold_acceptable"].(float64); ok {
		cfg.ThresholdAcceptable = v
	}
	if v, ok := req.Params["threshold_good"].(float64); ok {
		cfg.ThresholdGood = v
	}
	if v, ok := req.Params["threshold_excellent"].(float64); ok {
		cfg.ThresholdExcellent = v
	}

	if err := h.metricConfigs.Upsert(cfg); err != nil {
		return nil, http.StatusBadRequest, err
	}

	configs, err := h.metricConfigs.GetAll()
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return gin.H{"metric": cfg.Name, "configs": configs}, 0, nil
}

// errorResponse sends the error envelope for trigger failures.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, action, message string) {
	c.JSON(statusCode, gin.H{
		"success":   false,
		"action":    action,
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("target must be a positive integer id")
	}
	return uint(id), nil
}
