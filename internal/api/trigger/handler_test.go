package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/service/consistency"
	"github.com/openjournal-dev/review-quality-service/internal/service/notifications"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Mock services for testing
type mockQueueService struct {
	EnqueueFunc      func(reviewID uint, jobType string, priority int) (*models.AnalysisJob, error)
	BatchEnqueueFunc func(manuscriptID *uint) ([]uint, error)
	JobStatusFunc    func(jobID uint) (*models.AnalysisJob, error)
}

func (m *mockQueueService) Enqueue(reviewID uint, jobType string, priority int) (*models.AnalysisJob, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(reviewID, jobType, priority)
	}
	return &models.AnalysisJob{ID: 1, ReviewID: reviewID, JobType: jobType, Priority: priority, Status: models.JobStatusQueued}, nil
}

func (m *mockQueueService) BatchEnqueue(manuscriptID *uint) ([]uint, error) {
	if m.BatchEnqueueFunc != nil {
		return m.BatchEnqueueFunc(manuscriptID)
	}
	return []uint{1, 2}, nil
}

func (m *mockQueueService) JobStatus(jobID uint) (*models.AnalysisJob, error) {
	if m.JobStatusFunc != nil {
		return m.JobStatusFunc(jobID)
	}
	return &models.AnalysisJob{ID: jobID, Status: models.JobStatusCompleted}, nil
}

type mockConsistencyService struct {
	AnalyzeFunc func(ctx context.Context, manuscriptID uint) (*models.ConsistencyScore, error)
}

func (m *mockConsistencyService) Analyze(ctx context.Context, manuscriptID uint) (*models.ConsistencyScore, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, manuscriptID)
	}
	return &models.ConsistencyScore{ManuscriptID: manuscriptID, OverallConsistency: 0.9}, nil
}

type mockScoringService struct {
	RecordEditorRatingFunc func(ctx context.Context, reviewID uint, rating int, comments string) (*models.QualityReport, error)
}

func (m *mockScoringService) RecordEditorRating(ctx context.Context, reviewID uint, rating int, comments string) (*models.QualityReport, error) {
	if m.RecordEditorRatingFunc != nil {
		return m.RecordEditorRatingFunc(ctx, reviewID, rating, comments)
	}
	return &models.QualityReport{ID: 1, ReviewID: reviewID, Status: models.ReportStatusEditorReviewed}, nil
}

type mockMaintenanceRunner struct {
	dailyRuns  int
	weeklyRuns int
}

func (m *mockMaintenanceRunner) RunDailyMaintenance(ctx context.Context) { m.dailyRuns++ }

func (m *mockMaintenanceRunner) RunWeeklySummary(ctx context.Context) { m.weeklyRuns++ }

type mockDispatcher struct {
	SendFunc func(ctx context.Context, req *notifications.Request) (*notifications.Result, error)
}

func (m *mockDispatcher) Send(ctx context.Context, req *notifications.Request) (*notifications.Result, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, req)
	}
	return &notifications.Result{Success: true, State: notifications.StateSent}, nil
}

type mockMetricConfigStore struct {
	upserted []*models.MetricConfig
}

func (m *mockMetricConfigStore) GetAll() ([]models.MetricConfig, error) {
	configs := make([]models.MetricConfig, 0, len(m.upserted))
	for _, cfg := range m.upserted {
		configs = append(configs, *cfg)
	}
	return configs, nil
}

func (m *mockMetricConfigStore) Upsert(cfg *models.MetricConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.upserted = append(m.upserted, cfg)
	return nil
}

type triggerFixture struct {
	router        *gin.Engine
	queue         *mockQueueService
	consistency   *mockConsistencyService
	scoring       *mockScoringService
	maintenance   *mockMaintenanceRunner
	dispatcher    *mockDispatcher
	metricConfigs *mockMetricConfigStore
}

func setupTriggerRouter() *triggerFixture {
	gin.SetMode(gin.TestMode)

	f := &triggerFixture{
		queue:         &mockQueueService{},
		consistency:   &mockConsistencyService{},
		scoring:       &mockScoringService{},
		maintenance:   &mockMaintenanceRunner{},
		dispatcher:    &mockDispatcher{},
		metricConfigs: &mockMetricConfigStore{},
	}
	handler := NewHandler(f.queue, f.consistency, f.scoring, f.maintenance, f.dispatcher, f.metricConfigs, logger.Nop())

	router := gin.New()
	group := router.Group("/api/v1")
	group.Use(RoleMiddleware())
	group.POST("/trigger", handler.Trigger)
	group.GET("/jobs/:id", handler.GetJob)
	f.router = router
	return f
}

func postTrigger(router *gin.Engine, role string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trigger", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTrigger_MissingRoleHeader(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, "", Request{Action: ActionAnalyzeReview, Target: "1"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
}

func TestTrigger_EditorBlockedFromAdminActions(t *testing.T) {
	f := setupTriggerRouter()

	for _, action := range []string{ActionBatchAnalyze, ActionDailyMaintenance, ActionTestNotification, ActionMetricConfig} {
		w := postTrigger(f.router, RoleEditor, Request{Action: action})
		assert.Equal(t, http.StatusForbidden, w.Code, "action %s should be admin only", action)
	}
	assert.Equal(t, 0, f.maintenance.dailyRuns)
}

func TestTrigger_UnknownRoleBlocked(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, "reviewer", Request{Action: ActionAnalyzeReview, Target: "1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTrigger_UnknownAction(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, RoleAdmin, Request{Action: "recalibrate_flux"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "unknown action")
}

func TestTrigger_AnalyzeReview(t *testing.T) {
	f := setupTriggerRouter()

	var gotType string
	var gotPriority int
	f.queue.EnqueueFunc = func(reviewID uint, jobType string, priority int) (*models.AnalysisJob, error) {
		gotType = jobType
		gotPriority = priority
		return &models.AnalysisJob{ID: 42, ReviewID: reviewID, JobType: jobType, Status: models.JobStatusQueued}, nil
	}

	w := postTrigger(f.router, RoleEditor, Request{
		Action: ActionAnalyzeReview,
		Target: "15",
		Params: map[string]any{"job_type": models.JobTypeQuick, "priority": 9},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.JobTypeQuick, gotType)
	assert.Equal(t, 9, gotPriority)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, ActionAnalyzeReview, resp["action"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, float64(42), result["job_id"])
}

func TestTrigger_AnalyzeReviewBadTarget(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, RoleEditor, Request{Action: ActionAnalyzeReview, Target: "zero"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrigger_ConsistencyCheckInsufficientReviews(t *testing.T) {
	f := setupTriggerRouter()
	f.consistency.AnalyzeFunc = func(ctx context.Context, manuscriptID uint) (*models.ConsistencyScore, error) {
		return nil, consistency.ErrInsufficientReviews
	}

	w := postTrigger(f.router, RoleEditor, Request{Action: ActionConsistencyCheck, Target: "3"})

	// Insufficient reviews is an expected condition, not an error.
	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	result := resp["result"].(map[string]any)
	assert.Equal(t, false, result["computed"])
	assert.NotEmpty(t, result["reason"])
}

func TestTrigger_DailyMaintenanceAsAdmin(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, RoleAdmin, Request{Action: ActionDailyMaintenance})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.maintenance.dailyRuns)
}

func TestTrigger_EditorRating(t *testing.T) {
	f := setupTriggerRouter()

	var gotRating int
	var gotComments string
	f.scoring.RecordEditorRatingFunc = func(ctx context.Context, reviewID uint, rating int, comments string) (*models.QualityReport, error) {
		gotRating = rating
		gotComments = comments
		return &models.QualityReport{ID: 8, ReviewID: reviewID, Status: models.ReportStatusEditorReviewed}, nil
	}

	w := postTrigger(f.router, RoleEditor, Request{
		Action: ActionEditorRating,
		Target: "5",
		Params: map[string]any{"rating": 4, "comments": "thorough and constructive"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, gotRating)
	assert.Equal(t, "thorough and constructive", gotComments)
}

func TestTrigger_EditorRatingRequiresRating(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, RoleEditor, Request{Action: ActionEditorRating, Target: "5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrigger_UpdateMetricConfig(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, RoleAdmin, Request{
		Action: ActionMetricConfig,
		Target: "clarity",
		Params: map[string]any{
			"type":                 models.MetricTypeNLP,
			"weight":               0.25,
			"threshold_poor":       0.2,
			"threshold_acceptable": 0.4,
			"threshold_good":       0.6,
			"threshold_excellent":  0.8,
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.metricConfigs.upserted, 1)
	cfg := f.metricConfigs.upserted[0]
	assert.Equal(t, "clarity", cfg.Name)
	assert.Equal(t, models.MetricTypeNLP, cfg.Type)
	assert.Equal(t, 0.25, cfg.Weight)
	assert.True(t, cfg.Enabled)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	result := resp["result"].(map[string]any)
	assert.Equal(t, "clarity", result["metric"])
	assert.Len(t, result["configs"], 1)
}

func TestTrigger_UpdateMetricConfigRejectsBadThresholds(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, RoleAdmin, Request{
		Action: ActionMetricConfig,
		Target: "clarity",
		Params: map[string]any{
			"weight":              0.25,
			"threshold_poor":      0.9,
			"threshold_excellent": 0.1,
		},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.metricConfigs.upserted)
}

func TestTrigger_UpdateMetricConfigRequiresTarget(t *testing.T) {
	f := setupTriggerRouter()

	w := postTrigger(f.router, RoleAdmin, Request{Action: ActionMetricConfig})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJob(t *testing.T) {
	f := setupTriggerRouter()
	f.queue.JobStatusFunc = func(jobID uint) (*models.AnalysisJob, error) {
		return &models.AnalysisJob{ID: jobID, JobType: models.JobTypeFull, Status: models.JobStatusProcessing}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/12", nil)
	req.Header.Set("X-User-Role", RoleEditor)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	job := resp["job"].(map[string]any)
	assert.Equal(t, float64(12), job["id"])
	assert.Equal(t, models.JobStatusProcessing, job["status"])
}
