package profile

import (
	"context"
	"testing"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Mock repositories for testing
type mockReportRepository struct {
	reports map[uint][]models.QualityReport
}

func (m *mockReportRepository) ScoredReportsByReviewer(reviewerID uint) ([]models.QualityReport, error) {
	return m.reports[reviewerID], nil
}

type mockMetricConfigRepository struct {
	configs []models.MetricConfig
}

func (m *mockMetricConfigRepository) GetEnabled() ([]models.MetricConfig, error) {
	return m.configs, nil
}

type mockProfileRepository struct {
	upserts []*models.ReviewerQualityProfile
}

func (m *mockProfileRepository) GetByReviewer(reviewerID uint) (*models.ReviewerQualityProfile, error) {
	return nil, nil
}

func (m *mockProfileRepository) Upsert(profile *models.ReviewerQualityProfile) error {
	m.upserts = append(m.upserts, profile)
	return nil
}

func (m *mockProfileRepository) ListTop(limit, minReports int) ([]models.ReviewerQualityProfile, error) {
	return nil, nil
}

func profileTestConfig() *config.ProfilesConfig {
	return &config.ProfilesConfig{
		HighScoreThreshold: 0.8,
		LowScoreThreshold:  0.4,
		TrendMargin:        0.05,
	}
}

func scoredReport(reviewerID uint, score float64, submittedAt time.Time) models.QualityReport {
	return models.QualityReport{
		Review:       models.Review{ReviewerID: reviewerID, SubmittedAt: &submittedAt},
		QualityScore: &score,
		Status:       models.ReportStatusAnalysisComplete,
		UpdatedAt:    submittedAt,
	}
}

func recompute(t *testing.T, reports []models.QualityReport, configs []models.MetricConfig) *models.ReviewerQualityProfile {
	t.Helper()
	profileRepo := &mockProfileRepository{}
	svc := NewServiceWithInterfaces(
		profileTestConfig(),
		&mockReportRepository{reports: map[uint][]models.QualityReport{1: reports}},
		&mockMetricConfigRepository{configs: configs},
		profileRepo,
		logger.Nop(),
	)
	if err := svc.RecomputeProfile(context.Background(), 1); err != nil {
		t.Fatalf("RecomputeProfile() failed: %v", err)
	}
	if len(profileRepo.upserts) != 1 {
		t.Fatalf("Expected one profile upsert, got %d", len(profileRepo.upserts))
	}
	return profileRepo.upserts[0]
}

func TestRecomputeProfile_Aggregates(t *testing.T) {
	now := time.Now().UTC()
	profile := recompute(t, []models.QualityReport{
		scoredReport(1, 0.9, now.AddDate(0, 0, -1)),
		scoredReport(1, 0.7, now.AddDate(0, 0, -10)),
		scoredReport(1, 0.3, now.AddDate(0, 0, -60)),
	}, nil)

	if profile.TotalReports != 3 {
		t.Errorf("TotalReports = %d, want 3", profile.TotalReports)
	}
	if profile.AverageScore != 0.63 {
		t.Errorf("AverageScore = %.2f, want 0.63", profile.AverageScore)
	}
	if profile.HighQualityCount != 1 {
		t.Errorf("HighQualityCount = %d, want 1", profile.HighQualityCount)
	}
	if profile.LowQualityCount != 1 {
		t.Errorf("LowQualityCount = %d, want 1", profile.LowQualityCount)
	}
	if profile.Avg30Days == nil || *profile.Avg30Days != 0.8 {
		t.Errorf("Avg30Days = %v, want 0.80", profile.Avg30Days)
	}
	if profile.Avg90Days == nil || *profile.Avg90Days != 0.63 {
		t.Errorf("Avg90Days = %v, want 0.63", profile.Avg90Days)
	}
	if profile.Trend != models.TrendImproving {
		t.Errorf("Trend = %s, want %s", profile.Trend, models.TrendImproving)
	}
}

func TestRecomputeProfile_WindowsKeyOnSubmissionTime(t *testing.T) {
	now := time.Now().UTC()
	submitted := now.AddDate(0, 0, -60)
	old := scoredReport(1, 0.2, submitted)
	old.UpdatedAt = now

	profile := recompute(t, []models.QualityReport{
		scoredReport(1, 0.8, now.AddDate(0, 0, -5)),
		old,
	}, nil)

	if profile.Avg30Days == nil || *profile.Avg30Days != 0.8 {
		t.Errorf("Avg30Days = %v, want 0.80; a recomputed old report must stay out of the window", profile.Avg30Days)
	}
	if profile.Avg90Days == nil || *profile.Avg90Days != 0.5 {
		t.Errorf("Avg90Days = %v, want 0.50", profile.Avg90Days)
	}
}

func TestRecomputeProfile_TrendStableWithinMargin(t *testing.T) {
	now := time.Now().UTC()
	profile := recompute(t, []models.QualityReport{
		scoredReport(1, 0.71, now.AddDate(0, 0, -5)),
		scoredReport(1, 0.70, now.AddDate(0, 0, -50)),
	}, nil)
	if profile.Trend != models.TrendStable {
		t.Errorf("Trend = %s, want %s for a sub-margin delta", profile.Trend, models.TrendStable)
	}
}

func TestRecomputeProfile_TrendDeclining(t *testing.T) {
	now := time.Now().UTC()
	profile := recompute(t, []models.QualityReport{
		scoredReport(1, 0.5, now.AddDate(0, 0, -5)),
		scoredReport(1, 0.9, now.AddDate(0, 0, -50)),
	}, nil)
	if profile.Trend != models.TrendDeclining {
		t.Errorf("Trend = %s, want %s", profile.Trend, models.TrendDeclining)
	}
}

func TestRecomputeProfile_EmptyHistory(t *testing.T) {
	profile := recompute(t, nil, nil)
	if profile.TotalReports != 0 {
		t.Errorf("TotalReports = %d, want 0", profile.TotalReports)
	}
	if profile.AverageScore != 0 {
		t.Errorf("AverageScore = %.2f, want 0", profile.AverageScore)
	}
	if profile.Avg30Days != nil || profile.Avg90Days != nil {
		t.Error("Rolling averages should be nil without scored reports")
	}
	if profile.Trend != models.TrendStable {
		t.Errorf("Trend = %s, want %s", profile.Trend, models.TrendStable)
	}
}

func TestRecomputeProfile_WeaknessesAndTraining(t *testing.T) {
	now := time.Now().UTC()
	report := scoredReport(1, 0.6, now.AddDate(0, 0, -1))
	bag := models.MetricBag{"completeness": 0.3, "depth": 0.35, "clarity": 0.9}
	report.AutomatedMetrics, _ = models.EncodeMetricBag(bag)

	configs := []models.MetricConfig{
		{Name: "completeness", Enabled: true, ThresholdAcceptable: 0.5},
		{Name: "depth", Enabled: true, ThresholdAcceptable: 0.5},
		{Name: "clarity", Enabled: true, ThresholdAcceptable: 0.5},
	}
	profile := recompute(t, []models.QualityReport{report}, configs)

	weaknesses, err := models.DecodeStringList(profile.Weaknesses)
	if err != nil {
		t.Fatalf("Failed to decode weaknesses: %v", err)
	}
	if len(weaknesses) != 2 {
		t.Fatalf("Weaknesses = %v, want completeness and depth only", weaknesses)
	}

	training, err := models.DecodeStringList(profile.TrainingRecommendations)
	if err != nil {
		t.Fatalf("Failed to decode training recommendations: %v", err)
	}
	wantTraining := map[string]bool{
		"covering_all_review_criteria": true,
		"writing_substantive_reviews":  true,
	}
	if len(training) != len(wantTraining) {
		t.Fatalf("TrainingRecommendations = %v, want %v", training, wantTraining)
	}
	for _, rec := range training {
		if !wantTraining[rec] {
			t.Errorf("Unexpected training recommendation %q", rec)
		}
	}
}

func TestRecomputeProfile_Badges(t *testing.T) {
	now := time.Now().UTC()

	var steady []models.QualityReport
	for i := 0; i < 5; i++ {
		steady = append(steady, scoredReport(1, 0.9, now.AddDate(0, 0, -i)))
	}
	profile := recompute(t, steady, nil)
	badges, _ := models.DecodeStringList(profile.Badges)
	if !containsBadge(badges, models.BadgeQualityStar) {
		t.Errorf("Badges = %v, want %s for 5 reports averaging 0.90", badges, models.BadgeQualityStar)
	}
	if !containsBadge(badges, models.BadgeConsistentQuality) {
		t.Errorf("Badges = %v, want %s with no low-quality reports", badges, models.BadgeConsistentQuality)
	}
	if containsBadge(badges, models.BadgeProlificReviewer) {
		t.Errorf("Badges = %v, %s requires 20 reports", badges, models.BadgeProlificReviewer)
	}

	var prolific []models.QualityReport
	for i := 0; i < 20; i++ {
		prolific = append(prolific, scoredReport(1, 0.5, now.AddDate(0, 0, -i)))
	}
	prolific = append(prolific, scoredReport(1, 0.2, now.AddDate(0, 0, -3)))
	profile = recompute(t, prolific, nil)
	badges, _ = models.DecodeStringList(profile.Badges)
	if !containsBadge(badges, models.BadgeProlificReviewer) {
		t.Errorf("Badges = %v, want %s at 21 reports", badges, models.BadgeProlificReviewer)
	}
	if containsBadge(badges, models.BadgeQualityStar) {
		t.Errorf("Badges = %v, %s requires a 0.80 average", badges, models.BadgeQualityStar)
	}
	if containsBadge(badges, models.BadgeConsistentQuality) {
		t.Errorf("Badges = %v, %s excluded by a low-quality report", badges, models.BadgeConsistentQuality)
	}
}

func containsBadge(badges []string, want string) bool {
	for _, b := range badges {
		if b == want {
			return true
		}
	}
	return false
}
