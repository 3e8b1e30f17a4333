// Package profile maintains rolling quality aggregates per reviewer:
// averages, quality buckets, trend, weaknesses, training recommendations,
// and earned badges.
package profile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Badge qualification minimums.
const (
	qualityStarMinReports = 5
	prolificMinReports    = 20
)

// ReportRepository interface for scored report reads.
type ReportRepository interface {
	ScoredReportsByReviewer(reviewerID uint) ([]models.QualityReport, error)
}

// MetricConfigRepository interface for metric threshold reads.
type MetricConfigRepository interface {
	GetEnabled() ([]models.MetricConfig, error)
}

// ProfileRepository interface for profile persistence.
type ProfileRepository interface {
	GetByReviewer(reviewerID uint) (*models.ReviewerQualityProfile, error)
	Upsert(profile *models.ReviewerQualityProfile) error
	ListTop(limit, minReports int) ([]models.ReviewerQualityProfile, error)
}

// Service recomputes reviewer quality profiles from scored reports.
type Service struct {
	cfg         *config.ProfilesConfig
	reportRepo  ReportRepository
	configRepo  MetricConfigRepository
	profileRepo ProfileRepository
	log         *logger.Logger
}

// NewService creates a new profile service.
func NewService(
	cfg *config.ProfilesConfig,
	reportRepo *repository.ReportRepository,
	configRepo *repository.MetricConfigRepository,
	profileRepo *repository.ProfileRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		reportRepo:  reportRepo,
		configRepo:  configRepo,
		profileRepo: profileRepo,
		log:         log,
	}
}

// NewServiceWithInterfaces creates a profile service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	cfg *config.ProfilesConfig,
	reportRepo ReportRepository,
	configRepo MetricConfigRepository,
	profileRepo ProfileRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		reportRepo:  reportRepo,
		configRepo:  configRepo,
		profileRepo: profileRepo,
		log:         log,
	}
}

// GetProfile returns the stored profile for a reviewer.
func (s *Service) GetProfile(reviewerID uint) (*models.ReviewerQualityProfile, error) {
	return s.profileRepo.GetByReviewer(reviewerID)
}

// TopReviewers returns the highest-averaging profiles with enough history.
func (s *Service) TopReviewers(limit, minReports int) ([]models.ReviewerQualityProfile, error) {
	return s.profileRepo.ListTop(limit, minReports)
}

// RecomputeProfile rebuilds a reviewer's profile from all their scored
// reports. It is a full recompute rather than an incremental update so that
// re-scored reports are always reflected correctly.
func (s *Service) RecomputeProfile(ctx context.Context, reviewerID uint) error {
	reports, err := s.reportRepo.ScoredReportsByReviewer(reviewerID)
	if err != nil {
		return fmt.Errorf("failed to load scored reports for reviewer %d: %w", reviewerID, err)
	}

	profile := s.build(reviewerID, reports, time.Now().UTC())
	if err := s.profileRepo.Upsert(profile); err != nil {
		return fmt.Errorf("failed to upsert profile for reviewer %d: %w", reviewerID, err)
	}

	s.log.Debug().
		Uint("reviewer_id", reviewerID).
		Int("total_reports", profile.TotalReports).
		Float64("average_score", profile.AverageScore).
		Str("trend", profile.Trend).
		Msg("Reviewer profile recomputed")
	return nil
}

func (s *Service) build(reviewerID uint, reports []models.QualityReport, now time.Time) *models.ReviewerQualityProfile {
	profile := &models.ReviewerQualityProfile{
		ReviewerID: reviewerID,
		Trend:      models.TrendStable,
	}

	var sum float64
	var sum30, sum90 float64
	var n30, n90 int
	cut30 := now.AddDate(0, 0, -30)
	cut90 := now.AddDate(0, 0, -90)

	for _, report := range reports {
		if report.QualityScore == nil {
			continue
		}
		score := *report.QualityScore
		profile.TotalReports++
		sum += score
		if score >= s.cfg.HighScoreThreshold {
			profile.HighQualityCount++
		}
		if score < s.cfg.LowScoreThreshold {
			profile.LowQualityCount++
		}
		at := scoredAt(report)
		if at.After(cut30) {
			sum30 += score
			n30++
		}
		if at.After(cut90) {
			sum90 += score
			n90++
		}
	}

	if profile.TotalReports > 0 {
		profile.AverageScore = round2(sum / float64(profile.TotalReports))
	}
	if n30 > 0 {
		avg := round2(sum30 / float64(n30))
		profile.Avg30Days = &avg
	}
	if n90 > 0 {
		avg := round2(sum90 / float64(n90))
		profile.Avg90Days = &avg
	}
	profile.Trend = s.trend(profile.Avg30Days, profile.Avg90Days)

	weaknesses := s.weaknesses(reports)
	profile.Weaknesses, _ = models.EncodeStringList(weaknesses)
	profile.TrainingRecommendations, _ = models.EncodeStringList(trainingFor(weaknesses))
	profile.Badges, _ = models.EncodeStringList(s.badges(profile))
	return profile
}

// scoredAt anchors the rolling windows on the review's submission time.
// A report's updated_at moves on every consistency recompute, which would
// pull old reports back into the recent window.
func scoredAt(report models.QualityReport) time.Time {
	if report.Review.SubmittedAt != nil {
		return *report.Review.SubmittedAt
	}
	return report.UpdatedAt
}

// trend compares the recent average against the longer baseline. Movements
// smaller than the configured margin count as stable.
func (s *Service) trend(avg30, avg90 *float64) string {
	if avg30 == nil || avg90 == nil {
		return models.TrendStable
	}
	delta := *avg30 - *avg90
	switch {
	case delta >= s.cfg.TrendMargin:
		return models.TrendImproving
	case delta <= -s.cfg.TrendMargin:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// weaknesses collects metrics whose per-reviewer average falls below the
// metric's acceptable threshold.
func (s *Service) weaknesses(reports []models.QualityReport) []string {
	configs, err := s.configRepo.GetEnabled()
	if err != nil {
		return []string{}
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, report := range reports {
		for _, metricType := range []string{models.MetricTypeAutomated, models.MetricTypeNLP, models.MetricTypeConsistency} {
			bag, err := report.MetricBagFor(metricType)
			if err != nil {
				continue
			}
			for name, v := range bag {
				sums[name] += v
				counts[name]++
			}
		}
	}

	var out []string
	for _, cfg := range configs {
		count := counts[cfg.Name]
		if count == 0 {
			continue
		}
		if sums[cfg.Name]/float64(count) < cfg.ThresholdAcceptable {
			out = append(out, cfg.Name)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// trainingFor maps detected weaknesses onto training module recommendations.
func trainingFor(weaknesses []string) []string {
	recommendations := make([]string, 0, len(weaknesses))
	for _, w := range weaknesses {
		switch w {
		case "completeness":
			recommendations = append(recommendations, "covering_all_review_criteria")
		case "timeliness":
			recommendations = append(recommendations, "managing_review_deadlines")
		case "depth", "specificity":
			recommendations = append(recommendations, "writing_substantive_reviews")
		case "constructiveness", "professionalism":
			recommendations = append(recommendations, "constructive_review_tone")
		case "clarity":
			recommendations = append(recommendations, "clear_review_writing")
		default:
			recommendations = append(recommendations, "general_review_quality")
		}
	}
	return dedupe(recommendations)
}

// badges awards profile badges from the recomputed aggregates.
func (s *Service) badges(profile *models.ReviewerQualityProfile) []string {
	var out []string
	if profile.TotalReports >= qualityStarMinReports && profile.AverageScore >= s.cfg.HighScoreThreshold {
		out = append(out, models.BadgeQualityStar)
	}
	if profile.TotalReports >= qualityStarMinReports && profile.LowQualityCount == 0 && profile.AverageScore >= s.cfg.LowScoreThreshold {
		out = append(out, models.BadgeConsistentQuality)
	}
	if profile.TotalReports >= prolificMinReports {
		out = append(out, models.BadgeProlificReviewer)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
