// Package analytics computes derived rollups for dashboards: invitation
// funnel rates, quality score distribution, and the reviewer leaderboard.
// Responses are cached in redis with a short TTL.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/cache"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// cacheTTL bounds staleness of cached rollups.
const cacheTTL = 5 * time.Minute

// leaderboardMinReports keeps one-off reviewers out of the leaderboard.
const leaderboardMinReports = 3

// Score distribution bucket edges.
var scoreBuckets = []struct {
	Label string
	Min   float64
	Max   float64
}{
	{"poor", 0.0, 0.4},
	{"acceptable", 0.4, 0.6},
	{"good", 0.6, 0.85},
	{"excellent", 0.85, 1.01},
}

// InvitationAnalytics is the period-bucketed invitation funnel rollup.
type InvitationAnalytics struct {
	Period       string  `json:"period"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	TotalSent    int     `json:"total_sent"`
	Delivered    int     `json:"delivered"`
	Bounced      int     `json:"bounced"`
	Opened       int     `json:"opened"`
	Clicked      int     `json:"clicked"`
	Responded    int     `json:"responded"`
	Accepted     int     `json:"accepted"`
	Declined     int     `json:"declined"`
	OpenRate     float64 `json:"open_rate"`
	ResponseRate float64 `json:"response_rate"`
	AcceptRate   float64 `json:"accept_rate"`
	Reminders    int     `json:"reminders_sent"`
}

// QualityOverview summarizes the score distribution and pipeline health.
type QualityOverview struct {
	ScoreDistribution map[string]int64 `json:"score_distribution"`
	PendingAnalysis   int64            `json:"pending_analysis"`
	FlaggedForReview  int64            `json:"flagged_for_review"`
	ScoredLast7Days   int              `json:"scored_last_7_days"`
	FailedJobs        int              `json:"failed_jobs"`
}

// LeaderboardEntry is one reviewer row in the quality leaderboard.
type LeaderboardEntry struct {
	ReviewerID   uint     `json:"reviewer_id"`
	Name         string   `json:"name"`
	AverageScore float64  `json:"average_score"`
	TotalReports int      `json:"total_reports"`
	Trend        string   `json:"trend"`
	Badges       []string `json:"badges"`
}

// InvitationRepository interface for invitation ledger reads.
type InvitationRepository interface {
	ListCreatedBetween(start, end time.Time) ([]models.InvitationTracking, error)
}

// ReportRepository interface for score distribution reads.
type ReportRepository interface {
	CountByScoreRange(min, max float64) (int64, error)
	ListByStatus(status string) ([]models.QualityReport, error)
	ScoredSince(since time.Time) ([]models.QualityReport, error)
}

// JobRepository interface for pipeline health reads.
type JobRepository interface {
	ListFailed(limit int) ([]models.AnalysisJob, error)
}

// ProfileRepository interface for leaderboard reads.
type ProfileRepository interface {
	ListTop(limit, minReports int) ([]models.ReviewerQualityProfile, error)
}

// ReviewerGetter resolves reviewer names for leaderboard rows.
type ReviewerGetter interface {
	GetReviewer(id uint) (*models.Reviewer, error)
}

// Service computes analytics rollups.
type Service struct {
	invRepo     InvitationRepository
	reportRepo  ReportRepository
	jobRepo     JobRepository
	profileRepo ProfileRepository
	reviewRepo  ReviewerGetter
	cache       cache.Cache
	log         *logger.Logger
}

// NewService creates an analytics service.
func NewService(
	invRepo *repository.InvitationRepository,
	reportRepo *repository.ReportRepository,
	jobRepo *repository.JobRepository,
	profileRepo *repository.ProfileRepository,
	reviewRepo *repository.ReviewRepository,
	c cache.Cache,
	log *logger.Logger,
) *Service {
	return &Service{
		invRepo:     invRepo,
		reportRepo:  reportRepo,
		jobRepo:     jobRepo,
		profileRepo: profileRepo,
		reviewRepo:  reviewRepo,
		cache:       c,
		log:         log,
	}
}

// NewServiceWithInterfaces creates an analytics service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	invRepo InvitationRepository,
	reportRepo ReportRepository,
	jobRepo JobRepository,
	profileRepo ProfileRepository,
	reviewRepo ReviewerGetter,
	c cache.Cache,
	log *logger.Logger,
) *Service {
	return &Service{
		invRepo:     invRepo,
		reportRepo:  reportRepo,
		jobRepo:     jobRepo,
		profileRepo: profileRepo,
		reviewRepo:  reviewRepo,
		cache:       c,
		log:         log,
	}
}

// InvitationRollup computes the invitation funnel for a named period:
// "7d", "30d", or "90d".
func (s *Service) InvitationRollup(ctx context.Context, period string) (*InvitationAnalytics, error) {
	days, err := periodDays(period)
	if err != nil {
		return nil, err
	}

	cacheKey := "analytics:invitations:" + period
	var cached InvitationAnalytics
	if s.fromCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	invitations, err := s.invRepo.ListCreatedBetween(start, end)
	if err != nil {
		return nil, err
	}

	rollup := &InvitationAnalytics{
		Period: period,
		Start:  start.Format(time.RFC3339),
		End:    end.Format(time.RFC3339),
	}
	for _, inv := range invitations {
		rollup.TotalSent++
		switch inv.DeliveryStatus {
		case models.DeliveryStatusDelivered:
			rollup.Delivered++
		case models.DeliveryStatusBounced:
			rollup.Bounced++
		}
		if inv.OpenedAt != nil {
			rollup.Opened++
		}
		if inv.ClickedAt != nil {
			rollup.Clicked++
		}
		if inv.HasResponded() {
			rollup.Responded++
			switch inv.ResponseType {
			case models.ResponseAccepted:
				rollup.Accepted++
			case models.ResponseDeclined:
				rollup.Declined++
			}
		}
		rollup.Reminders += inv.ReminderCount
	}
	if rollup.TotalSent > 0 {
		rollup.OpenRate = rate(rollup.Opened, rollup.TotalSent)
		rollup.ResponseRate = rate(rollup.Responded, rollup.TotalSent)
	}
	if rollup.Responded > 0 {
		rollup.AcceptRate = rate(rollup.Accepted, rollup.Responded)
	}

	s.toCache(ctx, cacheKey, rollup)
	return rollup, nil
}

// QualityOverview summarizes the score distribution and queue health.
func (s *Service) QualityOverview(ctx context.Context) (*QualityOverview, error) {
	cacheKey := "analytics:quality"
	var cached QualityOverview
	if s.fromCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	overview := &QualityOverview{ScoreDistribution: make(map[string]int64)}
	for _, bucket := range scoreBuckets {
		count, err := s.reportRepo.CountByScoreRange(bucket.Min, bucket.Max)
		if err != nil {
			return nil, err
		}
		overview.ScoreDistribution[bucket.Label] = count
	}

	pending, err := s.reportRepo.ListByStatus(models.ReportStatusPendingAnalysis)
	if err != nil {
		return nil, err
	}
	overview.PendingAnalysis = int64(len(pending))

	flagged, err := s.reportRepo.ListByStatus(models.ReportStatusFlaggedForReview)
	if err != nil {
		return nil, err
	}
	overview.FlaggedForReview = int64(len(flagged))

	recent, err := s.reportRepo.ScoredSince(time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	overview.ScoredLast7Days = len(recent)

	failed, err := s.jobRepo.ListFailed(100)
	if err != nil {
		return nil, err
	}
	overview.FailedJobs = len(failed)

	s.toCache(ctx, cacheKey, overview)
	return overview, nil
}

// Leaderboard returns the top reviewers by average score.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	cacheKey := fmt.Sprintf("analytics:leaderboard:%d", limit)
	var cached []LeaderboardEntry
	if s.fromCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	profiles, err := s.profileRepo.ListTop(limit, leaderboardMinReports)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(profiles))
	for _, p := range profiles {
		entry := LeaderboardEntry{
			ReviewerID:   p.ReviewerID,
			AverageScore: p.AverageScore,
			TotalReports: p.TotalReports,
			Trend:        p.Trend,
		}
		if badges, err := models.DecodeStringList(p.Badges); err == nil && badges != nil {
			entry.Badges = badges
		} else {
			entry.Badges = []string{}
		}
		if reviewer, err := s.reviewRepo.GetReviewer(p.ReviewerID); err == nil {
			entry.Name = reviewer.Name
		}
		entries = append(entries, entry)
	}

	s.toCache(ctx, cacheKey, entries)
	return entries, nil
}

func (s *Service) fromCache(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

func (s *Service) toCache(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(data), cacheTTL); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("Failed to cache analytics rollup")
	}
}

func periodDays(period string) (int, error) {
	switch period {
	case "", "30d":
		return 30, nil
	case "7d":
		return 7, nil
	case "90d":
		return 90, nil
	default:
		return 0, fmt.Errorf("unknown period: %s", period)
	}
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
