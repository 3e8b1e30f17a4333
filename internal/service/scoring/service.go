package scoring

import (
	"context"
	"fmt"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	prommetrics "github.com/openjournal-dev/review-quality-service/internal/metrics"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// expectedCriteria is the number of review criteria the submission form carries.
const expectedCriteria = 5

// ReportRepository interface for quality report operations.
type ReportRepository interface {
	GetOrCreateByReviewID(reviewID uint) (*models.QualityReport, error)
	GetByReviewID(reviewID uint) (*models.QualityReport, error)
	Update(report *models.QualityReport) error
	UpdateMetrics(reportID uint, metricType string, bag models.MetricBag) error
	UpdateScoreAndStatus(reportID uint, score *float64, status string) error
}

// MetricConfigRepository interface for metric config reads.
type MetricConfigRepository interface {
	GetEnabled() ([]models.MetricConfig, error)
}

// ReviewRepository interface for review reads.
type ReviewRepository interface {
	GetByID(id uint) (*models.Review, error)
	GetAssignmentFor(manuscriptID, reviewerID uint) (*models.ReviewAssignment, error)
}

// ProfileAggregator is notified after a report's score changes. It replaces
// the original database trigger with an explicit post-write hook.
type ProfileAggregator interface {
	RecomputeProfile(ctx context.Context, reviewerID uint) error
}

// FlagNotifier alerts editors when a report is flagged for human review.
type FlagNotifier interface {
	NotifyReportFlagged(ctx context.Context, report *models.QualityReport, flags []string)
}

// Service orchestrates quality analysis of submitted reviews.
type Service struct {
	cfg        *config.ScoringConfig
	reportRepo ReportRepository
	configRepo MetricConfigRepository
	reviewRepo ReviewRepository
	nlp        NLPProvider
	aggregator ProfileAggregator
	notifier   FlagNotifier
	log        *logger.Logger
}

// NewService creates a new scoring service.
func NewService(
	cfg *config.ScoringConfig,
	reportRepo *repository.ReportRepository,
	configRepo *repository.MetricConfigRepository,
	reviewRepo *repository.ReviewRepository,
	nlp NLPProvider,
	aggregator ProfileAggregator,
	notifier FlagNotifier,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		reportRepo: reportRepo,
		configRepo: configRepo,
		reviewRepo: reviewRepo,
		nlp:        nlp,
		aggregator: aggregator,
		notifier:   notifier,
		log:        log,
	}
}

// NewServiceWithInterfaces creates a scoring service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	cfg *config.ScoringConfig,
	reportRepo ReportRepository,
	configRepo MetricConfigRepository,
	reviewRepo ReviewRepository,
	nlp NLPProvider,
	aggregator ProfileAggregator,
	notifier FlagNotifier,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		reportRepo: reportRepo,
		configRepo: configRepo,
		reviewRepo: reviewRepo,
		nlp:        nlp,
		aggregator: aggregator,
		notifier:   notifier,
		log:        log,
	}
}

// AnalyzeReview runs a full or quick analysis pass for a review. Full passes
// include NLP analysis; quick passes only recompute automated metrics. NLP
// failures return an error so the owning job can retry; the report keeps its
// last good state.
func (s *Service) AnalyzeReview(ctx context.Context, reviewID uint, jobType string) (*models.QualityReport, error) {
	review, err := s.reviewRepo.GetByID(reviewID)
	if err != nil {
		return nil, err
	}
	if review.Status != models.ReviewStatusSubmitted {
		return nil, fmt.Errorf("review %d is not submitted", reviewID)
	}

	report, err := s.reportRepo.GetOrCreateByReviewID(reviewID)
	if err != nil {
		return nil, err
	}

	if models.CanTransition(report.Status, models.ReportStatusAnalyzing) {
		report.Status = models.ReportStatusAnalyzing
		if err := s.reportRepo.Update(report); err != nil {
			return nil, err
		}
	}

	// Automated metrics come first; they never depend on remote calls.
	automated := s.computeAutomatedMetrics(review)
	if err := s.reportRepo.UpdateMetrics(report.ID, models.MetricTypeAutomated, automated); err != nil {
		return nil, err
	}
	report.AutomatedMetrics, _ = models.EncodeMetricBag(automated)

	if jobType == models.JobTypeFull && s.nlp != nil {
		if err := s.applyNLPAnalysis(ctx, review, report); err != nil {
			return nil, err
		}
	}

	return s.persistScore(ctx, review, report)
}

// RecomputeReport recomputes and persists the score after any relevant field
// change (metric bags, ratings). This keeps scoring reactive rather than
// one-shot.
func (s *Service) RecomputeReport(ctx context.Context, reviewID uint) (*models.QualityReport, error) {
	review, err := s.reviewRepo.GetByID(reviewID)
	if err != nil {
		return nil, err
	}
	report, err := s.reportRepo.GetByReviewID(reviewID)
	if err != nil {
		return nil, err
	}
	return s.persistScore(ctx, review, report)
}

// RecordEditorRating stores a manual editor assessment and closes the report.
func (s *Service) RecordEditorRating(ctx context.Context, reviewID uint, rating int, comments string) (*models.QualityReport, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("editor rating must be between 1 and 5, got %d", rating)
	}

	report, err := s.reportRepo.GetByReviewID(reviewID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(report.Status, models.ReportStatusEditorReviewed) {
		return nil, fmt.Errorf("report %d cannot move from %s to %s", report.ID, report.Status, models.ReportStatusEditorReviewed)
	}

	report.EditorRating = &rating
	report.EditorComments = comments
	report.Status = models.ReportStatusEditorReviewed
	if err := s.reportRepo.Update(report); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("review_id", reviewID).
		Int("rating", rating).
		Msg("Editor rating recorded")
	return report, nil
}

// computeAutomatedMetrics builds the automated metric bag for a review.
func (s *Service) computeAutomatedMetrics(review *models.Review) models.MetricBag {
	bag := models.MetricBag{
		"completeness": CalculateCompleteness(review, expectedCriteria),
		"depth":        CalculateDepth(review),
		"specificity":  CalculateSpecificity(review),
	}

	assignment, err := s.reviewRepo.GetAssignmentFor(review.ManuscriptID, review.ReviewerID)
	if err == nil {
		if timeliness, ok := CalculateTimeliness(assignment.CreatedAt, assignment.DueDate, review.SubmittedAt); ok {
			bag["timeliness"] = timeliness
		}
	}

	return bag
}

// applyNLPAnalysis calls the NLP provider and stores its metrics and flags.
func (s *Service) applyNLPAnalysis(ctx context.Context, review *models.Review, report *models.QualityReport) error {
	result, err := s.nlp.AnalyzeReview(ctx, review.CommentsToAuthor+"\n"+review.CommentsToEditor)
	if err != nil {
		return fmt.Errorf("nlp analysis for review %d failed: %w", review.ID, err)
	}

	nlpBag := models.MetricBag{
		"constructiveness": result.Constructiveness,
		"clarity":          result.Clarity,
		"professionalism":  result.Professionalism,
	}
	if err := s.reportRepo.UpdateMetrics(report.ID, models.MetricTypeNLP, nlpBag); err != nil {
		return err
	}
	report.NLPAnalysis, _ = models.EncodeMetricBag(nlpBag)
	report.SentimentCategory = result.Sentiment

	flags, _ := models.DecodeStringList(report.Flags)
	if len(result.BiasIndicators) > 0 && !report.HasFlag(models.FlagBiasSuspected) {
		flags = append(flags, models.FlagBiasSuspected)
	}
	if result.Professionalism > 0 && result.Professionalism < 0.3 && !report.HasFlag(models.FlagUnprofessionalTone) {
		flags = append(flags, models.FlagUnprofessionalTone)
	}

	report.Flags = mustEncodeList(flags)
	report.BiasIndicators = mustEncodeList(result.BiasIndicators)
	return s.reportRepo.Update(report)
}

// persistScore computes the weighted score, derives the next status, persists
// both, and fires the post-write hooks (profile aggregation, flag alerts).
func (s *Service) persistScore(ctx context.Context, review *models.Review, report *models.QualityReport) (*models.QualityReport, error) {
	configs, err := s.configRepo.GetEnabled()
	if err != nil {
		return nil, err
	}

	score, err := ComputeQualityScore(report, configs)
	if err != nil {
		return nil, err
	}

	status := DeriveStatus(report, score, s.cfg.EditorReviewThreshold)
	// Terminal editor decisions are never overwritten by automated recomputes.
	if report.Status == models.ReportStatusEditorReviewed {
		status = models.ReportStatusEditorReviewed
	}

	if err := s.reportRepo.UpdateScoreAndStatus(report.ID, score, status); err != nil {
		return nil, err
	}
	report.QualityScore = score
	previousStatus := report.Status
	report.Status = status

	if score != nil {
		prommetrics.ObserveQualityScore(*score)
	}
	prommetrics.RecordReportScored(status)

	s.log.Info().
		Uint("review_id", review.ID).
		Str("status", status).
		Msg("Quality score persisted")

	if status == models.ReportStatusFlaggedForReview && previousStatus != models.ReportStatusFlaggedForReview {
		flags, _ := models.DecodeStringList(report.Flags)
		for _, f := range flags {
			prommetrics.RecordReportFlagged(f)
		}
		if s.notifier != nil {
			s.notifier.NotifyReportFlagged(ctx, report, flags)
		}
	}

	if score != nil && s.aggregator != nil {
		if err := s.aggregator.RecomputeProfile(ctx, review.ReviewerID); err != nil {
			// Profile aggregation is derived data; log and move on.
			s.log.Error().
				Err(err).
				Uint("reviewer_id", review.ReviewerID).
				Msg("Failed to recompute reviewer profile")
		}
	}

	return report, nil
}

// mustEncodeList serializes a string list, falling back to an empty array.
func mustEncodeList(list []string) []byte {
	if list == nil {
		list = []string{}
	}
	data, err := models.EncodeStringList(list)
	if err != nil {
		return []byte("[]")
	}
	return data
}
