package consistency

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// ErrInsufficientReviews is returned when a manuscript has fewer than two
// submitted reviews. No ConsistencyScore row is written in that case.
var ErrInsufficientReviews = errors.New("manuscript has fewer than two submitted reviews")

// ReviewRepository interface for review reads.
type ReviewRepository interface {
	GetSubmittedByManuscript(manuscriptID uint) ([]models.Review, error)
}

// ConsistencyRepository interface for consistency score persistence.
type ConsistencyRepository interface {
	GetByManuscript(manuscriptID uint) (*models.ConsistencyScore, error)
	Upsert(score *models.ConsistencyScore) error
}

// ReportUpdater writes per-review consistency metrics back onto quality reports.
type ReportUpdater interface {
	GetByReviewID(reviewID uint) (*models.QualityReport, error)
	UpdateMetrics(reportID uint, metricType string, bag models.MetricBag) error
}

// ScoreRecomputer re-derives a report's weighted score after its metric bags change.
type ScoreRecomputer interface {
	RecomputeReport(ctx context.Context, reviewID uint) (*models.QualityReport, error)
}

// Service computes and persists cross-reviewer consistency for manuscripts.
type Service struct {
	cfg        *config.ConsistencyConfig
	reviewRepo ReviewRepository
	scoreRepo  ConsistencyRepository
	reportRepo ReportUpdater
	recomputer ScoreRecomputer
	log        *logger.Logger

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewService creates a new consistency service.
func NewService(
	cfg *config.ConsistencyConfig,
	reviewRepo *repository.ReviewRepository,
	scoreRepo *repository.ConsistencyRepository,
	reportRepo *repository.ReportRepository,
	recomputer ScoreRecomputer,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		reviewRepo: reviewRepo,
		scoreRepo:  scoreRepo,
		reportRepo: reportRepo,
		recomputer: recomputer,
		log:        log,
		locks:      make(map[uint]*sync.Mutex),
	}
}

// NewServiceWithInterfaces creates a consistency service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	cfg *config.ConsistencyConfig,
	reviewRepo ReviewRepository,
	scoreRepo ConsistencyRepository,
	reportRepo ReportUpdater,
	recomputer ScoreRecomputer,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		reviewRepo: reviewRepo,
		scoreRepo:  scoreRepo,
		reportRepo: reportRepo,
		recomputer: recomputer,
		log:        log,
		locks:      make(map[uint]*sync.Mutex),
	}
}

// manuscriptLock returns the per-manuscript mutex, creating it on first use.
// Recomputations for the same manuscript serialize; different manuscripts
// proceed in parallel.
func (s *Service) manuscriptLock(manuscriptID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[manuscriptID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[manuscriptID] = lock
	}
	return lock
}

// Analyze recomputes the consistency score for a manuscript from its full
// set of submitted reviews and overwrites the stored row. With fewer than
// two submitted reviews it returns ErrInsufficientReviews and writes nothing.
func (s *Service) Analyze(ctx context.Context, manuscriptID uint) (*models.ConsistencyScore, error) {
	lock := s.manuscriptLock(manuscriptID)
	lock.Lock()
	defer lock.Unlock()

	reviews, err := s.reviewRepo.GetSubmittedByManuscript(manuscriptID)
	if err != nil {
		return nil, err
	}
	if len(reviews) < 2 {
		return nil, fmt.Errorf("%w: manuscript %d has %d submitted", ErrInsufficientReviews, manuscriptID, len(reviews))
	}

	score := s.computeScore(manuscriptID, reviews)
	if err := s.scoreRepo.Upsert(score); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("manuscript_id", manuscriptID).
		Int("review_count", score.ReviewCount).
		Float64("overall_consistency", score.OverallConsistency).
		Msg("Consistency score recomputed")

	s.updateReportMetrics(ctx, reviews, score)
	return score, nil
}

// GetScore returns the stored consistency score for a manuscript.
func (s *Service) GetScore(manuscriptID uint) (*models.ConsistencyScore, error) {
	return s.scoreRepo.GetByManuscript(manuscriptID)
}

// computeScore runs the full statistics pass over the review set.
func (s *Service) computeScore(manuscriptID uint, reviews []models.Review) *models.ConsistencyScore {
	pairs, overall := buildAgreementMatrix(reviews)
	recVariance := populationVariance(recommendationOrdinals(reviews))
	scoreVariance := populationVariance(numericScores(reviews))

	variances := criterionVariances(reviews)
	var divergent, consensus []string
	for name, v := range variances {
		if v >= s.cfg.DivergenceThreshold {
			divergent = append(divergent, name)
		} else if v <= s.cfg.ConsensusThreshold {
			consensus = append(consensus, name)
		}
	}
	if recVariance >= s.cfg.DivergenceThreshold {
		divergent = append(divergent, "recommendation")
	} else if recVariance <= s.cfg.ConsensusThreshold {
		consensus = append(consensus, "recommendation")
	}

	matrixJSON, _ := encodePairs(pairs)
	divergentJSON, _ := models.EncodeStringList(sorted(divergent))
	consensusJSON, _ := models.EncodeStringList(sorted(consensus))

	return &models.ConsistencyScore{
		ManuscriptID:           manuscriptID,
		OverallConsistency:     overall,
		RecommendationVariance: round2(recVariance),
		ScoreVariance:          round2(scoreVariance),
		AgreementMatrix:        matrixJSON,
		DivergentAreas:         divergentJSON,
		ConsensusAreas:         consensusJSON,
		InterRaterReliability:  interRaterReliability(recVariance),
		CohensKappa:            meanKappa(reviews),
		ReviewCount:            len(reviews),
		ComputedAt:             time.Now().UTC(),
	}
}

// updateReportMetrics writes per-review consistency metrics onto each review's
// quality report and triggers a score recompute. Failures here are logged and
// do not fail the analysis; the manuscript row is already persisted.
func (s *Service) updateReportMetrics(ctx context.Context, reviews []models.Review, score *models.ConsistencyScore) {
	if s.reportRepo == nil {
		return
	}
	for _, rev := range reviews {
		report, err := s.reportRepo.GetByReviewID(rev.ID)
		if err != nil {
			continue
		}
		bag := models.MetricBag{
			"recommendation_alignment": recommendationAlignment(rev, reviews),
			"internal_consistency":     internalConsistency(rev),
			"cross_reviewer_variance":  interRaterReliability(score.RecommendationVariance),
		}
		if err := s.reportRepo.UpdateMetrics(report.ID, models.MetricTypeConsistency, bag); err != nil {
			s.log.Error().Err(err).Uint("review_id", rev.ID).Msg("Failed to update consistency metrics")
			continue
		}
		if s.recomputer != nil {
			if _, err := s.recomputer.RecomputeReport(ctx, rev.ID); err != nil {
				s.log.Error().Err(err).Uint("review_id", rev.ID).Msg("Failed to recompute report score")
			}
		}
	}
}

// numericScores collects the mean criteria score of each review that has any.
func numericScores(reviews []models.Review) []float64 {
	var out []float64
	for _, rev := range reviews {
		scores, err := models.DecodeMetricBag(rev.CriteriaScores)
		if err != nil || len(scores) == 0 {
			continue
		}
		var sum float64
		for _, v := range scores {
			sum += v
		}
		out = append(out, sum/float64(len(scores)))
	}
	return out
}

// recommendationAlignment is this review's mean recommendation agreement with
// the other reviews of the same manuscript.
func recommendationAlignment(rev models.Review, all []models.Review) float64 {
	ord, ok := models.RecommendationOrdinal[rev.Recommendation]
	if !ok {
		return 0
	}
	var sum float64
	n := 0
	for _, other := range all {
		if other.ID == rev.ID {
			continue
		}
		otherOrd, ok := models.RecommendationOrdinal[other.Recommendation]
		if !ok {
			continue
		}
		sum += 1 - math.Abs(ord-otherOrd)/ordinalSpan
		n++
	}
	if n == 0 {
		return 0
	}
	return round2(sum / float64(n))
}

// internalConsistency measures how well a review's recommendation matches its
// own mean criteria score. Both live on comparable 1..5 scales.
func internalConsistency(rev models.Review) float64 {
	ord, ok := models.RecommendationOrdinal[rev.Recommendation]
	if !ok {
		return 0
	}
	scores, err := models.DecodeMetricBag(rev.CriteriaScores)
	if err != nil || len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	mean := sum / float64(len(scores))
	c := 1 - math.Abs(mean-ord)/criteriaSpan
	if c < 0 {
		c = 0
	}
	return round2(c)
}
