// Package queue provides the persistent analysis job queue and its worker
// pool. Jobs are stored in the database so they survive restarts; workers
// claim them atomically and retry transient failures with exponential backoff.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/metrics"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// JobRepository interface for job persistence.
type JobRepository interface {
	Create(job *models.AnalysisJob) error
	GetByID(id uint) (*models.AnalysisJob, error)
	ClaimNext(now time.Time) (*models.AnalysisJob, error)
	Complete(jobID uint, result json.RawMessage) error
	Requeue(jobID uint, retryCount int, scheduledFor time.Time, lastError string) error
	MarkFailed(jobID uint, retryCount int, lastError string) error
	CountByStatus(status string) (int64, error)
	ListFailed(limit int) ([]models.AnalysisJob, error)
}

// ReviewLister selects review IDs for batch enqueueing.
type ReviewLister interface {
	ListSubmitted(manuscriptID *uint) ([]models.Review, error)
}

// Service manages the analysis job queue.
type Service struct {
	cfg     *config.QueueConfig
	jobRepo JobRepository
	reviews ReviewLister
	log     *logger.Logger
}

// NewService creates a new queue service.
func NewService(cfg *config.QueueConfig, jobRepo *repository.JobRepository, reviews *repository.ReviewRepository, log *logger.Logger) *Service {
	return &Service{
		cfg:     cfg,
		jobRepo: jobRepo,
		reviews: reviews,
		log:     log,
	}
}

// NewServiceWithInterfaces creates a queue service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(cfg *config.QueueConfig, jobRepo JobRepository, reviews ReviewLister, log *logger.Logger) *Service {
	return &Service{
		cfg:     cfg,
		jobRepo: jobRepo,
		reviews: reviews,
		log:     log,
	}
}

// Enqueue creates a queued job for immediate pickup.
func (s *Service) Enqueue(reviewID uint, jobType string, priority int) (*models.AnalysisJob, error) {
	return s.enqueue(reviewID, jobType, priority, nil, nil)
}

// EnqueueAt creates a job invisible to workers until scheduledFor.
func (s *Service) EnqueueAt(reviewID uint, jobType string, priority int, scheduledFor time.Time) (*models.AnalysisJob, error) {
	return s.enqueue(reviewID, jobType, priority, &scheduledFor, nil)
}

// EnqueuePayload creates a job carrying an opaque payload instead of a review
// reference. Used for deferred notification dispatch.
func (s *Service) EnqueuePayload(jobType string, priority int, payload json.RawMessage, scheduledFor *time.Time) (*models.AnalysisJob, error) {
	return s.enqueue(0, jobType, priority, scheduledFor, payload)
}

func (s *Service) enqueue(reviewID uint, jobType string, priority int, scheduledFor *time.Time, payload json.RawMessage) (*models.AnalysisJob, error) {
	if priority < models.MinJobPriority || priority > models.MaxJobPriority {
		return nil, fmt.Errorf("priority %d out of range [%d,%d]", priority, models.MinJobPriority, models.MaxJobPriority)
	}
	switch jobType {
	case models.JobTypeFull, models.JobTypeQuick, models.JobTypeConsistency, models.JobTypeNotify:
	default:
		return nil, fmt.Errorf("unknown job type: %s", jobType)
	}

	job := &models.AnalysisJob{
		ReviewID:     reviewID,
		JobType:      jobType,
		Payload:      payload,
		Status:       models.JobStatusQueued,
		Priority:     priority,
		MaxRetries:   s.cfg.MaxRetries,
		QueuedAt:     time.Now().UTC(),
		ScheduledFor: scheduledFor,
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}

	metrics.RecordJobEnqueued(jobType)
	s.log.Debug().
		Uint("job_id", job.ID).
		Str("job_type", jobType).
		Int("priority", priority).
		Msg("Job enqueued")
	return job, nil
}

// BatchEnqueue creates full-analysis jobs for all submitted reviews, optionally
// filtered to one manuscript, at the configured batch priority. Returns the
// created job IDs.
func (s *Service) BatchEnqueue(manuscriptID *uint) ([]uint, error) {
	reviews, err := s.reviews.ListSubmitted(manuscriptID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(reviews))
	for _, rev := range reviews {
		job, err := s.Enqueue(rev.ID, models.JobTypeFull, s.cfg.BatchPriority)
		if err != nil {
			return ids, fmt.Errorf("batch enqueue stopped at review %d: %w", rev.ID, err)
		}
		ids = append(ids, job.ID)
	}

	s.log.Info().Int("count", len(ids)).Msg("Batch analysis enqueued")
	return ids, nil
}

// DequeueNext atomically claims the next runnable job: highest priority first,
// oldest first within a priority, jobs scheduled for the future excluded.
func (s *Service) DequeueNext() (*models.AnalysisJob, error) {
	return s.jobRepo.ClaimNext(time.Now().UTC())
}

// Complete marks a processing job as done with its result document.
func (s *Service) Complete(jobID uint, result json.RawMessage) error {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return err
	}
	if err := s.jobRepo.Complete(jobID, result); err != nil {
		return err
	}
	metrics.RecordJobProcessed(job.JobType, models.JobStatusCompleted)
	return nil
}

// Fail records a job failure. Below the retry cap the job is re-queued with
// exponential backoff; at the cap it becomes terminally failed with the last
// error preserved.
func (s *Service) Fail(jobID uint, jobErr error) error {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return err
	}

	retryCount := job.RetryCount + 1
	if retryCount <= job.MaxRetries {
		delay := s.cfg.Backoff(retryCount)
		scheduledFor := time.Now().UTC().Add(delay)
		if err := s.jobRepo.Requeue(jobID, retryCount, scheduledFor, jobErr.Error()); err != nil {
			return err
		}
		metrics.RecordJobRetry(job.JobType)
		s.log.Warn().
			Uint("job_id", jobID).
			Int("retry", retryCount).
			Dur("backoff", delay).
			Err(jobErr).
			Msg("Job re-queued after failure")
		return nil
	}

	// The stored retry count stays clamped at max_retries.
	if err := s.jobRepo.MarkFailed(jobID, job.MaxRetries, jobErr.Error()); err != nil {
		return err
	}
	metrics.RecordJobProcessed(job.JobType, models.JobStatusFailed)
	s.log.Error().
		Uint("job_id", jobID).
		Int("retries", job.MaxRetries).
		Err(jobErr).
		Msg("Job failed permanently")
	return nil
}

// JobStatus returns a job for status polling.
func (s *Service) JobStatus(jobID uint) (*models.AnalysisJob, error) {
	return s.jobRepo.GetByID(jobID)
}

// FailedJobs lists recent terminally failed jobs for operator review.
func (s *Service) FailedJobs(limit int) ([]models.AnalysisJob, error) {
	return s.jobRepo.ListFailed(limit)
}

// PublishDepthMetrics refreshes the queue depth gauges.
func (s *Service) PublishDepthMetrics() {
	for _, status := range []string{models.JobStatusQueued, models.JobStatusProcessing, models.JobStatusFailed} {
		count, err := s.jobRepo.CountByStatus(status)
		if err != nil {
			continue
		}
		metrics.SetQueueDepth(status, int(count))
	}
}
