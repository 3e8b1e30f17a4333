package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// ErrNoJob indicates that no claimable job is currently available.
var ErrNoJob = errors.New("no job available")

// claimAttempts bounds how often a worker retries after losing a claim race.
const claimAttempts = 5

// JobRepository handles analysis job queue database operations.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new queued job.
func (r *JobRepository) Create(job *models.AnalysisJob) error {
	if err := r.db.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create analysis job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *JobRepository) GetByID(id uint) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := r.db.First(&job, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get analysis job %d: %w", id, err)
	}
	return &job, nil
}

// ClaimNext atomically claims the next due job: highest priority first, FIFO
// within a priority band, jobs with a future scheduled_for excluded. The
// claim is a conditional update on the queued status so that concurrent
// workers never process the same job.
func (r *JobRepository) ClaimNext(now time.Time) (*models.AnalysisJob, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		var job models.AnalysisJob
		err := r.db.Where("status = ?", models.JobStatusQueued).
			Where("scheduled_for IS NULL OR scheduled_for <= ?", now).
			Order("priority DESC, queued_at ASC").
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoJob
			}
			return nil, fmt.Errorf("failed to find next job: %w", err)
		}

		res := r.db.Model(&models.AnalysisJob{}).
			Where("id = ? AND status = ?", job.ID, models.JobStatusQueued).
			Updates(map[string]interface{}{
				"status":     models.JobStatusProcessing,
				"started_at": now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to claim job %d: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			job.Status = models.JobStatusProcessing
			startedAt := now
			job.StartedAt = &startedAt
			return &job, nil
		}
		// Lost the claim race to another worker, look for the next candidate.
	}
	return nil, ErrNoJob
}

// Complete marks a processing job completed with its result payload.
func (r *JobRepository) Complete(jobID uint, result json.RawMessage) error {
	now := time.Now()
	res := r.db.Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCompleted,
			"completed_at": now,
			"result":       result,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %d is not in processing state", jobID)
	}
	return nil
}

// Requeue re-queues a failed attempt with an incremented retry count and a
// backoff delay.
func (r *JobRepository) Requeue(jobID uint, retryCount int, scheduledFor time.Time, lastError string) error {
	res := r.db.Model(&models.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":        models.JobStatusQueued,
			"retry_count":   retryCount,
			"scheduled_for": scheduledFor,
			"started_at":    nil,
			"last_error":    lastError,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to requeue job %d: %w", jobID, res.Error)
	}
	return nil
}

// MarkFailed marks a job terminally failed, keeping the full error detail
// for operators.
func (r *JobRepository) MarkFailed(jobID uint, retryCount int, lastError string) error {
	now := time.Now()
	res := r.db.Model(&models.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       models.JobStatusFailed,
			"retry_count":  retryCount,
			"completed_at": now,
			"last_error":   lastError,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark job %d failed: %w", jobID, res.Error)
	}
	return nil
}

// CountByStatus returns the number of jobs in a given status.
func (r *JobRepository) CountByStatus(status string) (int64, error) {
	var count int64
	if err := r.db.Model(&models.AnalysisJob{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count jobs by status %s: %w", status, err)
	}
	return count, nil
}

// ListFailed lists terminally failed jobs, newest first.
func (r *JobRepository) ListFailed(limit int) ([]models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	err := r.db.Where("status = ?", models.JobStatusFailed).
		Order("completed_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	return jobs, nil
}

// ResetStaleProcessing re-queues jobs stuck in processing longer than the
// cutoff (e.g. after a worker crash). Returns the number of jobs reset.
func (r *JobRepository) ResetStaleProcessing(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.AnalysisJob{}).
		Where("status = ? AND started_at < ?", models.JobStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":     models.JobStatusQueued,
			"started_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset stale processing jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
