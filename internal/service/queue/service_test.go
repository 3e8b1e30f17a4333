package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Mock job repository for testing
type mockJobRepository struct {
	jobs      map[uint]*models.AnalysisJob
	nextID    uint
	requeues  []requeueCall
	failed    []failCall
	completed []uint
}

type failCall struct {
	jobID      uint
	retryCount int
}

type requeueCall struct {
	jobID        uint
	retryCount   int
	scheduledFor time.Time
	lastError    string
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{jobs: make(map[uint]*models.AnalysisJob)}
}

func (m *mockJobRepository) Create(job *models.AnalysisJob) error {
	m.nextID++
	job.ID = m.nextID
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) GetByID(id uint) (*models.AnalysisJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return job, nil
}

func (m *mockJobRepository) ClaimNext(now time.Time) (*models.AnalysisJob, error) {
	return nil, repository.ErrNoJob
}

func (m *mockJobRepository) Complete(jobID uint, result json.RawMessage) error {
	m.completed = append(m.completed, jobID)
	return nil
}

func (m *mockJobRepository) Requeue(jobID uint, retryCount int, scheduledFor time.Time, lastError string) error {
	m.requeues = append(m.requeues, requeueCall{jobID, retryCount, scheduledFor, lastError})
	return nil
}

func (m *mockJobRepository) MarkFailed(jobID uint, retryCount int, lastError string) error {
	m.failed = append(m.failed, failCall{jobID, retryCount})
	return nil
}

func (m *mockJobRepository) CountByStatus(status string) (int64, error) { return 0, nil }

func (m *mockJobRepository) ListFailed(limit int) ([]models.AnalysisJob, error) { return nil, nil }

type mockReviewLister struct {
	reviews []models.Review
}

func (m *mockReviewLister) ListSubmitted(manuscriptID *uint) ([]models.Review, error) {
	if manuscriptID == nil {
		return m.reviews, nil
	}
	var filtered []models.Review
	for _, rev := range m.reviews {
		if rev.ManuscriptID == *manuscriptID {
			filtered = append(filtered, rev)
		}
	}
	return filtered, nil
}

func queueTestConfig() *config.QueueConfig {
	return &config.QueueConfig{
		Workers:       2,
		MaxRetries:    3,
		BackoffBase:   30,
		BackoffCap:    3600,
		BatchPriority: 3,
	}
}

func newTestQueue(repo JobRepository, reviews ReviewLister) *Service {
	return NewServiceWithInterfaces(queueTestConfig(), repo, reviews, logger.Nop())
}

func TestEnqueue_ValidatesPriorityAndType(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestQueue(repo, nil)

	if _, err := svc.Enqueue(1, models.JobTypeFull, 11); err == nil {
		t.Error("Enqueue() accepted priority 11, want range error")
	}
	if _, err := svc.Enqueue(1, models.JobTypeFull, 0); err == nil {
		t.Error("Enqueue() accepted priority 0, want range error")
	}
	if _, err := svc.Enqueue(1, "sentiment_sweep", 5); err == nil {
		t.Error("Enqueue() accepted unknown job type")
	}
	if len(repo.jobs) != 0 {
		t.Errorf("Invalid enqueues persisted %d jobs, want 0", len(repo.jobs))
	}

	job, err := svc.Enqueue(1, models.JobTypeQuick, 5)
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("Job status = %s, want %s", job.Status, models.JobStatusQueued)
	}
	if job.MaxRetries != 3 {
		t.Errorf("Job max retries = %d, want configured 3", job.MaxRetries)
	}
}

func TestFail_RequeuesWithBackoffBelowCap(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestQueue(repo, nil)

	job, err := svc.Enqueue(1, models.JobTypeFull, 5)
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	job.RetryCount = 1

	before := time.Now().UTC()
	if err := svc.Fail(job.ID, errors.New("nlp timeout")); err != nil {
		t.Fatalf("Fail() failed: %v", err)
	}

	if len(repo.failed) != 0 {
		t.Fatal("Job marked terminally failed below the retry cap")
	}
	if len(repo.requeues) != 1 {
		t.Fatalf("Expected one requeue, got %d", len(repo.requeues))
	}

	call := repo.requeues[0]
	if call.retryCount != 2 {
		t.Errorf("Requeue retry count = %d, want 2", call.retryCount)
	}
	if !strings.Contains(call.lastError, "nlp timeout") {
		t.Errorf("Requeue last error = %q, want the failure message preserved", call.lastError)
	}

	// Second attempt backs off 30s * 2 = 60s.
	wantDelay := 60 * time.Second
	gotDelay := call.scheduledFor.Sub(before)
	if gotDelay < wantDelay-time.Second || gotDelay > wantDelay+time.Second {
		t.Errorf("Requeue backoff = %v, want ~%v", gotDelay, wantDelay)
	}
}

func TestFail_MarksFailedAtRetryCap(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestQueue(repo, nil)

	job, err := svc.Enqueue(1, models.JobTypeFull, 5)
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	job.RetryCount = 3

	if err := svc.Fail(job.ID, errors.New("still broken")); err != nil {
		t.Fatalf("Fail() failed: %v", err)
	}

	if len(repo.requeues) != 0 {
		t.Error("Job re-queued past the retry cap")
	}
	if len(repo.failed) != 1 || repo.failed[0].jobID != job.ID {
		t.Errorf("Failed jobs = %v, want [%d]", repo.failed, job.ID)
	}
	if got := repo.failed[0].retryCount; got != job.MaxRetries {
		t.Errorf("Stored retry count = %d, want clamped at %d", got, job.MaxRetries)
	}
}

func TestEnqueueAt_KeepsScheduledFor(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestQueue(repo, nil)

	when := time.Now().UTC().Add(2 * time.Hour)
	job, err := svc.EnqueueAt(1, models.JobTypeFull, 5, when)
	if err != nil {
		t.Fatalf("EnqueueAt() failed: %v", err)
	}
	if job.ScheduledFor == nil || !job.ScheduledFor.Equal(when) {
		t.Errorf("ScheduledFor = %v, want %v", job.ScheduledFor, when)
	}
}

func TestBatchEnqueue_FiltersByManuscript(t *testing.T) {
	repo := newMockJobRepository()
	lister := &mockReviewLister{reviews: []models.Review{
		{ID: 1, ManuscriptID: 1},
		{ID: 2, ManuscriptID: 1},
		{ID: 3, ManuscriptID: 2},
	}}
	svc := newTestQueue(repo, lister)

	manuscriptID := uint(1)
	ids, err := svc.BatchEnqueue(&manuscriptID)
	if err != nil {
		t.Fatalf("BatchEnqueue() failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("BatchEnqueue() created %d jobs, want 2", len(ids))
	}
	for _, id := range ids {
		job := repo.jobs[id]
		if job.JobType != models.JobTypeFull {
			t.Errorf("Batch job type = %s, want %s", job.JobType, models.JobTypeFull)
		}
		if job.Priority != 3 {
			t.Errorf("Batch job priority = %d, want configured 3", job.Priority)
		}
	}

	ids, err = svc.BatchEnqueue(nil)
	if err != nil {
		t.Fatalf("BatchEnqueue(nil) failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("BatchEnqueue(nil) created %d jobs, want 3", len(ids))
	}
}
