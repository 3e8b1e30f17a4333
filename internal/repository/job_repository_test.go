package repository

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// setupJobTestDB creates an in-memory SQLite database for testing.
func setupJobTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	err = db.AutoMigrate(&models.AnalysisJob{})
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

// enqueueTestJob inserts a queued job with a distinct queued_at so FIFO
// ordering within a priority band is observable.
func enqueueTestJob(t *testing.T, repo *JobRepository, reviewID uint, priority int, queuedAt time.Time) *models.AnalysisJob {
	t.Helper()

	job := &models.AnalysisJob{
		ReviewID:   reviewID,
		JobType:    models.JobTypeFull,
		Status:     models.JobStatusQueued,
		Priority:   priority,
		MaxRetries: 3,
		QueuedAt:   queuedAt,
	}
	if err := repo.Create(job); err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}
	return job
}

func TestJobRepository_ClaimNext_PriorityThenFIFO(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)

	base := time.Now().UTC().Add(-time.Hour)

	// Enqueue priorities [5,5,9,1] in that order.
	first5 := enqueueTestJob(t, repo, 101, 5, base)
	second5 := enqueueTestJob(t, repo, 102, 5, base.Add(time.Minute))
	high := enqueueTestJob(t, repo, 103, 9, base.Add(2*time.Minute))
	low := enqueueTestJob(t, repo, 104, 1, base.Add(3*time.Minute))

	expected := []uint{high.ID, first5.ID, second5.ID, low.ID}
	for i, want := range expected {
		job, err := repo.ClaimNext(time.Now().UTC())
		if err != nil {
			t.Fatalf("ClaimNext() #%d failed: %v", i, err)
		}
		if job.ID != want {
			t.Errorf("ClaimNext() #%d = job %d, want job %d", i, job.ID, want)
		}
		if job.Status != models.JobStatusProcessing {
			t.Errorf("Claimed job status = %q, want %q", job.Status, models.JobStatusProcessing)
		}
	}

	_, err := repo.ClaimNext(time.Now().UTC())
	if !errors.Is(err, ErrNoJob) {
		t.Errorf("ClaimNext() on empty queue = %v, want ErrNoJob", err)
	}
}

func TestJobRepository_ClaimNext_ScheduledForInvisible(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)

	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	delayed := enqueueTestJob(t, repo, 201, 9, now)
	db.Model(delayed).Update("scheduled_for", future)

	due := enqueueTestJob(t, repo, 202, 1, now)
	db.Model(due).Update("scheduled_for", past)

	job, err := repo.ClaimNext(now)
	if err != nil {
		t.Fatalf("ClaimNext() failed: %v", err)
	}
	if job.ID != due.ID {
		t.Errorf("ClaimNext() = job %d, want due job %d (future job must be invisible)", job.ID, due.ID)
	}

	_, err = repo.ClaimNext(now)
	if !errors.Is(err, ErrNoJob) {
		t.Errorf("ClaimNext() = %v, want ErrNoJob while only a future job remains", err)
	}

	// The delayed job becomes visible once its time arrives.
	job, err = repo.ClaimNext(future.Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimNext() after scheduled_for failed: %v", err)
	}
	if job.ID != delayed.ID {
		t.Errorf("ClaimNext() = job %d, want delayed job %d", job.ID, delayed.ID)
	}
}

func TestJobRepository_Complete_RequiresProcessing(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)

	job := enqueueTestJob(t, repo, 301, 5, time.Now().UTC())

	// Still queued, so completion must be rejected.
	if err := repo.Complete(job.ID, json.RawMessage(`{}`)); err == nil {
		t.Error("Complete() on a queued job should fail")
	}

	claimed, err := repo.ClaimNext(time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimNext() failed: %v", err)
	}
	if err := repo.Complete(claimed.ID, json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	got, err := repo.GetByID(claimed.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, models.JobStatusCompleted)
	}
	if got.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
}

func TestJobRepository_FailedJobNeverDequeued(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)

	job := enqueueTestJob(t, repo, 401, 5, time.Now().UTC())

	if _, err := repo.ClaimNext(time.Now().UTC()); err != nil {
		t.Fatalf("ClaimNext() failed: %v", err)
	}
	if err := repo.MarkFailed(job.ID, 3, "nlp provider unreachable"); err != nil {
		t.Fatalf("MarkFailed() failed: %v", err)
	}

	_, err := repo.ClaimNext(time.Now().UTC())
	if !errors.Is(err, ErrNoJob) {
		t.Errorf("ClaimNext() = %v, want ErrNoJob (failed jobs must never be dequeued)", err)
	}

	got, err := repo.GetByID(job.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Status != models.JobStatusFailed {
		t.Errorf("Status = %q, want %q", got.Status, models.JobStatusFailed)
	}
	if got.LastError != "nlp provider unreachable" {
		t.Errorf("LastError = %q, want the recorded error", got.LastError)
	}
}

func TestJobRepository_RequeueRestoresVisibilityAfterBackoff(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)

	job := enqueueTestJob(t, repo, 501, 5, time.Now().UTC())
	if _, err := repo.ClaimNext(time.Now().UTC()); err != nil {
		t.Fatalf("ClaimNext() failed: %v", err)
	}

	backoffUntil := time.Now().UTC().Add(30 * time.Second)
	if err := repo.Requeue(job.ID, 1, backoffUntil, "transient"); err != nil {
		t.Fatalf("Requeue() failed: %v", err)
	}

	if _, err := repo.ClaimNext(time.Now().UTC()); !errors.Is(err, ErrNoJob) {
		t.Errorf("ClaimNext() during backoff = %v, want ErrNoJob", err)
	}

	claimed, err := repo.ClaimNext(backoffUntil.Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimNext() after backoff failed: %v", err)
	}
	if claimed.ID != job.ID {
		t.Errorf("ClaimNext() = job %d, want requeued job %d", claimed.ID, job.ID)
	}
	if claimed.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", claimed.RetryCount)
	}
}

func TestJobRepository_ResetStaleProcessing(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)

	stale := enqueueTestJob(t, repo, 601, 5, time.Now().UTC().Add(-2*time.Hour))
	if _, err := repo.ClaimNext(time.Now().UTC().Add(-2 * time.Hour)); err != nil {
		t.Fatalf("ClaimNext() failed: %v", err)
	}

	fresh := enqueueTestJob(t, repo, 602, 5, time.Now().UTC())
	if _, err := repo.ClaimNext(time.Now().UTC()); err != nil {
		t.Fatalf("ClaimNext() failed: %v", err)
	}

	reset, err := repo.ResetStaleProcessing(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ResetStaleProcessing() failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("ResetStaleProcessing() = %d, want 1", reset)
	}

	gotStale, _ := repo.GetByID(stale.ID)
	if gotStale.Status != models.JobStatusQueued {
		t.Errorf("Stale job status = %q, want %q", gotStale.Status, models.JobStatusQueued)
	}
	gotFresh, _ := repo.GetByID(fresh.ID)
	if gotFresh.Status != models.JobStatusProcessing {
		t.Errorf("Fresh job status = %q, want %q", gotFresh.Status, models.JobStatusProcessing)
	}
}
