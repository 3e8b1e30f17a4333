package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/metrics"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Handler processes one claimed job and returns its result document.
type Handler func(ctx context.Context, job *models.AnalysisJob) ([]byte, error)

// Pool runs a fixed set of workers that poll the queue and dispatch jobs to
// registered handlers by job type.
type Pool struct {
	svc      *Service
	workers  int
	interval time.Duration
	log      *logger.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool over the queue service.
func NewPool(svc *Service, log *logger.Logger) *Pool {
	workers := svc.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	interval := time.Duration(svc.cfg.PollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Pool{
		svc:      svc,
		workers:  workers,
		interval: interval,
		log:      log.Component("queue-pool"),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job type. Jobs of unregistered types fail.
func (p *Pool) Register(jobType string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = handler
}

// Start launches the workers. They run until Stop is called or the parent
// context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.log.Info().Int("workers", p.workers).Msg("Worker pool started")
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info().Msg("Worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		// Drain available jobs before sleeping again.
		for {
			if ctx.Err() != nil {
				return
			}
			job, err := p.svc.DequeueNext()
			if errors.Is(err, repository.ErrNoJob) {
				break
			}
			if err != nil {
				p.log.Error().Err(err).Int("worker", id).Msg("Failed to claim job")
				break
			}
			p.process(ctx, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) process(ctx context.Context, job *models.AnalysisJob) {
	p.mu.RLock()
	handler, ok := p.handlers[job.JobType]
	p.mu.RUnlock()

	if !ok {
		if err := p.svc.Fail(job.ID, fmt.Errorf("no handler registered for job type %s", job.JobType)); err != nil {
			p.log.Error().Err(err).Uint("job_id", job.ID).Msg("Failed to record job failure")
		}
		return
	}

	start := time.Now()
	result, err := handler(ctx, job)
	metrics.ObserveJobDuration(job.JobType, time.Since(start).Seconds())

	if err != nil {
		if failErr := p.svc.Fail(job.ID, err); failErr != nil {
			p.log.Error().Err(failErr).Uint("job_id", job.ID).Msg("Failed to record job failure")
		}
		return
	}
	if err := p.svc.Complete(job.ID, result); err != nil {
		p.log.Error().Err(err).Uint("job_id", job.ID).Msg("Failed to complete job")
	}
}
