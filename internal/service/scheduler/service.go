// Package scheduler runs the recurring jobs: the reminder poll loop, daily
// queue maintenance, and the weekly quality summary for editors.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	prommetrics "github.com/openjournal-dev/review-quality-service/internal/metrics"
	"github.com/openjournal-dev/review-quality-service/internal/service/analytics"
	"github.com/openjournal-dev/review-quality-service/internal/service/notifications"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// ReminderProcessor fires due invitation reminders.
type ReminderProcessor interface {
	ProcessDueReminders(ctx context.Context) (int, error)
}

// QueueMaintainer exposes the queue housekeeping operations.
type QueueMaintainer interface {
	PublishDepthMetrics()
}

// StaleJobResetter returns jobs stuck in processing to the queue.
type StaleJobResetter interface {
	ResetStaleProcessing(cutoff time.Time) (int64, error)
}

// SummarySource provides the rollups included in the weekly summary.
type SummarySource interface {
	QualityOverview(ctx context.Context) (*analytics.QualityOverview, error)
	Leaderboard(ctx context.Context, limit int) ([]analytics.LeaderboardEntry, error)
}

// SummarySender delivers the weekly summary notification.
type SummarySender interface {
	Send(ctx context.Context, req *notifications.Request) (*notifications.Result, error)
}

// Service owns the cron schedule.
type Service struct {
	config    *config.Config
	reminders ReminderProcessor
	queue     QueueMaintainer
	jobs      StaleJobResetter
	summaries SummarySource
	sender    SummarySender
	log       *logger.Logger
	cron      *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	reminders ReminderProcessor,
	queue QueueMaintainer,
	jobs StaleJobResetter,
	summaries SummarySource,
	sender SummarySender,
	log *logger.Logger,
) *Service {
	return &Service{
		config:    cfg,
		reminders: reminders,
		queue:     queue,
		jobs:      jobs,
		summaries: summaries,
		sender:    sender,
		log:       log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := time.LoadLocation(s.config.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	pollExpr := fmt.Sprintf("*/%d * * * *", s.pollIntervalMinutes())
	if _, err := s.cron.AddFunc(pollExpr, func() {
		s.RunReminderPoll(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register reminder poll job: %w", err)
	}

	maintenanceExpr, err := buildDailyCronExpression(s.config.Scheduler.MaintenanceTime)
	if err != nil {
		return fmt.Errorf("failed to build maintenance cron expression: %w", err)
	}
	if _, err := s.cron.AddFunc(maintenanceExpr, func() {
		s.RunDailyMaintenance(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register daily maintenance job: %w", err)
	}

	if s.config.Scheduler.WeeklySummaryCron != "" {
		if _, err := s.cron.AddFunc(s.config.Scheduler.WeeklySummaryCron, func() {
			s.RunWeeklySummary(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register weekly summary job: %w", err)
		}
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("reminder_poll", pollExpr).
		Str("maintenance", maintenanceExpr).
		Str("weekly_summary", s.config.Scheduler.WeeklySummaryCron).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

func (s *Service) pollIntervalMinutes() int {
	interval := s.config.Reminders.PollInterval
	if interval <= 0 || interval > 59 {
		interval = 5
	}
	return interval
}

// buildDailyCronExpression converts an "HH:MM" time into a daily cron expression.
func buildDailyCronExpression(at string) (string, error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", at)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// RunReminderPoll fires all due invitation reminders.
func (s *Service) RunReminderPoll(ctx context.Context) {
	start := time.Now()
	defer prommetrics.SetSchedulerLastRun("reminder_poll")

	sent, err := s.reminders.ProcessDueReminders(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Reminder poll failed")
		return
	}

	if sent > 0 {
		s.log.Info().
			Int("sent", sent).
			Dur("duration", time.Since(start)).
			Msg("Reminder poll completed")
	}
}

// RunDailyMaintenance returns stale processing jobs to the queue and
// refreshes the queue depth gauges. Completed and failed jobs are kept for
// audit, nothing is pruned.
func (s *Service) RunDailyMaintenance(ctx context.Context) {
	start := time.Now()
	defer prommetrics.SetSchedulerLastRun("daily_maintenance")

	s.log.Info().Msg("Running daily maintenance job")

	staleAfter := time.Duration(s.config.Queue.StaleProcessingAfter) * time.Minute
	cutoff := time.Now().UTC().Add(-staleAfter)
	reset, err := s.jobs.ResetStaleProcessing(cutoff)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Daily maintenance failed")
		return
	}

	s.queue.PublishDepthMetrics()

	s.log.Info().
		Int64("stale_jobs_reset", reset).
		Dur("duration", time.Since(start)).
		Msg("Daily maintenance completed")
}

// RunWeeklySummary emails the quality overview and leaderboard to the
// configured editor addresses.
func (s *Service) RunWeeklySummary(ctx context.Context) {
	start := time.Now()
	defer prommetrics.SetSchedulerLastRun("weekly_summary")

	recipients := s.config.Notifications.SummaryRecipients
	if len(recipients) == 0 {
		s.log.Debug().Msg("No weekly summary recipients configured")
		return
	}

	overview, err := s.summaries.QualityOverview(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Weekly summary failed to build quality overview")
		return
	}
	leaders, err := s.summaries.Leaderboard(ctx, 10)
	if err != nil {
		s.log.Error().Err(err).Msg("Weekly summary failed to build leaderboard")
		return
	}

	body := formatWeeklySummary(overview, leaders)
	sent := 0
	for _, recipient := range recipients {
		req := &notifications.Request{
			Channels: []string{notifications.ChannelEmail},
			Priority: notifications.PriorityNormal,
			Email:    recipient,
			Subject:  "Weekly review quality summary",
			Body:     body,
			Type:     "info",
		}
		if _, err := s.sender.Send(ctx, req); err != nil {
			s.log.Error().Err(err).Str("recipient", recipient).Msg("Failed to send weekly summary")
			continue
		}
		sent++
	}

	s.log.Info().
		Int("recipients", sent).
		Dur("duration", time.Since(start)).
		Msg("Weekly summary completed")
}

// formatWeeklySummary renders the summary email body.
func formatWeeklySummary(overview *analytics.QualityOverview, leaders []analytics.LeaderboardEntry) string {
	var b strings.Builder
	b.WriteString("Review quality summary\n\n")
	b.WriteString("Score distribution:\n")
	for _, bucket := range []string{"excellent", "good", "acceptable", "poor"} {
		fmt.Fprintf(&b, "  %s: %d\n", bucket, overview.ScoreDistribution[bucket])
	}
	fmt.Fprintf(&b, "\nReports scored this week: %d\n", overview.ScoredLast7Days)
	fmt.Fprintf(&b, "Reports pending analysis: %d\n", overview.PendingAnalysis)
	fmt.Fprintf(&b, "Reports flagged for review: %d\n", overview.FlaggedForReview)
	fmt.Fprintf(&b, "Failed analysis jobs: %d\n", overview.FailedJobs)

	if len(leaders) > 0 {
		b.WriteString("\nTop reviewers:\n")
		for i, entry := range leaders {
			fmt.Fprintf(&b, "  %d. %s (avg %.2f over %d reports, %s)\n",
				i+1, entry.Name, entry.AverageScore, entry.TotalReports, entry.Trend)
		}
	}
	return b.String()
}
