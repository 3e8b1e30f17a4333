// Package invitations tracks the reviewer invitation lifecycle (sent,
// delivered, opened, responded) and schedules due-date reminders for
// unanswered invitations.
package invitations

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/metrics"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	"github.com/openjournal-dev/review-quality-service/internal/service/notifications"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// SchedulePolicy decides when reminders fire for an invitation. Policies must
// not schedule reminders in the past; Track drops any it receives.
type SchedulePolicy interface {
	ReminderTimes(assignment *models.ReviewAssignment, now time.Time) []time.Time
}

// OffsetDaysPolicy schedules reminders a fixed number of days before the
// assignment due date. Assignments without a due date get no reminders.
type OffsetDaysPolicy struct {
	OffsetsDays []int
}

// ReminderTimes returns the due-date offsets that still lie in the future,
// earliest first.
func (p OffsetDaysPolicy) ReminderTimes(assignment *models.ReviewAssignment, now time.Time) []time.Time {
	if assignment == nil || assignment.DueDate == nil {
		return nil
	}
	var times []time.Time
	for _, days := range p.OffsetsDays {
		at := assignment.DueDate.AddDate(0, 0, -days)
		if at.After(now) {
			times = append(times, at)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// InvitationRepository interface for invitation and reminder persistence.
type InvitationRepository interface {
	Create(inv *models.InvitationTracking) error
	GetByID(id uint) (*models.InvitationTracking, error)
	GetByAssignment(assignmentID uint) ([]models.InvitationTracking, error)
	SetDeliveryStatus(id uint, status string) error
	SetOpenedAt(id uint, at time.Time) (bool, error)
	SetClickedAt(id uint, at time.Time) (bool, error)
	RecordResponse(id uint, responseType string, at time.Time) error
	CreateReminder(reminder *models.ReminderJob) error
	GetPendingReminders(now time.Time) ([]models.ReminderJob, error)
	MarkReminderSent(reminderID, invitationID uint, at time.Time) error
	MarkReminderSkipped(reminderID uint) error
}

// AssignmentGetter loads review assignments for reminder scheduling.
type AssignmentGetter interface {
	GetAssignment(id uint) (*models.ReviewAssignment, error)
	GetReviewer(id uint) (*models.Reviewer, error)
}

// NotificationSender dispatches reminder notifications.
type NotificationSender interface {
	Send(ctx context.Context, req *notifications.Request) (*notifications.Result, error)
}

// Service manages invitation tracking and reminder scheduling.
type Service struct {
	cfg        *config.RemindersConfig
	invRepo    InvitationRepository
	reviewRepo AssignmentGetter
	dispatcher NotificationSender
	policy     SchedulePolicy
	log        *logger.Logger
}

// NewService creates an invitation service with the configured offset policy.
func NewService(
	cfg *config.RemindersConfig,
	invRepo *repository.InvitationRepository,
	reviewRepo *repository.ReviewRepository,
	dispatcher NotificationSender,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		invRepo:    invRepo,
		reviewRepo: reviewRepo,
		dispatcher: dispatcher,
		policy:     OffsetDaysPolicy{OffsetsDays: cfg.OffsetsDays},
		log:        log,
	}
}

// NewServiceWithInterfaces creates an invitation service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	cfg *config.RemindersConfig,
	invRepo InvitationRepository,
	reviewRepo AssignmentGetter,
	dispatcher NotificationSender,
	policy SchedulePolicy,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		invRepo:    invRepo,
		reviewRepo: reviewRepo,
		dispatcher: dispatcher,
		policy:     policy,
		log:        log,
	}
}

// Track records a sent invitation and schedules its reminders from the
// assignment due date. A non-nil scheduledFor records a deferred send time
// on the ledger row; reminders still anchor to the due date.
func (s *Service) Track(ctx context.Context, assignmentID uint, recipient, templateID, subject, body string, scheduledFor *time.Time) (*models.InvitationTracking, error) {
	assignment, err := s.reviewRepo.GetAssignment(assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment %d: %w", assignmentID, err)
	}

	inv := &models.InvitationTracking{
		AssignmentID:   assignmentID,
		Recipient:      recipient,
		TemplateID:     templateID,
		Subject:        subject,
		Body:           body,
		DeliveryStatus: models.DeliveryStatusSent,
		ScheduledFor:   scheduledFor,
	}
	if err := s.invRepo.Create(inv); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, at := range s.policy.ReminderTimes(assignment, now) {
		reminder := &models.ReminderJob{
			InvitationID: inv.ID,
			ScheduledFor: at,
			Status:       models.ReminderStatusPending,
		}
		if err := s.invRepo.CreateReminder(reminder); err != nil {
			return nil, fmt.Errorf("failed to schedule reminder for invitation %d: %w", inv.ID, err)
		}
	}

	s.log.Info().
		Uint("invitation_id", inv.ID).
		Uint("assignment_id", assignmentID).
		Msg("Invitation tracked")
	return inv, nil
}

// MarkDelivered records a delivery callback from the email provider.
func (s *Service) MarkDelivered(invitationID uint) error {
	return s.invRepo.SetDeliveryStatus(invitationID, models.DeliveryStatusDelivered)
}

// MarkBounced records a bounce callback from the email provider.
func (s *Service) MarkBounced(invitationID uint) error {
	return s.invRepo.SetDeliveryStatus(invitationID, models.DeliveryStatusBounced)
}

// MarkOpened records the first open event. Later opens are no-ops; the first
// recorded timestamp never moves.
func (s *Service) MarkOpened(invitationID uint) (bool, error) {
	return s.invRepo.SetOpenedAt(invitationID, time.Now().UTC())
}

// MarkClicked records the first click event, first-event-wins like MarkOpened.
func (s *Service) MarkClicked(invitationID uint) (bool, error) {
	return s.invRepo.SetClickedAt(invitationID, time.Now().UTC())
}

// RecordResponse records the reviewer's answer and cancels any still-pending
// reminders in the same transaction. At most one response is kept.
func (s *Service) RecordResponse(invitationID uint, responseType string) error {
	if responseType != models.ResponseAccepted && responseType != models.ResponseDeclined {
		return fmt.Errorf("unknown response type: %s", responseType)
	}
	return s.invRepo.RecordResponse(invitationID, responseType, time.Now().UTC())
}

// GetInvitation returns one tracking row.
func (s *Service) GetInvitation(invitationID uint) (*models.InvitationTracking, error) {
	return s.invRepo.GetByID(invitationID)
}

// GetPendingReminders selects reminders due at now whose parent invitation is
// still unanswered. The answered check runs here, at fire time, because a
// response may land after the reminder was scheduled.
func (s *Service) GetPendingReminders(now time.Time) ([]models.ReminderJob, error) {
	return s.invRepo.GetPendingReminders(now)
}

// ProcessDueReminders fires all currently due reminders through the
// notification dispatcher. Invitations answered since the last poll are
// skipped. Returns the number of reminders sent.
func (s *Service) ProcessDueReminders(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	reminders, err := s.invRepo.GetPendingReminders(now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, reminder := range reminders {
		if err := s.fire(ctx, &reminder, now); err != nil {
			s.log.Error().
				Err(err).
				Uint("reminder_id", reminder.ID).
				Msg("Failed to process reminder")
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Service) fire(ctx context.Context, reminder *models.ReminderJob, now time.Time) error {
	inv, err := s.invRepo.GetByID(reminder.InvitationID)
	if err != nil {
		return err
	}
	if inv.HasResponded() {
		// Race with a response landing after the pending query.
		metrics.RecordReminderFired("suppressed")
		return s.invRepo.MarkReminderSkipped(reminder.ID)
	}

	req := &notifications.Request{
		Channels: []string{notifications.ChannelEmail},
		Priority: notifications.PriorityNormal,
		Email:    inv.Recipient,
		Subject:  "Reminder: review invitation awaiting your response",
		Body:     reminderBody(inv),
		Type:     "action_required",
	}
	if s.dispatcher != nil {
		if _, err := s.dispatcher.Send(ctx, req); err != nil {
			return fmt.Errorf("failed to dispatch reminder %d: %w", reminder.ID, err)
		}
	}

	if err := s.invRepo.MarkReminderSent(reminder.ID, inv.ID, now); err != nil {
		return err
	}
	metrics.RecordReminderFired("sent")
	s.log.Info().
		Uint("reminder_id", reminder.ID).
		Uint("invitation_id", inv.ID).
		Msg("Reminder sent")
	return nil
}

func reminderBody(inv *models.InvitationTracking) string {
	return fmt.Sprintf(
		"You have an open review invitation (%s) that has not been answered yet. Please accept or decline at your earliest convenience.",
		inv.Subject,
	)
}
