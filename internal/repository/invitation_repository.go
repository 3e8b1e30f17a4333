package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// InvitationRepository handles invitation tracking and reminder job database operations.
type InvitationRepository struct {
	db *DB
}

// NewInvitationRepository creates a new invitation repository.
func NewInvitationRepository(db *DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create inserts a new invitation tracking row.
func (r *InvitationRepository) Create(inv *models.InvitationTracking) error {
	if err := r.db.Create(inv).Error; err != nil {
		return fmt.Errorf("failed to create invitation tracking: %w", err)
	}
	return nil
}

// GetByID retrieves an invitation tracking row.
func (r *InvitationRepository) GetByID(id uint) (*models.InvitationTracking, error) {
	var inv models.InvitationTracking
	if err := r.db.Preload("Assignment").First(&inv, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get invitation %d: %w", id, err)
	}
	return &inv, nil
}

// GetByAssignment retrieves the tracking rows for an assignment, newest first.
func (r *InvitationRepository) GetByAssignment(assignmentID uint) ([]models.InvitationTracking, error) {
	var invs []models.InvitationTracking
	err := r.db.Where("assignment_id = ?", assignmentID).
		Order("created_at DESC").
		Find(&invs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get invitations for assignment %d: %w", assignmentID, err)
	}
	return invs, nil
}

// SetDeliveryStatus updates the delivery status from a transport callback.
func (r *InvitationRepository) SetDeliveryStatus(id uint, status string) error {
	res := r.db.Model(&models.InvitationTracking{}).Where("id = ?", id).Update("delivery_status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set delivery status for invitation %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("invitation %d not found", id)
	}
	return nil
}

// SetOpenedAt records the first open. The conditional update makes the
// operation idempotent: only an unset opened_at is written (first-open wins).
func (r *InvitationRepository) SetOpenedAt(id uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.InvitationTracking{}).
		Where("id = ? AND opened_at IS NULL", id).
		Update("opened_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to set opened_at for invitation %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetClickedAt records the first click, idempotently.
func (r *InvitationRepository) SetClickedAt(id uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.InvitationTracking{}).
		Where("id = ? AND clicked_at IS NULL", id).
		Update("clicked_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to set clicked_at for invitation %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RecordResponse sets responded_at and the response type, and cancels all
// still-pending reminders for the invitation in the same transaction.
func (r *InvitationRepository) RecordResponse(id uint, responseType string, at time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.InvitationTracking{}).
			Where("id = ? AND responded_at IS NULL", id).
			Updates(map[string]interface{}{
				"responded_at":  at,
				"response_type": responseType,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to record response for invitation %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("invitation %d not found or already answered", id)
		}

		// Answered invitations must not be nudged again.
		if err := tx.Model(&models.ReminderJob{}).
			Where("invitation_id = ? AND status = ?", id, models.ReminderStatusPending).
			Update("status", models.ReminderStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to cancel pending reminders for invitation %d: %w", id, err)
		}
		return nil
	})
}

// CreateReminder inserts a pending reminder job.
func (r *InvitationRepository) CreateReminder(reminder *models.ReminderJob) error {
	if err := r.db.Create(reminder).Error; err != nil {
		return fmt.Errorf("failed to create reminder job: %w", err)
	}
	return nil
}

// GetPendingReminders selects due, pending reminders whose parent invitation
// is still unanswered. The join re-checks suppression at fire time in case a
// response landed after scheduling without explicit cancellation.
func (r *InvitationRepository) GetPendingReminders(now time.Time) ([]models.ReminderJob, error) {
	var reminders []models.ReminderJob
	err := r.db.Joins("JOIN invitation_tracking ON invitation_tracking.id = reminder_jobs.invitation_id").
		Where("reminder_jobs.status = ?", models.ReminderStatusPending).
		Where("reminder_jobs.scheduled_for <= ?", now).
		Where("invitation_tracking.responded_at IS NULL").
		Preload("Invitation").
		Preload("Invitation.Assignment").
		Order("reminder_jobs.scheduled_for ASC").
		Find(&reminders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending reminders: %w", err)
	}
	return reminders, nil
}

// MarkReminderSent marks a reminder sent and bumps the invitation's reminder
// counters. The conditional update guards against firing a reminder that was
// cancelled between poll and send.
func (r *InvitationRepository) MarkReminderSent(reminderID, invitationID uint, at time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ReminderJob{}).
			Where("id = ? AND status = ?", reminderID, models.ReminderStatusPending).
			Updates(map[string]interface{}{
				"status":  models.ReminderStatusSent,
				"sent_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark reminder %d sent: %w", reminderID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("reminder %d is no longer pending", reminderID)
		}

		if err := tx.Model(&models.InvitationTracking{}).
			Where("id = ?", invitationID).
			Updates(map[string]interface{}{
				"reminder_count":   gorm.Expr("reminder_count + 1"),
				"last_reminder_at": at,
			}).Error; err != nil {
			return fmt.Errorf("failed to bump reminder count for invitation %d: %w", invitationID, err)
		}
		return nil
	})
}

// MarkReminderSkipped marks a reminder skipped (e.g. no due date or answered
// at fire time).
func (r *InvitationRepository) MarkReminderSkipped(reminderID uint) error {
	res := r.db.Model(&models.ReminderJob{}).
		Where("id = ? AND status = ?", reminderID, models.ReminderStatusPending).
		Update("status", models.ReminderStatusSkipped)
	if res.Error != nil {
		return fmt.Errorf("failed to mark reminder %d skipped: %w", reminderID, res.Error)
	}
	return nil
}

// RemindersByInvitation lists all reminder jobs for an invitation.
func (r *InvitationRepository) RemindersByInvitation(invitationID uint) ([]models.ReminderJob, error) {
	var reminders []models.ReminderJob
	err := r.db.Where("invitation_id = ?", invitationID).
		Order("scheduled_for ASC").
		Find(&reminders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get reminders for invitation %d: %w", invitationID, err)
	}
	return reminders, nil
}

// ListCreatedBetween retrieves invitations created in a window, for analytics.
func (r *InvitationRepository) ListCreatedBetween(start, end time.Time) ([]models.InvitationTracking, error) {
	var invs []models.InvitationTracking
	err := r.db.Where("created_at BETWEEN ? AND ?", start, end).Find(&invs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations between %s and %s: %w", start, end, err)
	}
	return invs, nil
}
