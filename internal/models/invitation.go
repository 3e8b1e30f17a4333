package models

import (
	"time"
)

// InvitationTracking is the lifecycle ledger for one sent reviewer invitation.
// Created at send time, mutated by delivery callbacks and reminder jobs.
type InvitationTracking struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	AssignmentID   uint             `gorm:"not null;index" json:"assignment_id"`
	Assignment     ReviewAssignment `gorm:"foreignKey:AssignmentID" json:"assignment,omitempty"`
	Recipient      string           `gorm:"size:255;not null" json:"recipient"`
	TemplateID     string           `gorm:"size:100" json:"template_id"`
	Subject        string           `gorm:"type:text" json:"subject"`
	Body           string           `gorm:"type:text" json:"body"`
	DeliveryStatus string           `gorm:"size:50;index" json:"delivery_status"` // 'sent', 'delivered', 'bounced'
	ScheduledFor   *time.Time       `json:"scheduled_for"`                        // future send time, nil for immediate sends
	OpenedAt       *time.Time       `json:"opened_at"`
	ClickedAt      *time.Time       `json:"clicked_at"`
	RespondedAt    *time.Time       `json:"responded_at"`
	ResponseType   string           `gorm:"size:50" json:"response_type"` // 'accepted', 'declined', empty until answered
	ReminderCount  int              `gorm:"default:0" json:"reminder_count"`
	LastReminderAt *time.Time       `json:"last_reminder_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TableName specifies the table name for InvitationTracking model.
func (InvitationTracking) TableName() string {
	return "invitation_tracking"
}

// Delivery status constants.
const (
	DeliveryStatusSent      = "sent"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusBounced   = "bounced"
)

// Response type constants.
const (
	ResponseAccepted = "accepted"
	ResponseDeclined = "declined"
)

// HasResponded reports whether the invitation has been answered.
func (i *InvitationTracking) HasResponded() bool {
	return i.RespondedAt != nil
}

// ReminderJob is a time-scheduled nudge for an unanswered invitation.
// Answered invitations suppress pending reminders; cancellation is recorded
// explicitly instead of relying on query-time filters alone.
type ReminderJob struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	InvitationID uint               `gorm:"not null;index" json:"invitation_id"`
	Invitation   InvitationTracking `gorm:"foreignKey:InvitationID" json:"invitation,omitempty"`
	ScheduledFor time.Time          `gorm:"not null;index" json:"scheduled_for"`
	Status       string             `gorm:"size:50;index" json:"status"` // 'pending', 'sent', 'skipped', 'cancelled'
	SentAt       *time.Time         `json:"sent_at"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// TableName specifies the table name for ReminderJob model.
func (ReminderJob) TableName() string {
	return "reminder_jobs"
}

// Reminder status constants.
const (
	ReminderStatusPending   = "pending"
	ReminderStatusSent      = "sent"
	ReminderStatusSkipped   = "skipped"
	ReminderStatusCancelled = "cancelled"
)
