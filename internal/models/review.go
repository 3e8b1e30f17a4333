package models

import (
	"encoding/json"
	"time"
)

// Reviewer represents a peer reviewer known to the quality system.
type Reviewer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone     string    `gorm:"size:50" json:"phone"`
	Expertise string    `gorm:"type:text" json:"expertise"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Reviewer model.
func (Reviewer) TableName() string {
	return "reviewers"
}

// Review represents a submitted peer review. Owned by the submission workflow;
// the quality system only reads it.
type Review struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	ManuscriptID     uint            `gorm:"not null;index" json:"manuscript_id"`
	ReviewerID       uint            `gorm:"not null;index" json:"reviewer_id"`
	Reviewer         Reviewer        `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	Recommendation   string          `gorm:"size:50" json:"recommendation"`     // 'accept', 'minor_revision', 'major_revision', 'reject'
	CriteriaScores   json.RawMessage `gorm:"type:jsonb" json:"criteria_scores"` // criterion name -> 1..5 score
	CommentsToAuthor string          `gorm:"type:text" json:"comments_to_author"`
	CommentsToEditor string          `gorm:"type:text" json:"comments_to_editor"`
	Status           string          `gorm:"size:50;index" json:"status"` // 'draft', 'submitted'
	SubmittedAt      *time.Time      `json:"submitted_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Review model.
func (Review) TableName() string {
	return "reviews"
}

// Review status constants.
const (
	ReviewStatusDraft     = "draft"
	ReviewStatusSubmitted = "submitted"
)

// Recommendation constants.
const (
	RecommendationAccept        = "accept"
	RecommendationMinorRevision = "minor_revision"
	RecommendationMajorRevision = "major_revision"
	RecommendationReject        = "reject"
)

// RecommendationOrdinal maps recommendations onto the ordinal scale used for
// variance and agreement statistics. Matches the rating scale published in
// article schema markup.
var RecommendationOrdinal = map[string]float64{
	RecommendationAccept:        5,
	RecommendationMinorRevision: 4,
	RecommendationMajorRevision: 3,
	RecommendationReject:        2,
}

// ReviewAssignment represents a reviewer's assignment to a manuscript,
// including the due date that anchors reminder scheduling.
type ReviewAssignment struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ManuscriptID uint       `gorm:"not null;index" json:"manuscript_id"`
	ReviewerID   uint       `gorm:"not null;index" json:"reviewer_id"`
	Reviewer     Reviewer   `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	DueDate      *time.Time `json:"due_date"`
	Status       string     `gorm:"size:50;index" json:"status"` // 'invited', 'accepted', 'declined', 'completed'
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for ReviewAssignment model.
func (ReviewAssignment) TableName() string {
	return "review_assignments"
}

// Assignment status constants.
const (
	AssignmentStatusInvited   = "invited"
	AssignmentStatusAccepted  = "accepted"
	AssignmentStatusDeclined  = "declined"
	AssignmentStatusCompleted = "completed"
)

// Notification is an in-app notification row, written by the notification
// dispatcher's in-app channel and read by the web frontend.
type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RecipientID uint      `gorm:"not null;index" json:"recipient_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Message     string    `gorm:"type:text" json:"message"`
	Type        string    `gorm:"size:50" json:"type"` // 'info', 'warning', 'action_required'
	IsRead      bool      `gorm:"default:false" json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for Notification model.
func (Notification) TableName() string {
	return "notifications"
}
