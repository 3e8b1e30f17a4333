package models

import (
	"encoding/json"
	"time"
)

// AnalysisJob is a durable queue entry driving asynchronous quality analysis.
// Jobs are retained after completion for audit.
type AnalysisJob struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ReviewID     uint            `gorm:"index" json:"review_id"`            // zero for notify jobs
	JobType      string          `gorm:"size:50;not null" json:"job_type"`  // 'full', 'quick', 'consistency', 'notify'
	Payload      json.RawMessage `gorm:"type:jsonb" json:"payload"`         // job-type specific input, e.g. a deferred notification request
	Status       string          `gorm:"size:50;index" json:"status"`       // 'queued', 'processing', 'completed', 'failed'
	Priority     int             `gorm:"not null;index" json:"priority"`    // 1..10, higher first
	RetryCount   int             `gorm:"default:0" json:"retry_count"`
	MaxRetries   int             `gorm:"default:3" json:"max_retries"`
	QueuedAt     time.Time       `gorm:"not null;index" json:"queued_at"`
	ScheduledFor *time.Time      `gorm:"index" json:"scheduled_for"` // delayed-queue semantics
	StartedAt    *time.Time      `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	Result       json.RawMessage `gorm:"type:jsonb" json:"result"`
	LastError    string          `gorm:"type:text" json:"last_error"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName specifies the table name for AnalysisJob model.
func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

// Job type constants.
const (
	JobTypeFull        = "full"
	JobTypeQuick       = "quick"
	JobTypeConsistency = "consistency"
	JobTypeNotify      = "notify" // deferred notification dispatch
)

// Job status constants.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job priority bounds.
const (
	MinJobPriority = 1
	MaxJobPriority = 10
)

// IsTerminal reports whether the job has reached a terminal status.
func (j *AnalysisJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
