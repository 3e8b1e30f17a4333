package models

import (
	"encoding/json"
	"time"
)

// ReviewerQualityProfile is the rolling quality aggregate for a reviewer.
// Derived data: recomputed by the profile aggregator, never hand-edited.
type ReviewerQualityProfile struct {
	ID                      uint            `gorm:"primaryKey" json:"id"`
	ReviewerID              uint            `gorm:"uniqueIndex;not null" json:"reviewer_id"`
	Reviewer                Reviewer        `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	TotalReports            int             `gorm:"default:0" json:"total_reports"`
	HighQualityCount        int             `gorm:"default:0" json:"high_quality_count"`
	LowQualityCount         int             `gorm:"default:0" json:"low_quality_count"`
	AverageScore            float64         `gorm:"type:decimal(4,2)" json:"average_score"`
	Avg30Days               *float64        `gorm:"type:decimal(4,2)" json:"avg_30_days"`
	Avg90Days               *float64        `gorm:"type:decimal(4,2)" json:"avg_90_days"`
	Trend                   string          `gorm:"size:50" json:"trend"` // 'improving', 'stable', 'declining'
	Weaknesses              json.RawMessage `gorm:"type:jsonb" json:"weaknesses"`
	TrainingRecommendations json.RawMessage `gorm:"type:jsonb" json:"training_recommendations"`
	Badges                  json.RawMessage `gorm:"type:jsonb" json:"badges"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// TableName specifies the table name for ReviewerQualityProfile model.
func (ReviewerQualityProfile) TableName() string {
	return "reviewer_quality_profiles"
}

// Trend constants.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// Profile badge constants.
const (
	BadgeQualityStar       = "quality_star"
	BadgeConsistentQuality = "consistent_quality"
	BadgeProlificReviewer  = "prolific_reviewer"
)
