package models

import (
	"encoding/json"
	"time"
)

// ConsistencyScore holds the cross-reviewer agreement analysis for a manuscript.
// One row per manuscript, overwritten on every recomputation.
type ConsistencyScore struct {
	ID                     uint            `gorm:"primaryKey" json:"id"`
	ManuscriptID           uint            `gorm:"uniqueIndex;not null" json:"manuscript_id"`
	OverallConsistency     float64         `gorm:"type:decimal(4,2)" json:"overall_consistency"` // mean pairwise agreement, 0..1
	RecommendationVariance float64         `json:"recommendation_variance"`                      // population variance over ordinals
	ScoreVariance          float64         `json:"score_variance"`                               // population variance over numeric scores
	AgreementMatrix        json.RawMessage `gorm:"type:jsonb" json:"agreement_matrix"`           // reviewer-pair agreement entries
	DivergentAreas         json.RawMessage `gorm:"type:jsonb" json:"divergent_areas"`            // criteria with high variance
	ConsensusAreas         json.RawMessage `gorm:"type:jsonb" json:"consensus_areas"`            // criteria with low variance
	InterRaterReliability  float64         `json:"inter_rater_reliability"`
	CohensKappa            float64         `json:"cohens_kappa"`
	ReviewCount            int             `json:"review_count"`
	ComputedAt             time.Time       `json:"computed_at"`
}

// TableName specifies the table name for ConsistencyScore model.
func (ConsistencyScore) TableName() string {
	return "consistency_scores"
}

// PairAgreement is one entry of the reviewer-pair agreement matrix.
type PairAgreement struct {
	ReviewerA uint    `json:"reviewer_a"`
	ReviewerB uint    `json:"reviewer_b"`
	Agreement float64 `json:"agreement"` // 0..1
}
