// Package models defines domain models for the review quality service.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// QualityReport holds the automated, NLP, and consistency assessment for a single review.
// One report exists per review and is never deleted (audit trail).
type QualityReport struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	ReviewID           uint            `gorm:"uniqueIndex;not null" json:"review_id"`
	Review             Review          `gorm:"foreignKey:ReviewID" json:"review,omitempty"`
	AutomatedMetrics   json.RawMessage `gorm:"type:jsonb" json:"automated_metrics"`   // metric name -> 0..1 value
	NLPAnalysis        json.RawMessage `gorm:"type:jsonb" json:"nlp_analysis"`        // metric name -> 0..1 value
	ConsistencyMetrics json.RawMessage `gorm:"type:jsonb" json:"consistency_metrics"` // metric name -> 0..1 value
	SentimentCategory  string          `gorm:"size:50" json:"sentiment_category"`     // 'positive', 'neutral', 'negative'
	BiasIndicators     json.RawMessage `gorm:"type:jsonb" json:"bias_indicators"`     // list of detected bias markers
	Flags              json.RawMessage `gorm:"type:jsonb" json:"flags"`               // list of qualitative flags
	EditorRating       *int            `json:"editor_rating"`
	EditorComments     string          `gorm:"type:text" json:"editor_comments"`
	AuthorRating       *int            `json:"author_rating"`
	AuthorComments     string          `gorm:"type:text" json:"author_comments"`
	QualityScore       *float64        `gorm:"type:decimal(4,2)" json:"quality_score"` // weighted 0..1, nil until computable
	Status             string          `gorm:"size:50;index" json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName specifies the table name for QualityReport model.
func (QualityReport) TableName() string {
	return "quality_reports"
}

// QualityReport status constants.
const (
	ReportStatusPendingAnalysis     = "pending_analysis"
	ReportStatusAnalyzing           = "analyzing"
	ReportStatusAnalysisComplete    = "analysis_complete"
	ReportStatusPendingEditorReview = "pending_editor_review"
	ReportStatusEditorReviewed      = "editor_reviewed"
	ReportStatusFlaggedForReview    = "flagged_for_review"
)

// Qualitative flag constants.
const (
	FlagBiasSuspected      = "bias_suspected"
	FlagLowEffort          = "low_effort"
	FlagTooBrief           = "too_brief"
	FlagUnprofessionalTone = "unprofessional_tone"
	FlagCopyPaste          = "copy_paste_suspected"
)

// reportTransitions lists the allowed forward transitions of the report state machine.
// flagged_for_review is reachable from any state and is handled separately.
var reportTransitions = map[string][]string{
	ReportStatusPendingAnalysis:     {ReportStatusAnalyzing},
	ReportStatusAnalyzing:           {ReportStatusAnalysisComplete, ReportStatusPendingAnalysis},
	ReportStatusAnalysisComplete:    {ReportStatusPendingEditorReview, ReportStatusEditorReviewed},
	ReportStatusPendingEditorReview: {ReportStatusEditorReviewed},
	ReportStatusFlaggedForReview:    {ReportStatusEditorReviewed},
}

// CanTransition reports whether a status change is allowed by the report state machine.
func CanTransition(from, to string) bool {
	if to == ReportStatusFlaggedForReview {
		// Raised flags may interrupt any non terminal state.
		return from != ReportStatusEditorReviewed
	}
	for _, next := range reportTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MetricBag is a typed view of a JSON metric column: metric name to numeric value.
type MetricBag map[string]float64

// DecodeMetricBag parses a raw jsonb metric column. A nil or empty column yields an empty bag.
func DecodeMetricBag(raw json.RawMessage) (MetricBag, error) {
	if len(raw) == 0 {
		return MetricBag{}, nil
	}
	var bag MetricBag
	if err := json.Unmarshal(raw, &bag); err != nil {
		return nil, fmt.Errorf("failed to decode metric bag: %w", err)
	}
	if bag == nil {
		bag = MetricBag{}
	}
	return bag, nil
}

// EncodeMetricBag serializes a metric bag for storage.
func EncodeMetricBag(bag MetricBag) (json.RawMessage, error) {
	data, err := json.Marshal(bag)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metric bag: %w", err)
	}
	return data, nil
}

// DecodeStringList parses a raw jsonb string-list column (flags, bias indicators, areas).
func DecodeStringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode string list: %w", err)
	}
	return list, nil
}

// EncodeStringList serializes a string-list column for storage.
func EncodeStringList(list []string) (json.RawMessage, error) {
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to encode string list: %w", err)
	}
	return data, nil
}

// MetricBagFor returns the decoded metric bag for a config category.
func (r *QualityReport) MetricBagFor(metricType string) (MetricBag, error) {
	switch metricType {
	case MetricTypeAutomated:
		return DecodeMetricBag(r.AutomatedMetrics)
	case MetricTypeNLP:
		return DecodeMetricBag(r.NLPAnalysis)
	case MetricTypeConsistency:
		return DecodeMetricBag(r.ConsistencyMetrics)
	default:
		return nil, fmt.Errorf("unknown metric type: %s", metricType)
	}
}

// HasFlag reports whether the given qualitative flag is present on the report.
func (r *QualityReport) HasFlag(flag string) bool {
	flags, err := DecodeStringList(r.Flags)
	if err != nil {
		return false
	}
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// MetricConfig is the admin-owned definition of a single quality metric.
type MetricConfig struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Type                string    `gorm:"size:50;not null" json:"type"` // 'automated', 'nlp', 'manual', 'consistency'
	ThresholdPoor       float64   `json:"threshold_poor"`
	ThresholdAcceptable float64   `json:"threshold_acceptable"`
	ThresholdGood       float64   `json:"threshold_good"`
	ThresholdExcellent  float64   `json:"threshold_excellent"`
	Weight              float64   `gorm:"not null" json:"weight"`
	Enabled             bool      `gorm:"default:true" json:"enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName specifies the table name for MetricConfig model.
func (MetricConfig) TableName() string {
	return "metric_configs"
}

// Metric type constants.
const (
	MetricTypeAutomated   = "automated"
	MetricTypeNLP         = "nlp"
	MetricTypeManual      = "manual"
	MetricTypeConsistency = "consistency"
)

// Validate checks metric config invariants: non-negative weight, ascending thresholds.
func (m *MetricConfig) Validate() error {
	if m.Weight < 0 {
		return fmt.Errorf("metric %s: weight must not be negative", m.Name)
	}
	if m.ThresholdPoor > m.ThresholdAcceptable ||
		m.ThresholdAcceptable > m.ThresholdGood ||
		m.ThresholdGood > m.ThresholdExcellent {
		return fmt.Errorf("metric %s: thresholds must be ascending", m.Name)
	}
	return nil
}
