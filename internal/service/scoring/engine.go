// Package scoring computes weighted quality scores for submitted reviews
// and drives the quality report state machine.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// ComputeQualityScore computes the weighted quality score for a report from
// the enabled metric configs. For every enabled config whose metric value is
// present in the matching category bag, value*weight accumulates into the
// numerator and weight into the denominator. Metrics without a value are
// skipped. Returns nil when no enabled metric has a measurable value yet.
func ComputeQualityScore(report *models.QualityReport, configs []models.MetricConfig) (*float64, error) {
	var numerator, denominator float64

	for _, cfg := range configs {
		if !cfg.Enabled || cfg.Weight <= 0 {
			continue
		}
		bag, err := report.MetricBagFor(cfg.Type)
		if err != nil {
			// Manual metrics have no bag; they enter through editor ratings.
			continue
		}
		value, ok := bag[cfg.Name]
		if !ok {
			continue
		}
		numerator += value * cfg.Weight
		denominator += cfg.Weight
	}

	if denominator == 0 {
		return nil, nil
	}

	score := round2(numerator / denominator)
	return &score, nil
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateCompleteness scores how fully the review covers the expected
// criteria and comment sections.
func CalculateCompleteness(review *models.Review, expectedCriteria int) float64 {
	scores, err := models.DecodeMetricBag(review.CriteriaScores)
	if err != nil {
		return 0
	}

	covered := 0.0
	if expectedCriteria > 0 {
		covered = float64(len(scores)) / float64(expectedCriteria)
		if covered > 1 {
			covered = 1
		}
	} else if len(scores) > 0 {
		covered = 1
	}

	// Author-facing comments are half the completeness signal.
	commentScore := 0.0
	if strings.TrimSpace(review.CommentsToAuthor) != "" {
		commentScore = 1
	}

	return round2(0.5*covered + 0.5*commentScore)
}

// CalculateTimeliness scores submission time against the assignment due date.
// On-time submissions score 1.0, decaying linearly to 0 at twice the review
// window past the due date. Without a due date or submission time the metric
// is unmeasurable and the caller should omit it.
func CalculateTimeliness(assignedAt time.Time, dueDate, submittedAt *time.Time) (float64, bool) {
	if dueDate == nil || submittedAt == nil {
		return 0, false
	}
	window := dueDate.Sub(assignedAt)
	if window <= 0 {
		return 0, false
	}
	if !submittedAt.After(*dueDate) {
		return 1, true
	}
	late := submittedAt.Sub(*dueDate)
	score := 1 - late.Seconds()/window.Seconds()
	if score < 0 {
		score = 0
	}
	return round2(score), true
}

// CalculateDepth scores review thoroughness from comment volume. The scale
// saturates at roughly 2000 characters of author-facing commentary.
func CalculateDepth(review *models.Review) float64 {
	length := len(review.CommentsToAuthor) + len(review.CommentsToEditor)/2
	score := float64(length) / 2000.0
	if score > 1 {
		score = 1
	}
	return round2(score)
}

// CalculateSpecificity estimates how concrete the review is: references to
// sections, figures, tables, pages, and line numbers count as specific anchors.
func CalculateSpecificity(review *models.Review) float64 {
	text := strings.ToLower(review.CommentsToAuthor)
	if text == "" {
		return 0
	}

	anchors := 0
	for _, marker := range []string{"section", "figure", "table", "page ", "line ", "equation", "paragraph"} {
		anchors += strings.Count(text, marker)
	}

	// Five anchors per thousand words reads as fully specific.
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	density := float64(anchors) / (float64(words) / 1000.0)
	score := density / 5.0
	if score > 1 {
		score = 1
	}
	return round2(score)
}

// DeriveStatus determines the report status after a scoring pass.
// Flag presence wins over score thresholds; a nil score keeps the report
// waiting for measurable metrics.
func DeriveStatus(report *models.QualityReport, score *float64, editorThreshold float64) string {
	if flags, err := models.DecodeStringList(report.Flags); err == nil && len(flags) > 0 {
		return models.ReportStatusFlaggedForReview
	}
	if score == nil {
		return models.ReportStatusPendingAnalysis
	}
	if *score < editorThreshold {
		return models.ReportStatusPendingEditorReview
	}
	return models.ReportStatusAnalysisComplete
}
