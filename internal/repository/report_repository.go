package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// ReportRepository handles quality report database operations.
type ReportRepository struct {
	db *DB
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create creates a new quality report.
func (r *ReportRepository) Create(report *models.QualityReport) error {
	if err := r.db.Create(report).Error; err != nil {
		return fmt.Errorf("failed to create quality report: %w", err)
	}
	return nil
}

// GetByID retrieves a quality report by ID.
func (r *ReportRepository) GetByID(id uint) (*models.QualityReport, error) {
	var report models.QualityReport
	if err := r.db.First(&report, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get quality report %d: %w", id, err)
	}
	return &report, nil
}

// GetByReviewID retrieves the quality report for a review.
func (r *ReportRepository) GetByReviewID(reviewID uint) (*models.QualityReport, error) {
	var report models.QualityReport
	if err := r.db.Where("review_id = ?", reviewID).First(&report).Error; err != nil {
		return nil, fmt.Errorf("failed to get quality report for review %d: %w", reviewID, err)
	}
	return &report, nil
}

// GetOrCreateByReviewID returns the review's report, creating a pending one if absent.
func (r *ReportRepository) GetOrCreateByReviewID(reviewID uint) (*models.QualityReport, error) {
	report, err := r.GetByReviewID(reviewID)
	if err == nil {
		return report, nil
	}
	report = &models.QualityReport{
		ReviewID: reviewID,
		Status:   models.ReportStatusPendingAnalysis,
	}
	if err := r.db.Create(report).Error; err != nil {
		return nil, fmt.Errorf("failed to create quality report for review %d: %w", reviewID, err)
	}
	return report, nil
}

// Update saves the full report row.
func (r *ReportRepository) Update(report *models.QualityReport) error {
	if err := r.db.Save(report).Error; err != nil {
		return fmt.Errorf("failed to update quality report %d: %w", report.ID, err)
	}
	return nil
}

// UpdateMetrics replaces one metric bag column and refreshes updated_at.
func (r *ReportRepository) UpdateMetrics(reportID uint, metricType string, bag models.MetricBag) error {
	raw, err := models.EncodeMetricBag(bag)
	if err != nil {
		return err
	}

	var column string
	switch metricType {
	case models.MetricTypeAutomated:
		column = "automated_metrics"
	case models.MetricTypeNLP:
		column = "nlp_analysis"
	case models.MetricTypeConsistency:
		column = "consistency_metrics"
	default:
		return fmt.Errorf("unknown metric type: %s", metricType)
	}

	if err := r.db.Model(&models.QualityReport{}).
		Where("id = ?", reportID).
		Update(column, json.RawMessage(raw)).Error; err != nil {
		return fmt.Errorf("failed to update %s for report %d: %w", column, reportID, err)
	}
	return nil
}

// UpdateScoreAndStatus persists the derived quality score and status together.
func (r *ReportRepository) UpdateScoreAndStatus(reportID uint, score *float64, status string) error {
	updates := map[string]interface{}{
		"quality_score": score,
		"status":        status,
	}
	if err := r.db.Model(&models.QualityReport{}).
		Where("id = ?", reportID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update score for report %d: %w", reportID, err)
	}
	return nil
}

// ScoredReportsByReviewer retrieves all scored reports for a reviewer's reviews,
// newest submission first.
func (r *ReportRepository) ScoredReportsByReviewer(reviewerID uint) ([]models.QualityReport, error) {
	var reports []models.QualityReport
	err := r.db.Joins("JOIN reviews ON reviews.id = quality_reports.review_id").
		Where("reviews.reviewer_id = ?", reviewerID).
		Where("quality_reports.quality_score IS NOT NULL").
		Preload("Review").
		Order("quality_reports.updated_at DESC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get scored reports for reviewer %d: %w", reviewerID, err)
	}
	return reports, nil
}

// ListByStatus lists reports in a given status.
func (r *ReportRepository) ListByStatus(status string) ([]models.QualityReport, error) {
	var reports []models.QualityReport
	if err := r.db.Where("status = ?", status).Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to list reports by status %s: %w", status, err)
	}
	return reports, nil
}

// CountByScoreRange counts scored reports with a quality score inside [min, max).
func (r *ReportRepository) CountByScoreRange(min, max float64) (int64, error) {
	var count int64
	err := r.db.Model(&models.QualityReport{}).
		Where("quality_score >= ? AND quality_score < ?", min, max).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count reports in score range: %w", err)
	}
	return count, nil
}

// ScoredSince retrieves reports scored in the given window.
func (r *ReportRepository) ScoredSince(since time.Time) ([]models.QualityReport, error) {
	var reports []models.QualityReport
	err := r.db.Where("quality_score IS NOT NULL AND updated_at >= ?", since).
		Preload("Review").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get reports scored since %s: %w", since, err)
	}
	return reports, nil
}
