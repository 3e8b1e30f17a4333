package repository

import (
	"fmt"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// ProfileRepository handles reviewer quality profile database operations.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByReviewer retrieves the quality profile for a reviewer.
func (r *ProfileRepository) GetByReviewer(reviewerID uint) (*models.ReviewerQualityProfile, error) {
	var profile models.ReviewerQualityProfile
	if err := r.db.Where("reviewer_id = ?", reviewerID).First(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to get quality profile for reviewer %d: %w", reviewerID, err)
	}
	return &profile, nil
}

// Upsert creates or replaces a reviewer's quality profile.
func (r *ProfileRepository) Upsert(profile *models.ReviewerQualityProfile) error {
	existing, err := r.GetByReviewer(profile.ReviewerID)
	if err != nil {
		if err := r.db.Create(profile).Error; err != nil {
			return fmt.Errorf("failed to create quality profile: %w", err)
		}
		return nil
	}

	profile.ID = existing.ID
	if err := r.db.Save(profile).Error; err != nil {
		return fmt.Errorf("failed to update quality profile: %w", err)
	}
	return nil
}

// ListTop retrieves the highest-averaging profiles with at least minReports
// scored reports, for the reviewer quality leaderboard.
func (r *ProfileRepository) ListTop(limit, minReports int) ([]models.ReviewerQualityProfile, error) {
	var profiles []models.ReviewerQualityProfile
	err := r.db.Where("total_reports >= ?", minReports).
		Preload("Reviewer").
		Order("average_score DESC").
		Limit(limit).
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list top profiles: %w", err)
	}
	return profiles, nil
}
