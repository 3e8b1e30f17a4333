package repository

import (
	"fmt"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// ReviewRepository handles read access to reviews, reviewers, and assignments.
// These entities are owned by the submission workflow outside this service.
type ReviewRepository struct {
	db *DB
}

// NewReviewRepository creates a new review repository.
func NewReviewRepository(db *DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// GetByID retrieves a review by ID.
func (r *ReviewRepository) GetByID(id uint) (*models.Review, error) {
	var review models.Review
	if err := r.db.Preload("Reviewer").First(&review, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get review %d: %w", id, err)
	}
	return &review, nil
}

// GetSubmittedByManuscript retrieves all submitted reviews for a manuscript.
func (r *ReviewRepository) GetSubmittedByManuscript(manuscriptID uint) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.Where("manuscript_id = ? AND status = ?", manuscriptID, models.ReviewStatusSubmitted).
		Order("submitted_at ASC").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get submitted reviews for manuscript %d: %w", manuscriptID, err)
	}
	return reviews, nil
}

// ListSubmitted retrieves submitted reviews, optionally filtered to one
// manuscript, for batch analysis.
func (r *ReviewRepository) ListSubmitted(manuscriptID *uint) ([]models.Review, error) {
	q := r.db.Where("status = ?", models.ReviewStatusSubmitted)
	if manuscriptID != nil {
		q = q.Where("manuscript_id = ?", *manuscriptID)
	}
	var reviews []models.Review
	if err := q.Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("failed to list submitted reviews: %w", err)
	}
	return reviews, nil
}

// GetReviewer retrieves a reviewer by ID.
func (r *ReviewRepository) GetReviewer(id uint) (*models.Reviewer, error) {
	var reviewer models.Reviewer
	if err := r.db.First(&reviewer, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get reviewer %d: %w", id, err)
	}
	return &reviewer, nil
}

// GetAssignmentFor retrieves the assignment linking a reviewer to a manuscript.
func (r *ReviewRepository) GetAssignmentFor(manuscriptID, reviewerID uint) (*models.ReviewAssignment, error) {
	var assignment models.ReviewAssignment
	err := r.db.Where("manuscript_id = ? AND reviewer_id = ?", manuscriptID, reviewerID).
		First(&assignment).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment for manuscript %d reviewer %d: %w", manuscriptID, reviewerID, err)
	}
	return &assignment, nil
}

// GetAssignment retrieves a review assignment with its reviewer.
func (r *ReviewRepository) GetAssignment(id uint) (*models.ReviewAssignment, error) {
	var assignment models.ReviewAssignment
	if err := r.db.Preload("Reviewer").First(&assignment, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get assignment %d: %w", id, err)
	}
	return &assignment, nil
}
