package repository

import (
	"fmt"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// ConsistencyRepository handles consistency score database operations.
type ConsistencyRepository struct {
	db *DB
}

// NewConsistencyRepository creates a new consistency repository.
func NewConsistencyRepository(db *DB) *ConsistencyRepository {
	return &ConsistencyRepository{db: db}
}

// GetByManuscript retrieves the consistency score for a manuscript.
func (r *ConsistencyRepository) GetByManuscript(manuscriptID uint) (*models.ConsistencyScore, error) {
	var score models.ConsistencyScore
	if err := r.db.Where("manuscript_id = ?", manuscriptID).First(&score).Error; err != nil {
		return nil, fmt.Errorf("failed to get consistency score for manuscript %d: %w", manuscriptID, err)
	}
	return &score, nil
}

// Upsert overwrites the manuscript's consistency score. Scores are not
// versioned; each recomputation replaces the previous one.
func (r *ConsistencyRepository) Upsert(score *models.ConsistencyScore) error {
	existing, err := r.GetByManuscript(score.ManuscriptID)
	if err != nil {
		if err := r.db.Create(score).Error; err != nil {
			return fmt.Errorf("failed to create consistency score: %w", err)
		}
		return nil
	}

	score.ID = existing.ID
	if err := r.db.Save(score).Error; err != nil {
		return fmt.Errorf("failed to update consistency score: %w", err)
	}
	return nil
}
