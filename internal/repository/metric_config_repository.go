package repository

import (
	"fmt"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// MetricConfigRepository handles metric configuration database operations.
type MetricConfigRepository struct {
	db *DB
}

// NewMetricConfigRepository creates a new metric config repository.
func NewMetricConfigRepository(db *DB) *MetricConfigRepository {
	return &MetricConfigRepository{db: db}
}

// GetAll retrieves every metric config.
func (r *MetricConfigRepository) GetAll() ([]models.MetricConfig, error) {
	var configs []models.MetricConfig
	if err := r.db.Order("name ASC").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to get metric configs: %w", err)
	}
	return configs, nil
}

// GetEnabled retrieves only enabled metric configs. Only these contribute
// to score aggregation.
func (r *MetricConfigRepository) GetEnabled() ([]models.MetricConfig, error) {
	var configs []models.MetricConfig
	if err := r.db.Where("enabled = ?", true).Order("name ASC").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to get enabled metric configs: %w", err)
	}
	return configs, nil
}

// GetByName retrieves a metric config by its unique name.
func (r *MetricConfigRepository) GetByName(name string) (*models.MetricConfig, error) {
	var cfg models.MetricConfig
	if err := r.db.Where("name = ?", name).First(&cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to get metric config %s: %w", name, err)
	}
	return &cfg, nil
}

// Upsert creates or updates a metric config by name after validating invariants.
func (r *MetricConfigRepository) Upsert(cfg *models.MetricConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	existing, err := r.GetByName(cfg.Name)
	if err != nil {
		if err := r.db.Create(cfg).Error; err != nil {
			return fmt.Errorf("failed to create metric config %s: %w", cfg.Name, err)
		}
		return nil
	}

	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt
	if err := r.db.Save(cfg).Error; err != nil {
		return fmt.Errorf("failed to update metric config %s: %w", cfg.Name, err)
	}
	return nil
}

// SetEnabled toggles a metric config by name.
func (r *MetricConfigRepository) SetEnabled(name string, enabled bool) error {
	res := r.db.Model(&models.MetricConfig{}).Where("name = ?", name).Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to toggle metric config %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("metric config %s not found", name)
	}
	return nil
}
