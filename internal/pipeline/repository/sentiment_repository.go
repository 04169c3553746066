package repository

import (
	"context"

	"sentiment-price-tracker/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SentimentRepository defines the interface for interacting with classified
// headline rows.
type SentimentRepository interface {
	CreateIgnoreConflict(ctx context.Context, records []entity.SentimentRecord) error
	FindExistingLinks(ctx context.Context, links []string) ([]string, error)
}

// NewSentimentRepository creates a new GORM-based sentiment repository.
func NewSentimentRepository(db *gorm.DB) SentimentRepository {
	return &sentimentRepository{db: db}
}

type sentimentRepository struct {
	db *gorm.DB
}

// CreateIgnoreConflict bulk-inserts records, silently skipping rows whose
// link already exists. The insert is atomic: all non-conflicting rows commit
// together or none do.
func (r *sentimentRepository) CreateIgnoreConflict(ctx context.Context, records []entity.SentimentRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "link"}},
		DoNothing: true,
	}).Create(&records).Error
}

// FindExistingLinks returns the subset of the given link hashes that are
// already present in the sentiment table.
func (r *sentimentRepository) FindExistingLinks(ctx context.Context, links []string) ([]string, error) {
	if len(links) == 0 {
		return nil, nil
	}
	var existing []string
	err := r.db.WithContext(ctx).Model(&entity.SentimentRecord{}).
		Where("link IN ?", links).
		Pluck("link", &existing).Error
	if err != nil {
		return nil, err
	}
	return existing, nil
}
