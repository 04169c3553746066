package repository

import (
	"context"
	"time"

	"sentiment-price-tracker/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PriceRepository defines the interface for interacting with price rows.
type PriceRepository interface {
	CreateIgnoreConflict(ctx context.Context, records []entity.PriceRecord) error
	LatestTimestamp(ctx context.Context) (*time.Time, error)
}

// NewPriceRepository creates a new GORM-based price repository.
func NewPriceRepository(db *gorm.DB) PriceRepository {
	return &priceRepository{db: db}
}

type priceRepository struct {
	db *gorm.DB
}

// CreateIgnoreConflict bulk-inserts price rows, silently skipping rows that
// collide on the (ticker, timestamp) composite key.
func (r *priceRepository) CreateIgnoreConflict(ctx context.Context, records []entity.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}, {Name: "timestamp"}},
		DoNothing: true,
	}).Create(&records).Error
}

// LatestTimestamp returns the maximum timestamp stored across all tickers,
// or nil if the price table is empty. It seeds the watermark at startup.
func (r *priceRepository) LatestTimestamp(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	err := r.db.WithContext(ctx).Model(&entity.PriceRecord{}).
		Select("MAX(timestamp)").
		Scan(&latest).Error
	if err != nil {
		return nil, err
	}
	return latest, nil
}
