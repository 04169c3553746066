package entity

import "time"

// PriceRecord is one close-price observation. A (ticker, timestamp) pair is
// immutable once written; duplicate writes are no-ops.
type PriceRecord struct {
	Ticker     string    `gorm:"primaryKey;not null" json:"ticker"`
	ClosePrice float64   `gorm:"not null" json:"close_price"`
	Volume     int64     `gorm:"not null" json:"volume"`
	Timestamp  time.Time `gorm:"primaryKey;not null" json:"timestamp"`
}

// TableName specifies the table name for the PriceRecord model.
func (PriceRecord) TableName() string {
	return "price"
}
