package entity

import (
	"time"

	"github.com/lib/pq"
)

// Sentiment labels produced by the classifier.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// SentimentRecord is a classified news headline. Rows are append-only and
// keyed by the link hash: one row per distinct source link, permanently.
type SentimentRecord struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Ticker         string         `gorm:"not null" json:"ticker"`
	Alias          string         `gorm:"not null" json:"alias"`
	Headline       string         `gorm:"not null" json:"headline"`
	SentimentScore float64        `gorm:"not null" json:"sentiment_score"`
	SentimentLabel string         `gorm:"not null" json:"sentiment_label"`
	Link           string         `gorm:"unique;not null" json:"link"`
	Keywords       pq.StringArray `gorm:"type:text[]" json:"keywords,omitempty"`
	PublishedAt    time.Time      `gorm:"not null" json:"published_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the SentimentRecord model.
func (SentimentRecord) TableName() string {
	return "sentiment"
}
