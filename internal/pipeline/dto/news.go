package dto

import "time"

// NewsItem is a fetched headline before classification and persistence.
// Link holds the md5 hash of the raw source URL, not the URL itself; it is
// the durable uniqueness key.
type NewsItem struct {
	Headline    string    `json:"headline"`
	Ticker      string    `json:"ticker"`
	Alias       string    `json:"alias"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
}
