package dto

import "time"

// CycleSummary is the per-cycle outcome persisted to pipeline_runs and
// published to the Redis stream.
type CycleSummary struct {
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       time.Time  `json:"completed_at"`
	HeadlinesFetched  int        `json:"headlines_fetched"`
	HeadlinesNew      int        `json:"headlines_new"`
	SentimentWritten  int        `json:"sentiment_written"`
	PriceRowsFetched  int        `json:"price_rows_fetched"`
	PriceWriteOK      bool       `json:"price_write_ok"`
	Watermark         *time.Time `json:"watermark,omitempty"`
	ClassifierSkipped bool       `json:"classifier_skipped"`
	Errors            []string   `json:"errors,omitempty"`
}

// PipelineStatus is the payload served by the /status endpoint.
type PipelineStatus struct {
	App       string        `json:"app"`
	Watermark *time.Time    `json:"watermark,omitempty"`
	LastCycle *CycleSummary `json:"last_cycle,omitempty"`
}
