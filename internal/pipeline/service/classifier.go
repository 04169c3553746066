package service

import (
	"context"

	"sentiment-price-tracker/internal/entity"
	"sentiment-price-tracker/internal/pipeline/dto"
)

// Classifier scores a batch of headline strings. Implementations must return
// exactly one prediction per input, in input order, and may chunk internally.
// Errors are not swallowed here; the orchestrator isolates them.
type Classifier interface {
	Classify(ctx context.Context, headlines []string) ([]dto.Prediction, error)
}

// SignedScore maps a prediction to the signed score stored alongside the
// label: negative headlines score -confidence, positive ones +confidence,
// neutral ones exactly zero. The dashboard's [-1, 1] axis depends on this.
func SignedScore(p dto.Prediction) float64 {
	switch p.Label {
	case entity.SentimentNegative:
		return -p.Confidence
	case entity.SentimentPositive:
		return p.Confidence
	default:
		return 0.0
	}
}
