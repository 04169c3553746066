package service

import (
	"testing"

	"sentiment-price-tracker/internal/pipeline/dto"

	"github.com/stretchr/testify/assert"
)

func TestSignedScore(t *testing.T) {
	tests := []struct {
		name       string
		prediction dto.Prediction
		want       float64
	}{
		{"negative keeps magnitude, flips sign", dto.Prediction{Label: "negative", Confidence: 0.87}, -0.87},
		{"neutral is always zero", dto.Prediction{Label: "neutral", Confidence: 0.6}, 0.0},
		{"positive keeps confidence", dto.Prediction{Label: "positive", Confidence: 0.42}, 0.42},
		{"unknown label treated as neutral", dto.Prediction{Label: "mixed", Confidence: 0.9}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SignedScore(tt.prediction))
		})
	}
}
