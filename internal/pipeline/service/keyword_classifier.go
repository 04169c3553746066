package service

import (
	"context"
	"math"
	"sort"
	"strings"

	"sentiment-price-tracker/internal/entity"
	"sentiment-price-tracker/internal/pipeline/dto"
)

// KeywordClassifier is a deterministic lexicon-based classifier. It needs no
// network or model weights, which makes it the default provider and the one
// used in tests.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a new KeywordClassifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Bullish / bearish term weights, lowercase.
var bullishTerms = map[string]float64{
	"rally": 0.6, "surge": 0.7, "soar": 0.7, "jump": 0.5,
	"upgrade": 0.6, "outperform": 0.6, "beat": 0.5, "beats": 0.5,
	"record high": 0.7, "all-time high": 0.7, "growth": 0.4,
	"profit": 0.3, "dividend": 0.4, "buyback": 0.5, "strong": 0.4,
	"recovery": 0.5, "expansion": 0.4, "breakout": 0.6, "bullish": 0.7,
	"exceeds": 0.5, "upbeat": 0.5, "gain": 0.4, "positive": 0.4,
}

var bearishTerms = map[string]float64{
	"crash": 0.8, "plunge": 0.7, "slump": 0.6, "tumble": 0.6,
	"downgrade": 0.6, "underperform": 0.6, "miss": 0.5, "misses": 0.5,
	"loss": 0.4, "losses": 0.4, "decline": 0.5, "selloff": 0.7,
	"fraud": 0.8, "scam": 0.8, "probe": 0.5, "investigation": 0.5,
	"lawsuit": 0.5, "warning": 0.5, "layoff": 0.6, "layoffs": 0.6,
	"default": 0.7, "bearish": 0.7, "weak": 0.4, "negative": 0.4,
	"cut": 0.3, "concern": 0.3, "fall": 0.4, "falls": 0.4,
}

// Classify scores every headline against the term lexicons. Output order
// matches input order.
func (c *KeywordClassifier) Classify(_ context.Context, headlines []string) ([]dto.Prediction, error) {
	predictions := make([]dto.Prediction, len(headlines))
	for i, headline := range headlines {
		predictions[i] = scoreHeadline(headline)
	}
	return predictions, nil
}

func scoreHeadline(headline string) dto.Prediction {
	lower := strings.ToLower(headline)

	bullScore := 0.0
	bearScore := 0.0
	var matched []string

	for term, weight := range bullishTerms {
		if containsTerm(lower, term) {
			bullScore += weight
			matched = append(matched, term)
		}
	}
	for term, weight := range bearishTerms {
		if containsTerm(lower, term) {
			bearScore += weight
			matched = append(matched, term)
		}
	}

	// Map iteration order is random; keep the stored trail stable.
	sort.Strings(matched)

	total := bullScore + bearScore
	if len(matched) == 0 || total == 0 || bullScore == bearScore {
		return dto.Prediction{
			Label:      entity.SentimentNeutral,
			Confidence: neutralConfidence(len(matched)),
			Keywords:   matched,
		}
	}

	// Confidence grows with both signal strength and match count, capped
	// below certainty.
	net := math.Abs(bullScore-bearScore) / total
	confidence := math.Min(net*0.6+float64(len(matched))*0.1+0.2, 0.95)

	label := entity.SentimentPositive
	if bearScore > bullScore {
		label = entity.SentimentNegative
	}

	return dto.Prediction{
		Label:      label,
		Confidence: confidence,
		Keywords:   matched,
	}
}

func neutralConfidence(matches int) float64 {
	if matches == 0 {
		return 0.5
	}
	return 0.3
}

// containsTerm matches a lexicon term on word boundaries so that "cut" does
// not fire inside "executive".
func containsTerm(text, term string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], term)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(term)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(text) {
			return false
		}
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
