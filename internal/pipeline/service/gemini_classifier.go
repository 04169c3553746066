package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sentiment-price-tracker/internal/entity"
	"sentiment-price-tracker/internal/pipeline/config"
	"sentiment-price-tracker/internal/pipeline/dto"
	"sentiment-price-tracker/pkg/logger"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiClassifier scores headlines with the Gemini API. Batches larger than
// the configured chunk size are split; results are reassembled in input order.
type GeminiClassifier struct {
	cfg            *config.Config
	logger         *logger.Logger
	genAiClient    *genai.Client
	requestLimiter *rate.Limiter
	chunkSize      int
}

// NewGeminiClassifier creates a new Gemini-backed classifier.
func NewGeminiClassifier(cfg *config.Config, log *logger.Logger, genAiClient *genai.Client) *GeminiClassifier {
	secondsPerRequest := time.Minute / time.Duration(cfg.Gemini.MaxRequestPerMinute)
	return &GeminiClassifier{
		cfg:            cfg,
		logger:         log,
		genAiClient:    genAiClient,
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
		chunkSize:      cfg.Classifier.BatchSize,
	}
}

const geminiClassifyPrompt = `You are a financial news sentiment classifier.
For each numbered headline below, decide whether it is positive, neutral, or
negative for the company it mentions, and how confident you are (0.0 to 1.0).

Respond with ONLY a JSON array, one object per headline, in the same order:
[{"label": "positive|neutral|negative", "confidence": 0.0}]

Headlines:
%s`

// Classify scores every headline, one API call per chunk. Any failure
// propagates; the caller decides how to isolate it.
func (c *GeminiClassifier) Classify(ctx context.Context, headlines []string) ([]dto.Prediction, error) {
	predictions := make([]dto.Prediction, 0, len(headlines))

	for start := 0; start < len(headlines); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(headlines) {
			end = len(headlines)
		}

		chunk, err := c.classifyChunk(ctx, headlines[start:end])
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, chunk...)
	}

	return predictions, nil
}

func (c *GeminiClassifier) classifyChunk(ctx context.Context, headlines []string) ([]dto.Prediction, error) {
	if err := c.requestLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for request limit: %w", err)
	}

	var sb strings.Builder
	for i, headline := range headlines {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, headline)
	}
	prompt := fmt.Sprintf(geminiClassifyPrompt, sb.String())

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, "user"),
	}

	resp, err := c.genAiClient.Models.GenerateContent(ctx, c.cfg.Gemini.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := resp.Text()
	c.logger.DebugContext(ctx, "Gemini classification response",
		logger.IntField("headlines", len(headlines)),
		logger.StringField("response", text),
	)

	predictions, err := parseGeminiPredictions(text)
	if err != nil {
		return nil, err
	}
	if len(predictions) != len(headlines) {
		return nil, fmt.Errorf("gemini returned %d predictions for %d headlines", len(predictions), len(headlines))
	}

	for i := range predictions {
		predictions[i] = normalizePrediction(predictions[i])
	}

	return predictions, nil
}

// parseGeminiPredictions extracts the JSON array from the model output,
// tolerating markdown code fences around it.
func parseGeminiPredictions(text string) ([]dto.Prediction, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in gemini response")
	}

	var predictions []dto.Prediction
	if err := json.Unmarshal([]byte(text[start:end+1]), &predictions); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	return predictions, nil
}

func normalizePrediction(p dto.Prediction) dto.Prediction {
	p.Label = strings.ToLower(strings.TrimSpace(p.Label))
	switch p.Label {
	case entity.SentimentPositive, entity.SentimentNegative:
	default:
		p.Label = entity.SentimentNeutral
	}
	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 1 {
		p.Confidence = 1
	}
	return p
}
