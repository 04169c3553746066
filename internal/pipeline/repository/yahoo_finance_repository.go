package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"sentiment-price-tracker/internal/entity"
	"sentiment-price-tracker/internal/pipeline/config"
	"sentiment-price-tracker/internal/pipeline/dto"
	"sentiment-price-tracker/pkg/logger"

	"golang.org/x/time/rate"
)

// YahooFinanceRepository fetches close-price series from the Yahoo Finance
// chart API.
type YahooFinanceRepository interface {
	GetPrices(ctx context.Context, tickers []string, start, end time.Time) ([]entity.PriceRecord, error)
}

type yahooFinanceRepository struct {
	cfg            *config.Config
	log            *logger.Logger
	httpClient     *http.Client
	requestLimiter *rate.Limiter
}

// NewYahooFinanceRepository creates a new rate-limited Yahoo Finance repository.
func NewYahooFinanceRepository(cfg *config.Config, log *logger.Logger) YahooFinanceRepository {
	secondsPerRequest := time.Minute / time.Duration(cfg.YahooFinance.MaxRequestPerMinute)
	return &yahooFinanceRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
	}
}

// GetPrices fetches the [start, end) window for every ticker. A ticker whose
// fetch fails or whose series is entirely empty is excluded from the output;
// the remaining tickers proceed. Only context cancellation aborts the batch.
func (r *yahooFinanceRepository) GetPrices(ctx context.Context, tickers []string, start, end time.Time) ([]entity.PriceRecord, error) {
	seen := make(map[string]bool, len(tickers))
	var records []entity.PriceRecord

	for _, ticker := range tickers {
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true

		rows, err := r.fetchTicker(ctx, ticker, start, end)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return records, err
			}
			r.log.Error("Failed to fetch price series, excluding ticker",
				logger.ErrorField(err), logger.StringField("ticker", ticker))
			continue
		}
		if len(rows) == 0 {
			r.log.Warn("Price series empty for ticker", logger.StringField("ticker", ticker))
			continue
		}
		records = append(records, rows...)
	}

	r.log.Info("Price fetch complete",
		logger.IntField("tickers", len(seen)),
		logger.IntField("rows", len(records)),
	)

	return records, nil
}

func (r *yahooFinanceRepository) fetchTicker(ctx context.Context, ticker string, start, end time.Time) ([]entity.PriceRecord, error) {
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	chartURL := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=%s",
		r.cfg.YahooFinance.BaseURL, url.PathEscape(ticker),
		start.Unix(), end.Unix(), r.cfg.YahooFinance.Interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chartURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chart API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d for %s", resp.StatusCode, ticker)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chart response: %w", err)
	}

	var chartResp dto.YahooChartResponse
	if err := json.Unmarshal(body, &chartResp); err != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if chartResp.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error: %s", chartResp.Chart.Error.Description)
	}
	if len(chartResp.Chart.Result) == 0 {
		return nil, nil
	}

	return normalizeChartResult(ticker, chartResp.Chart.Result[0]), nil
}

// normalizeChartResult flattens one chart result into price records,
// dropping bars with a missing close.
func normalizeChartResult(ticker string, result dto.YahooChartResult) []entity.PriceRecord {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]

	var records []entity.PriceRecord
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		records = append(records, entity.PriceRecord{
			Ticker:     ticker,
			ClosePrice: *quote.Close[i],
			Volume:     volume,
			Timestamp:  time.Unix(ts, 0).UTC(),
		})
	}
	return records
}
