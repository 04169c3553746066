package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentiment-price-tracker/internal/entity"
	"sentiment-price-tracker/internal/pipeline/config"
	"sentiment-price-tracker/internal/pipeline/dto"
	pkgconfig "sentiment-price-tracker/pkg/config"
	"sentiment-price-tracker/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type fakeFetcher struct {
	items []dto.NewsItem
}

func (f *fakeFetcher) Fetch(_ context.Context) []dto.NewsItem { return f.items }

type fakeClassifier struct {
	predictions []dto.Prediction
	err         error
	calls       int
}

func (f *fakeClassifier) Classify(_ context.Context, texts []string) ([]dto.Prediction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.predictions != nil {
		return f.predictions, nil
	}
	out := make([]dto.Prediction, len(texts))
	for i := range texts {
		out[i] = dto.Prediction{Label: entity.SentimentPositive, Confidence: 0.9}
	}
	return out, nil
}

type fakeSentimentStore struct {
	existing map[string]bool
	written  []entity.SentimentRecord
	writeErr error
}

func (f *fakeSentimentStore) CreateIgnoreConflict(_ context.Context, records []entity.SentimentRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, records...)
	return nil
}

func (f *fakeSentimentStore) FindExistingLinks(_ context.Context, links []string) ([]string, error) {
	var out []string
	for _, link := range links {
		if f.existing[link] {
			out = append(out, link)
		}
	}
	return out, nil
}

type fakePriceStore struct {
	latest    *time.Time
	latestErr error
	written   []entity.PriceRecord
	writeErr  error
}

func (f *fakePriceStore) CreateIgnoreConflict(_ context.Context, records []entity.PriceRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, records...)
	return nil
}

func (f *fakePriceStore) LatestTimestamp(_ context.Context) (*time.Time, error) {
	return f.latest, f.latestErr
}

type quoteCall struct {
	tickers    []string
	start, end time.Time
}

type fakeQuoteStore struct {
	prices []entity.PriceRecord
	err    error
	calls  []quoteCall
}

func (f *fakeQuoteStore) GetPrices(_ context.Context, tickers []string, start, end time.Time) ([]entity.PriceRecord, error) {
	f.calls = append(f.calls, quoteCall{tickers: tickers, start: start, end: end})
	if f.err != nil {
		return nil, f.err
	}
	return f.prices, nil
}

type fakeRunStore struct {
	created []*entity.PipelineRun
	updated []*entity.PipelineRun
}

func (f *fakeRunStore) Create(_ context.Context, run *entity.PipelineRun) error {
	run.ID = uint(len(f.created) + 1)
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRunStore) Update(_ context.Context, run *entity.PipelineRun) error {
	f.updated = append(f.updated, run)
	return nil
}

type pipelineFixture struct {
	svc       *PipelineService
	clock     *fixedClock
	fetcher   *fakeFetcher
	classify  *fakeClassifier
	sentiment *fakeSentimentStore
	price     *fakePriceStore
	quote     *fakeQuoteStore
	runs      *fakeRunStore
}

func newPipelineFixture() *pipelineFixture {
	cfg := &config.Config{
		App: pkgconfig.App{Name: "sentiment-price-tracker"},
		Pipeline: config.Pipeline{
			Interval:         5 * time.Minute,
			CycleTimeout:     4 * time.Minute,
			FirstRunLookback: 24 * time.Hour,
			Tickers:          []string{"AMZN"},
		},
	}

	fx := &pipelineFixture{
		clock:     &fixedClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		fetcher:   &fakeFetcher{},
		classify:  &fakeClassifier{},
		sentiment: &fakeSentimentStore{existing: map[string]bool{}},
		price:     &fakePriceStore{},
		quote:     &fakeQuoteStore{},
		runs:      &fakeRunStore{},
	}

	log := logger.NewNop()
	fx.svc = NewPipelineService(cfg, log, fx.fetcher, NewDeduplicator(fx.sentiment, log),
		fx.classify, fx.sentiment, fx.price, fx.quote, fx.runs, nil, nil)
	fx.svc.clock = fx.clock
	return fx
}

func TestRunCycle_ColdStart(t *testing.T) {
	fx := newPipelineFixture()
	published := fx.clock.now.Add(-2 * time.Hour)
	fx.fetcher.items = []dto.NewsItem{{
		Headline:    "Amazon reports record profit",
		Ticker:      "AMZN",
		Alias:       "Amazon",
		Link:        HashLink("http://example.com/1"),
		PublishedAt: published,
	}}
	fx.quote.prices = []entity.PriceRecord{{
		Ticker:     "AMZN",
		ClosePrice: 150.0,
		Volume:     1000,
		Timestamp:  fx.clock.now.Add(-time.Hour),
	}}

	require.NoError(t, fx.svc.Init(context.Background()))
	summary := fx.svc.RunCycle(context.Background())

	require.Len(t, fx.quote.calls, 1)
	assert.Equal(t, []string{"AMZN"}, fx.quote.calls[0].tickers)
	assert.Equal(t, published.Add(-24*time.Hour), fx.quote.calls[0].start,
		"first-run window opens one lookback before the earliest headline")
	assert.Equal(t, fx.clock.now, fx.quote.calls[0].end)

	require.Len(t, fx.price.written, 1)
	assert.Equal(t, 150.0, fx.price.written[0].ClosePrice)

	require.Len(t, fx.sentiment.written, 1)
	rec := fx.sentiment.written[0]
	assert.Equal(t, HashLink("http://example.com/1"), rec.Link)
	assert.Equal(t, entity.SentimentPositive, rec.SentimentLabel)
	assert.InDelta(t, 0.9, rec.SentimentScore, 1e-9)

	require.NotNil(t, fx.svc.Watermark())
	assert.Equal(t, fx.clock.now, *fx.svc.Watermark())
	assert.True(t, summary.PriceWriteOK)
	assert.Equal(t, 1, summary.SentimentWritten)
	assert.Empty(t, summary.Errors)
}

func TestRunCycle_SecondCycleSkipsDuplicates(t *testing.T) {
	fx := newPipelineFixture()
	item := dto.NewsItem{
		Headline:    "Amazon reports record profit",
		Ticker:      "AMZN",
		Link:        HashLink("http://example.com/1"),
		PublishedAt: fx.clock.now.Add(-time.Hour),
	}
	fx.fetcher.items = []dto.NewsItem{item}
	fx.sentiment.existing[item.Link] = true
	latest := fx.clock.now
	fx.price.latest = &latest

	require.NoError(t, fx.svc.Init(context.Background()))
	summary := fx.svc.RunCycle(context.Background())

	assert.Empty(t, fx.quote.calls, "window with start >= end is skipped")
	assert.Empty(t, fx.sentiment.written)
	assert.Zero(t, fx.classify.calls)
	assert.Equal(t, 1, summary.HeadlinesFetched)
	assert.Equal(t, 0, summary.HeadlinesNew)
	assert.True(t, summary.PriceWriteOK, "an empty window still counts as success")
	assert.Equal(t, fx.clock.now, *fx.svc.Watermark())
}

func TestRunCycle_PriceWriteFailureFreezesWatermark(t *testing.T) {
	fx := newPipelineFixture()
	fx.fetcher.items = []dto.NewsItem{{
		Headline:    "Amazon shares fall",
		Ticker:      "AMZN",
		Link:        HashLink("http://example.com/2"),
		PublishedAt: fx.clock.now.Add(-time.Hour),
	}}
	fx.quote.prices = []entity.PriceRecord{{Ticker: "AMZN", ClosePrice: 140.0, Timestamp: fx.clock.now}}
	fx.price.writeErr = errors.New("deadlock detected")

	require.NoError(t, fx.svc.Init(context.Background()))
	summary := fx.svc.RunCycle(context.Background())

	assert.False(t, summary.PriceWriteOK)
	assert.Nil(t, fx.svc.Watermark(), "failed write must not advance the watermark")
	assert.NotEmpty(t, summary.Errors)
	assert.Equal(t, 1, summary.SentimentWritten, "price failure must not block sentiment ingestion")

	// The next cycle retries the same window from scratch.
	fx.price.writeErr = nil
	fx.svc.RunCycle(context.Background())
	require.Len(t, fx.quote.calls, 2)
	assert.Equal(t, fx.quote.calls[0].start, fx.quote.calls[1].start)
	assert.Equal(t, fx.clock.now, *fx.svc.Watermark())
}

func TestRunCycle_PriceFetchFailureFreezesWatermark(t *testing.T) {
	fx := newPipelineFixture()
	fx.fetcher.items = []dto.NewsItem{{
		Headline:    "Amazon launches new service",
		Ticker:      "AMZN",
		Link:        HashLink("http://example.com/3"),
		PublishedAt: fx.clock.now.Add(-time.Hour),
	}}
	fx.quote.err = errors.New("upstream 500")

	require.NoError(t, fx.svc.Init(context.Background()))
	summary := fx.svc.RunCycle(context.Background())

	assert.False(t, summary.PriceWriteOK)
	assert.Nil(t, fx.svc.Watermark())
	assert.Equal(t, 1, summary.SentimentWritten)
}

func TestRunCycle_ClassifierFailureSkipsSentiment(t *testing.T) {
	fx := newPipelineFixture()
	fx.fetcher.items = []dto.NewsItem{{
		Headline:    "Amazon beats estimates",
		Ticker:      "AMZN",
		Link:        HashLink("http://example.com/4"),
		PublishedAt: fx.clock.now.Add(-time.Hour),
	}}
	fx.quote.prices = []entity.PriceRecord{{Ticker: "AMZN", ClosePrice: 151.0, Timestamp: fx.clock.now}}
	fx.classify.err = errors.New("model unavailable")

	require.NoError(t, fx.svc.Init(context.Background()))
	summary := fx.svc.RunCycle(context.Background())

	assert.True(t, summary.ClassifierSkipped)
	assert.Zero(t, summary.SentimentWritten)
	assert.Empty(t, fx.sentiment.written)
	assert.Len(t, fx.price.written, 1, "classifier failure must not roll back the price write")
	assert.Equal(t, fx.clock.now, *fx.svc.Watermark())

	// Skipped headlines are not marked written, so the next cycle retries them.
	fx.classify.err = nil
	fx.svc.RunCycle(context.Background())
	assert.Len(t, fx.sentiment.written, 1)
}

func TestRunCycle_PredictionCountMismatchSkipsSentiment(t *testing.T) {
	fx := newPipelineFixture()
	fx.fetcher.items = []dto.NewsItem{
		{Headline: "one", Ticker: "AMZN", Link: HashLink("http://example.com/a"), PublishedAt: fx.clock.now},
		{Headline: "two", Ticker: "AMZN", Link: HashLink("http://example.com/b"), PublishedAt: fx.clock.now},
	}
	fx.classify.predictions = []dto.Prediction{{Label: entity.SentimentNeutral}}

	require.NoError(t, fx.svc.Init(context.Background()))
	summary := fx.svc.RunCycle(context.Background())

	assert.True(t, summary.ClassifierSkipped)
	assert.Empty(t, fx.sentiment.written)
}

func TestRunCycle_NoHeadlinesFirstRunWindow(t *testing.T) {
	fx := newPipelineFixture()

	require.NoError(t, fx.svc.Init(context.Background()))
	fx.svc.RunCycle(context.Background())

	require.Len(t, fx.quote.calls, 1)
	assert.Equal(t, fx.clock.now.Add(-5*time.Minute), fx.quote.calls[0].start,
		"without headlines the first window covers one interval")
	assert.Equal(t, fx.clock.now, fx.quote.calls[0].end)
}

func TestRunCycle_RecordsRunHistory(t *testing.T) {
	fx := newPipelineFixture()
	fx.quote.prices = []entity.PriceRecord{{Ticker: "AMZN", ClosePrice: 149.0, Timestamp: fx.clock.now}}

	require.NoError(t, fx.svc.Init(context.Background()))
	fx.svc.RunCycle(context.Background())

	require.Len(t, fx.runs.created, 1)
	require.Len(t, fx.runs.updated, 1)
	run := fx.runs.updated[0]
	assert.Equal(t, entity.RunStatusCompleted, run.Status)
	assert.True(t, run.CompletedAt.Valid)
	assert.NotEmpty(t, run.Result)
}

func TestRunCycle_RunMarkedFailedOnErrors(t *testing.T) {
	fx := newPipelineFixture()
	fx.quote.err = errors.New("upstream timeout")

	require.NoError(t, fx.svc.Init(context.Background()))
	fx.svc.RunCycle(context.Background())

	require.Len(t, fx.runs.updated, 1)
	run := fx.runs.updated[0]
	assert.Equal(t, entity.RunStatusFailed, run.Status)
	assert.True(t, run.ErrorMessage.Valid)
}

func TestInit_RecoversWatermark(t *testing.T) {
	fx := newPipelineFixture()
	latest := time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC)
	fx.price.latest = &latest

	require.NoError(t, fx.svc.Init(context.Background()))
	require.NotNil(t, fx.svc.Watermark())
	assert.Equal(t, latest, *fx.svc.Watermark())
}

func TestInit_FailsWhenStorageUnavailable(t *testing.T) {
	fx := newPipelineFixture()
	fx.price.latestErr = errors.New("connection refused")

	assert.Error(t, fx.svc.Init(context.Background()))
}

func TestStatus_ReflectsLastCycle(t *testing.T) {
	fx := newPipelineFixture()

	require.NoError(t, fx.svc.Init(context.Background()))
	assert.Nil(t, fx.svc.Status().LastCycle)

	fx.svc.RunCycle(context.Background())

	status := fx.svc.Status()
	assert.Equal(t, "sentiment-price-tracker", status.App)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, fx.clock.now, status.LastCycle.StartedAt)
	require.NotNil(t, status.Watermark)
}
