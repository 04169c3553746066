package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sentiment-price-tracker/internal/entity"
	"sentiment-price-tracker/internal/pipeline/config"
	"sentiment-price-tracker/internal/pipeline/dto"
	"sentiment-price-tracker/internal/pipeline/repository"
	"sentiment-price-tracker/pkg/common"
	"sentiment-price-tracker/pkg/logger"
	"sentiment-price-tracker/pkg/telegram"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Clock abstracts wall-clock reads so cycle and watermark behavior can be
// tested without real delays.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// HeadlineFetcher is the contract the orchestrator needs from the feed layer.
type HeadlineFetcher interface {
	Fetch(ctx context.Context) []dto.NewsItem
}

// PipelineService runs the recurring ingest -> classify -> persist loop.
// It owns the price watermark: the latest timestamp through which price data
// has been durably written, used as the lower bound of the next fetch window.
type PipelineService struct {
	cfg           *config.Config
	logger        *logger.Logger
	feedFetcher   HeadlineFetcher
	deduplicator  *Deduplicator
	classifier    Classifier
	sentimentRepo repository.SentimentRepository
	priceRepo     repository.PriceRepository
	quoteRepo     repository.YahooFinanceRepository
	runRepo       repository.PipelineRunRepository
	redisClient   *redis.Client
	notifier      telegram.Notifier
	clock         Clock

	// mu guards watermark and lastCycle against concurrent reads from the
	// status endpoint; the loop itself is single-threaded.
	mu        sync.RWMutex
	watermark *time.Time
	lastCycle *dto.CycleSummary
}

// NewPipelineService creates a new pipeline orchestrator. redisClient and
// notifier may be nil; the corresponding side effects are then skipped.
func NewPipelineService(
	cfg *config.Config,
	log *logger.Logger,
	feedFetcher HeadlineFetcher,
	deduplicator *Deduplicator,
	classifier Classifier,
	sentimentRepo repository.SentimentRepository,
	priceRepo repository.PriceRepository,
	quoteRepo repository.YahooFinanceRepository,
	runRepo repository.PipelineRunRepository,
	redisClient *redis.Client,
	notifier telegram.Notifier,
) *PipelineService {
	return &PipelineService{
		cfg:           cfg,
		logger:        log,
		feedFetcher:   feedFetcher,
		deduplicator:  deduplicator,
		classifier:    classifier,
		sentimentRepo: sentimentRepo,
		priceRepo:     priceRepo,
		quoteRepo:     quoteRepo,
		runRepo:       runRepo,
		redisClient:   redisClient,
		notifier:      notifier,
		clock:         realClock{},
	}
}

// Init recovers the watermark from durable storage. Failing here is a fatal
// startup condition; the caller is expected to halt.
func (s *PipelineService) Init(ctx context.Context) error {
	latest, err := s.priceRepo.LatestTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover watermark from price table: %w", err)
	}
	s.setWatermark(latest)
	if latest != nil {
		s.logger.Info("Watermark recovered from storage", logger.Field("watermark", *latest))
	} else {
		s.logger.Info("Price table empty, starting without watermark")
	}
	return nil
}

// Start runs cycles until the context is canceled. Cycles never overlap: an
// overrunning cycle delays the next tick rather than spawning a second one.
func (s *PipelineService) Start(ctx context.Context) {
	if s.cfg.Pipeline.Schedule != "" {
		s.startCron(ctx)
		return
	}

	s.logger.Info("Starting pipeline loop", logger.Field("interval", s.cfg.Pipeline.Interval))

	ticker := time.NewTicker(s.cfg.Pipeline.Interval)
	defer ticker.Stop()

	s.safeRunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Pipeline loop stopping")
			return
		case <-ticker.C:
			s.safeRunCycle(ctx)
		}
	}
}

// startCron runs cycles on a cron schedule instead of a fixed interval.
func (s *PipelineService) startCron(ctx context.Context) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(s.cfg.Pipeline.Schedule)
	if err != nil {
		s.logger.Error("Invalid cron schedule, falling back to fixed interval",
			logger.ErrorField(err), logger.StringField("schedule", s.cfg.Pipeline.Schedule))
		s.cfg.Pipeline.Schedule = ""
		s.Start(ctx)
		return
	}

	s.logger.Info("Starting pipeline loop", logger.StringField("schedule", s.cfg.Pipeline.Schedule))

	for {
		next := schedule.Next(s.clock.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Pipeline loop stopping")
			return
		case <-timer.C:
			s.safeRunCycle(ctx)
		}
	}
}

// safeRunCycle guards the loop against a panicking cycle: the failure is
// logged as critical and the loop moves on to the next interval.
func (s *PipelineService) safeRunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline cycle panic: %v", r)
			s.logger.Error("Pipeline cycle failed", logger.ErrorField(err))
			s.notifyFailure(err)
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.Pipeline.CycleTimeout)
	defer cancel()

	s.RunCycle(cycleCtx)
}

// RunCycle executes one full ingestion -> inference -> persistence pass.
//
// The news and price branches share nothing but this method's error
// isolation: a classifier failure cannot roll back a committed price write,
// and a price failure cannot block sentiment ingestion.
func (s *PipelineService) RunCycle(ctx context.Context) dto.CycleSummary {
	startedAt := s.clock.Now()
	summary := dto.CycleSummary{StartedAt: startedAt}

	s.logger.Info("Pipeline cycle started")

	run := &entity.PipelineRun{Status: entity.RunStatusRunning, StartedAt: startedAt}
	if s.runRepo != nil {
		if err := s.runRepo.Create(ctx, run); err != nil {
			s.logger.Error("Failed to create pipeline run record", logger.ErrorField(err))
			run = nil
		}
	} else {
		run = nil
	}

	// Ingest. The two fetches are independent; neither failure blocks the
	// other because both degrade to empty slices at the component boundary.
	fetchEnd := startedAt
	headlines := s.feedFetcher.Fetch(ctx)
	summary.HeadlinesFetched = len(headlines)

	newItems := s.deduplicator.Filter(ctx, headlines)
	summary.HeadlinesNew = len(newItems)

	prices, priceFetchOK := s.fetchPrices(ctx, headlines, fetchEnd, &summary)
	summary.PriceRowsFetched = len(prices)

	// Persist price, then advance the watermark only on success. A failed
	// write leaves the watermark untouched so the same window is retried
	// next cycle.
	priceWriteOK := priceFetchOK
	if priceWriteOK && len(prices) > 0 {
		if err := s.priceRepo.CreateIgnoreConflict(ctx, prices); err != nil {
			priceWriteOK = false
			summary.Errors = append(summary.Errors, fmt.Sprintf("price write: %v", err))
			s.logger.Error("Failed to write price rows", logger.ErrorField(err), logger.IntField("rows", len(prices)))
		}
	}
	summary.PriceWriteOK = priceWriteOK

	if priceWriteOK {
		s.setWatermark(&fetchEnd)
		s.logger.Info("Watermark advanced", logger.Field("watermark", fetchEnd))
	} else {
		s.logger.Warn("Watermark unchanged, window will be retried next cycle")
	}
	summary.Watermark = s.Watermark()

	// Classify and persist sentiment. A classifier failure skips this
	// cycle's sentiment ingestion entirely; the price outcome above is
	// already settled.
	if len(newItems) > 0 {
		written, skipped, errs := s.classifyAndPersist(ctx, newItems)
		summary.SentimentWritten = written
		summary.ClassifierSkipped = skipped
		summary.Errors = append(summary.Errors, errs...)
	} else {
		s.logger.Info("No new headlines to classify")
	}

	summary.CompletedAt = s.clock.Now()
	s.finalizeRun(ctx, run, &summary)
	s.publishCycleEvent(ctx, &summary)

	s.mu.Lock()
	s.lastCycle = &summary
	s.mu.Unlock()

	s.logger.Info("Pipeline cycle finished",
		logger.IntField("headlines_new", summary.HeadlinesNew),
		logger.IntField("sentiment_written", summary.SentimentWritten),
		logger.IntField("price_rows", summary.PriceRowsFetched),
		logger.Field("duration", summary.CompletedAt.Sub(summary.StartedAt)),
	)

	return summary
}

// fetchPrices computes the fetch window from the watermark and retrieves the
// price series. The bool result reports whether the fetch reached a final
// result (possibly empty); false means the batch itself failed.
func (s *PipelineService) fetchPrices(ctx context.Context, headlines []dto.NewsItem, fetchEnd time.Time, summary *dto.CycleSummary) ([]entity.PriceRecord, bool) {
	start := s.priceWindowStart(headlines, fetchEnd)

	if !start.Before(fetchEnd) {
		s.logger.Info("Price data up to date, skipping fetch")
		return nil, true
	}

	prices, err := s.quoteRepo.GetPrices(ctx, s.cfg.Pipeline.Tickers, start, fetchEnd)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("price fetch: %v", err))
		s.logger.Error("Price fetch failed", logger.ErrorField(err))
		return nil, false
	}
	return prices, true
}

// priceWindowStart picks the lower bound of the fetch window. With a
// watermark it is the watermark itself. On first run the window covers one
// pipeline interval, widened to the configured lookback before the earliest
// headline when headlines are present, so price history covers the earliest
// news context.
func (s *PipelineService) priceWindowStart(headlines []dto.NewsItem, fetchEnd time.Time) time.Time {
	if wm := s.Watermark(); wm != nil {
		return *wm
	}
	if len(headlines) > 0 {
		earliest := headlines[0].PublishedAt
		for _, item := range headlines[1:] {
			if item.PublishedAt.Before(earliest) {
				earliest = item.PublishedAt
			}
		}
		return earliest.Add(-s.cfg.Pipeline.FirstRunLookback)
	}
	return fetchEnd.Add(-s.cfg.Pipeline.Interval)
}

// classifyAndPersist scores the new headlines and writes the resulting rows.
// Returns rows written, whether classification was skipped, and errors.
func (s *PipelineService) classifyAndPersist(ctx context.Context, items []dto.NewsItem) (int, bool, []string) {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Headline
	}

	predictions, err := s.classifier.Classify(ctx, texts)
	if err != nil {
		s.logger.Error("Classification failed, skipping sentiment ingestion this cycle", logger.ErrorField(err))
		return 0, true, []string{fmt.Sprintf("classify: %v", err)}
	}
	if len(predictions) != len(items) {
		err := fmt.Errorf("classifier returned %d predictions for %d headlines", len(predictions), len(items))
		s.logger.Error("Classification failed, skipping sentiment ingestion this cycle", logger.ErrorField(err))
		return 0, true, []string{err.Error()}
	}

	records := make([]entity.SentimentRecord, len(items))
	for i, item := range items {
		records[i] = entity.SentimentRecord{
			Ticker:         item.Ticker,
			Alias:          item.Alias,
			Headline:       item.Headline,
			SentimentScore: SignedScore(predictions[i]),
			SentimentLabel: predictions[i].Label,
			Link:           item.Link,
			Keywords:       pq.StringArray(predictions[i].Keywords),
			PublishedAt:    item.PublishedAt,
		}
	}

	if err := s.sentimentRepo.CreateIgnoreConflict(ctx, records); err != nil {
		s.logger.Error("Failed to write sentiment rows", logger.ErrorField(err), logger.IntField("rows", len(records)))
		return 0, false, []string{fmt.Sprintf("sentiment write: %v", err)}
	}

	s.deduplicator.MarkWritten(items)
	return len(records), false, nil
}

func (s *PipelineService) finalizeRun(ctx context.Context, run *entity.PipelineRun, summary *dto.CycleSummary) {
	if run == nil {
		return
	}

	run.Status = entity.RunStatusCompleted
	if len(summary.Errors) > 0 {
		run.Status = entity.RunStatusFailed
		run.ErrorMessage = sql.NullString{String: summary.Errors[0], Valid: true}
	}
	run.CompletedAt = sql.NullTime{Time: summary.CompletedAt, Valid: true}

	if payload, err := json.Marshal(summary); err == nil {
		run.Result = payload
	}

	if err := s.runRepo.Update(ctx, run); err != nil {
		s.logger.Error("Failed to update pipeline run record", logger.ErrorField(err))
	}
}

// publishCycleEvent emits the cycle summary to the Redis stream for
// observability consumers. Publish failures never affect the cycle outcome.
func (s *PipelineService) publishCycleEvent(ctx context.Context, summary *dto.CycleSummary) {
	if s.redisClient == nil {
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		s.logger.Error("Failed to marshal cycle summary", logger.ErrorField(err))
		return
	}

	if err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: common.RedisStreamPipelineCycle,
		Values: map[string]interface{}{"payload": payload},
		MaxLen: s.cfg.Redis.StreamMaxLen,
	}).Err(); err != nil {
		s.logger.Error("Failed to publish cycle event", logger.ErrorField(err))
	}
}

func (s *PipelineService) notifyFailure(err error) {
	if s.notifier == nil {
		return
	}
	msg := telegram.FormatCycleFailure(s.cfg.App.Name, s.clock.Now(), err)
	if sendErr := s.notifier.SendMessage(msg); sendErr != nil {
		s.logger.Error("Failed to send failure notification", logger.ErrorField(sendErr))
	}
}

// Watermark returns the current watermark, or nil before any successful
// price cycle on an empty store.
func (s *PipelineService) Watermark() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

func (s *PipelineService) setWatermark(ts *time.Time) {
	s.mu.Lock()
	s.watermark = ts
	s.mu.Unlock()
}

// Status reports the current pipeline state for the /status endpoint.
func (s *PipelineService) Status() dto.PipelineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dto.PipelineStatus{
		App:       s.cfg.App.Name,
		Watermark: s.watermark,
		LastCycle: s.lastCycle,
	}
}
