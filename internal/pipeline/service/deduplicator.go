package service

import (
	"context"
	"time"

	"sentiment-price-tracker/internal/pipeline/dto"
	"sentiment-price-tracker/internal/pipeline/repository"
	"sentiment-price-tracker/pkg/logger"

	"github.com/patrickmn/go-cache"
)

// Deduplicator filters out headlines whose link hash is already stored.
// The storage check failing is not fatal: the filter fails open and returns
// the full input, because the write path's uniqueness constraint catches
// duplicates anyway while a dropped headline is gone for good.
type Deduplicator struct {
	sentimentRepo repository.SentimentRepository
	logger        *logger.Logger
	seenCache     *cache.Cache
}

// NewDeduplicator creates a new Deduplicator.
func NewDeduplicator(sentimentRepo repository.SentimentRepository, log *logger.Logger) *Deduplicator {
	return &Deduplicator{
		sentimentRepo: sentimentRepo,
		logger:        log,
		seenCache:     cache.New(30*time.Minute, 10*time.Minute),
	}
}

// Filter returns the input minus items already present in storage.
func (d *Deduplicator) Filter(ctx context.Context, items []dto.NewsItem) []dto.NewsItem {
	if len(items) == 0 {
		return items
	}

	// Links written by this process recently don't need a storage round trip.
	var remaining []dto.NewsItem
	cachedHits := 0
	for _, item := range items {
		if _, found := d.seenCache.Get(item.Link); found {
			cachedHits++
			continue
		}
		remaining = append(remaining, item)
	}
	if len(remaining) == 0 {
		d.logger.Info("Deduplication complete", logger.IntField("fetched", len(items)), logger.IntField("new", 0))
		return nil
	}

	distinct := make(map[string]bool, len(remaining))
	var links []string
	for _, item := range remaining {
		if !distinct[item.Link] {
			distinct[item.Link] = true
			links = append(links, item.Link)
		}
	}

	existing, err := d.sentimentRepo.FindExistingLinks(ctx, links)
	if err != nil {
		d.logger.Error("Existence check failed, passing all items through",
			logger.ErrorField(err), logger.IntField("items", len(remaining)))
		return remaining
	}

	existingSet := make(map[string]bool, len(existing))
	for _, link := range existing {
		existingSet[link] = true
	}

	var fresh []dto.NewsItem
	for _, item := range remaining {
		if existingSet[item.Link] {
			continue
		}
		fresh = append(fresh, item)
	}

	d.logger.Info("Deduplication complete",
		logger.IntField("fetched", len(items)),
		logger.IntField("cached_duplicates", cachedHits),
		logger.IntField("stored_duplicates", len(existing)),
		logger.IntField("new", len(fresh)),
	)

	return fresh
}

// MarkWritten records links as durably written, short-circuiting future
// existence checks for them. Called only after a successful write.
func (d *Deduplicator) MarkWritten(items []dto.NewsItem) {
	for _, item := range items {
		d.seenCache.SetDefault(item.Link, struct{}{})
	}
}
