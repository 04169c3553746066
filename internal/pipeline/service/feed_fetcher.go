package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"

	"sentiment-price-tracker/internal/pipeline/config"
	"sentiment-price-tracker/internal/pipeline/dto"
	"sentiment-price-tracker/pkg/logger"
	"sentiment-price-tracker/pkg/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// FeedFetcher retrieves raw headlines from the configured RSS sources.
type FeedFetcher struct {
	sources []config.Source
	logger  *logger.Logger
	parser  *gofeed.Parser
}

// NewFeedFetcher creates a new FeedFetcher.
func NewFeedFetcher(sources []config.Source, log *logger.Logger) *FeedFetcher {
	return &FeedFetcher{
		sources: sources,
		logger:  log,
		parser:  gofeed.NewParser(),
	}
}

// Fetch retrieves headlines from every source. A failing source is logged
// and skipped; the remaining sources proceed. Timestamps are normalized to
// UTC, and an entry whose publish date cannot be parsed gets the current
// instant instead of being dropped.
func (f *FeedFetcher) Fetch(ctx context.Context) []dto.NewsItem {
	var items []dto.NewsItem

	for _, source := range f.sources {
		feed, err := f.parser.ParseURLWithContext(source.FeedURL, ctx)
		if err != nil {
			f.logger.Error("Failed to parse RSS feed, skipping source",
				logger.ErrorField(err),
				logger.StringField("ticker", source.Ticker),
				logger.StringField("feed_url", source.FeedURL),
			)
			continue
		}

		for _, entry := range feed.Items {
			if entry.Link == "" {
				continue
			}

			publishedAt := utils.TimeNowUTC()
			if entry.PublishedParsed != nil {
				publishedAt = entry.PublishedParsed.UTC()
			} else {
				f.logger.Warn("Failed to parse published date, using current time",
					logger.StringField("link", entry.Link),
					logger.StringField("ticker", source.Ticker),
				)
			}

			items = append(items, dto.NewsItem{
				Headline:    sanitizeHeadline(entry.Title),
				Ticker:      source.Ticker,
				Alias:       source.Alias,
				Link:        HashLink(entry.Link),
				PublishedAt: publishedAt,
			})
		}

		f.logger.Info("Fetched RSS feed",
			logger.StringField("ticker", source.Ticker),
			logger.IntField("entries", len(feed.Items)),
		)
	}

	return items
}

// HashLink computes the stable content identifier for a source URL.
func HashLink(link string) string {
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:])
}

// sanitizeHeadline strips markup that Google News embeds in item titles and
// descriptions, leaving plain text.
func sanitizeHeadline(title string) string {
	title = strings.TrimSpace(title)
	if !strings.Contains(title, "<") {
		return title
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(title))
	if err != nil {
		return title
	}
	return strings.TrimSpace(doc.Text())
}
