package config

import (
	"time"

	"sentiment-price-tracker/pkg/config"
)

// Source describes one news feed to poll: the ticker it belongs to, a
// display alias, and the RSS feed URL.
type Source struct {
	Ticker  string `mapstructure:"ticker"`
	Alias   string `mapstructure:"alias"`
	FeedURL string `mapstructure:"feed_url"`
}

// Pipeline holds the orchestrator configuration.
type Pipeline struct {
	Interval         time.Duration `mapstructure:"interval"`
	Schedule         string        `mapstructure:"schedule"`
	CycleTimeout     time.Duration `mapstructure:"cycle_timeout"`
	FirstRunLookback time.Duration `mapstructure:"first_run_lookback"`
	Sources          []Source      `mapstructure:"sources"`
	Tickers          []string      `mapstructure:"tickers"`
}

// Classifier holds sentiment classifier configuration.
type Classifier struct {
	Provider  string `mapstructure:"provider"`
	BatchSize int    `mapstructure:"batch_size"`
}

// Gemini holds the configuration for the Gemini API.
type Gemini struct {
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute"`
}

// YahooFinance holds the configuration for the Yahoo Finance API.
type YahooFinance struct {
	BaseURL             string `mapstructure:"base_url"`
	Interval            string `mapstructure:"interval"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the pipeline service.
type Config struct {
	App          config.App      `mapstructure:"app"`
	Logger       config.Logger   `mapstructure:"logger"`
	Database     config.Database `mapstructure:"database"`
	Redis        config.Redis    `mapstructure:"redis"`
	API          config.API      `mapstructure:"api"`
	Pipeline     Pipeline        `mapstructure:"pipeline"`
	Classifier   Classifier      `mapstructure:"classifier"`
	Gemini       Gemini          `mapstructure:"gemini"`
	YahooFinance YahooFinance    `mapstructure:"yahoo_finance"`
	Telegram     Telegram        `mapstructure:"telegram"`
}

// Load loads the pipeline configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}

	if cfg.Pipeline.Interval == 0 {
		cfg.Pipeline.Interval = 5 * time.Minute
	}
	if cfg.Pipeline.CycleTimeout == 0 {
		cfg.Pipeline.CycleTimeout = 4 * time.Minute
	}
	if cfg.Pipeline.FirstRunLookback == 0 {
		cfg.Pipeline.FirstRunLookback = 365 * 24 * time.Hour
	}
	if cfg.Classifier.BatchSize == 0 {
		cfg.Classifier.BatchSize = 32
	}
	if cfg.YahooFinance.BaseURL == "" {
		cfg.YahooFinance.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.YahooFinance.Interval == "" {
		cfg.YahooFinance.Interval = "1d"
	}
	if cfg.YahooFinance.MaxRequestPerMinute == 0 {
		cfg.YahooFinance.MaxRequestPerMinute = 30
	}

	return &cfg, nil
}
