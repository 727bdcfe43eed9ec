package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Newsletter struct {
		Name           string `yaml:"name" json:"name" jsonschema:"default=Brief Delights,description=Newsletter brand name"`
		SiteURL        string `yaml:"site_url" json:"site_url" jsonschema:"required,description=Canonical site URL used in footer and tracking links"`
		UnsubscribeURL string `yaml:"unsubscribe_url" json:"unsubscribe_url" jsonschema:"description=Unsubscribe link placed in the footer"`
		Sender         string `yaml:"sender" json:"sender" jsonschema:"required,description=From address for outbound email"`
	} `yaml:"newsletter" json:"newsletter" jsonschema:"description=Newsletter identity"`

	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Tracking and admin server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:briefly.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Feeds      FeedsConfig        `yaml:"feeds" json:"feeds" jsonschema:"description=RSS feed aggregation configuration"`
	Segments   map[string]Segment `yaml:"segments" json:"segments" jsonschema:"required,description=Audience segments with their selection rules"`
	LLM        LLMConfig          `yaml:"llm" json:"llm" jsonschema:"description=LLM configuration for selection and summarization"`
	Extraction ExtractionConfig   `yaml:"extraction" json:"extraction" jsonschema:"description=Full-text extraction configuration"`
	Email      EmailConfig        `yaml:"email" json:"email" jsonschema:"description=Email delivery configuration"`

	Pipeline struct {
		ArtifactsDir string `yaml:"artifacts_dir" json:"artifacts_dir" jsonschema:"default=.tmp,description=Directory for per-run intermediate artifacts"`
	} `yaml:"pipeline" json:"pipeline" jsonschema:"description=Pipeline run configuration"`
}

// FeedsConfig holds the feed list and recency rules
type FeedsConfig struct {
	Lookback         time.Duration       `yaml:"lookback" json:"lookback" jsonschema:"default=24h,description=Recency window for articles"`
	ExtendedLookback time.Duration       `yaml:"extended_lookback" json:"extended_lookback" jsonschema:"default=48h,description=Widened window used when too few articles pass the filter"`
	MinArticles      int                 `yaml:"min_articles" json:"min_articles" jsonschema:"default=20,description=Minimum article count before the lookback window is widened"`
	Timeout          time.Duration       `yaml:"timeout" json:"timeout" jsonschema:"default=15s,description=Per-feed fetch timeout"`
	MaxConcurrent    int                 `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=10,description=Maximum concurrent feed fetches"`
	UserAgent        string              `yaml:"user_agent" json:"user_agent" jsonschema:"default=Briefly/1.0,description=User agent for feed requests"`
	Categories       map[string][]string `yaml:"categories" json:"categories" jsonschema:"required,description=Feed URLs grouped by category"`
}

// Segment describes one audience track and its content-selection rules
type Segment struct {
	Name              string   `yaml:"name" json:"name" jsonschema:"required"`
	Emoji             string   `yaml:"emoji" json:"emoji"`
	Description       string   `yaml:"description" json:"description"`
	SelectionCriteria string   `yaml:"selection_criteria" json:"selection_criteria"`
	FocusKeywords     []string `yaml:"focus_keywords" json:"focus_keywords"`
	SkipKeywords      []string `yaml:"skip_keywords" json:"skip_keywords"`
}

// TierBounds constrains how many articles land in each tier
type TierBounds struct {
	FullMin     int `yaml:"full_min" json:"full_min" jsonschema:"default=3"`
	FullMax     int `yaml:"full_max" json:"full_max" jsonschema:"default=4"`
	QuickMin    int `yaml:"quick_min" json:"quick_min" jsonschema:"default=5"`
	QuickMax    int `yaml:"quick_max" json:"quick_max" jsonschema:"default=8"`
	TrendingMin int `yaml:"trending_min" json:"trending_min" jsonschema:"default=3"`
	TrendingMax int `yaml:"trending_max" json:"trending_max" jsonschema:"default=5"`
}

// SelectionConfig holds selection-specific settings
type SelectionConfig struct {
	MaxCandidates int           `yaml:"max_candidates" json:"max_candidates" jsonschema:"default=50,description=Cap on articles sent to the LLM per segment"`
	Retries       int           `yaml:"retries" json:"retries" jsonschema:"default=3,description=Attempts before failing the segment on malformed output"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=300s,description=Timeout for the selection call"`
	Tiers         TierBounds    `yaml:"tiers" json:"tiers" jsonschema:"description=Per-tier count bounds"`
}

// SummaryConfig holds summarization-specific settings
type SummaryConfig struct {
	MaxContentChars int           `yaml:"max_content_chars" json:"max_content_chars" jsonschema:"default=3000,description=Content truncation before prompting"`
	MaxSummaryChars int           `yaml:"max_summary_chars" json:"max_summary_chars" jsonschema:"default=400,description=Reject summaries longer than this"`
	Retries         int           `yaml:"retries" json:"retries" jsonschema:"default=2,description=Attempts per article before dropping it"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=60s,description=Timeout per summarization call"`
	MaxConcurrent   int           `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=3,description=Concurrent summarization calls"`
}

// LLMConfig holds LLM configuration for selection and summarization
type LLMConfig struct {
	Endpoint      string          `yaml:"endpoint" json:"endpoint" jsonschema:"required,description=OpenAI-compatible API endpoint"`
	APIKey        string          `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model         string          `yaml:"model" json:"model" jsonschema:"required,description=Model for story selection"`
	SummaryModel  string          `yaml:"summary_model" json:"summary_model" jsonschema:"description=Cheaper model for summaries, defaults to model"`
	FallbackModel string          `yaml:"fallback_model" json:"fallback_model" jsonschema:"description=Model tried when the primary fails"`
	Temperature   float64         `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for selection"`
	MaxTokens     int             `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=2000,description=Maximum tokens in selection response"`
	Selection     SelectionConfig `yaml:"selection" json:"selection" jsonschema:"description=Selection-specific settings"`
	Summary       SummaryConfig   `yaml:"summary" json:"summary" jsonschema:"description=Summarization-specific settings"`
}

// ExtractionConfig holds full-text extraction settings
type ExtractionConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable full-text scraping for full-tier articles"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=10s,description=Extraction timeout per article"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Minimum text length to consider valid"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Briefly/1.0,description=User agent for article requests"`
}

// EmailConfig holds delivery provider settings
type EmailConfig struct {
	APIKey     string        `yaml:"api_key" json:"api_key" jsonschema:"description=Email provider API key (can use environment variable)"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size" jsonschema:"default=100,description=Subscribers per batch"`
	BatchDelay time.Duration `yaml:"batch_delay" json:"batch_delay" jsonschema:"default=1s,description=Delay between batches"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries" jsonschema:"default=3,description=Delivery attempts per recipient"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// setDefaults fills zero values with sensible defaults
func (c *Config) setDefaults() {
	if c.Newsletter.Name == "" {
		c.Newsletter.Name = "Brief Delights"
	}
	if c.Newsletter.UnsubscribeURL == "" && c.Newsletter.SiteURL != "" {
		c.Newsletter.UnsubscribeURL = c.Newsletter.SiteURL + "/unsubscribe"
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:briefly.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}

	if c.Feeds.Lookback == 0 {
		c.Feeds.Lookback = 24 * time.Hour
	}
	if c.Feeds.ExtendedLookback == 0 {
		c.Feeds.ExtendedLookback = 48 * time.Hour
	}
	if c.Feeds.MinArticles == 0 {
		c.Feeds.MinArticles = 20
	}
	if c.Feeds.Timeout == 0 {
		c.Feeds.Timeout = 15 * time.Second
	}
	if c.Feeds.MaxConcurrent == 0 {
		c.Feeds.MaxConcurrent = 10
	}
	if c.Feeds.UserAgent == "" {
		c.Feeds.UserAgent = "Briefly/1.0"
	}

	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.SummaryModel == "" {
		c.LLM.SummaryModel = c.LLM.Model
	}
	if c.LLM.Selection.MaxCandidates == 0 {
		c.LLM.Selection.MaxCandidates = 50
	}
	if c.LLM.Selection.Retries == 0 {
		c.LLM.Selection.Retries = 3
	}
	if c.LLM.Selection.Timeout == 0 {
		c.LLM.Selection.Timeout = 300 * time.Second
	}
	b := &c.LLM.Selection.Tiers
	if b.FullMin == 0 {
		b.FullMin = 3
	}
	if b.FullMax == 0 {
		b.FullMax = 4
	}
	if b.QuickMin == 0 {
		b.QuickMin = 5
	}
	if b.QuickMax == 0 {
		b.QuickMax = 8
	}
	if b.TrendingMin == 0 {
		b.TrendingMin = 3
	}
	if b.TrendingMax == 0 {
		b.TrendingMax = 5
	}
	if c.LLM.Summary.MaxContentChars == 0 {
		c.LLM.Summary.MaxContentChars = 3000
	}
	if c.LLM.Summary.MaxSummaryChars == 0 {
		c.LLM.Summary.MaxSummaryChars = 400
	}
	if c.LLM.Summary.Retries == 0 {
		c.LLM.Summary.Retries = 2
	}
	if c.LLM.Summary.Timeout == 0 {
		c.LLM.Summary.Timeout = 60 * time.Second
	}
	if c.LLM.Summary.MaxConcurrent == 0 {
		c.LLM.Summary.MaxConcurrent = 3
	}

	if c.Extraction.Timeout == 0 {
		c.Extraction.Timeout = 10 * time.Second
	}
	if c.Extraction.MinTextLength == 0 {
		c.Extraction.MinTextLength = 100
	}
	if c.Extraction.UserAgent == "" {
		c.Extraction.UserAgent = "Briefly/1.0"
	}

	if c.Email.BatchSize == 0 {
		c.Email.BatchSize = 100
	}
	if c.Email.BatchDelay == 0 {
		c.Email.BatchDelay = time.Second
	}
	if c.Email.MaxRetries == 0 {
		c.Email.MaxRetries = 3
	}

	if c.Pipeline.ArtifactsDir == "" {
		c.Pipeline.ArtifactsDir = ".tmp"
	}
}

// validate checks configuration for correctness, fatal at startup on failure
func validate(cfg *Config) error {
	if cfg.Newsletter.SiteURL == "" {
		return fmt.Errorf("newsletter.site_url is required")
	}
	if cfg.Newsletter.Sender == "" {
		return fmt.Errorf("newsletter.sender is required")
	}

	if cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required")
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}

	if len(cfg.Segments) == 0 {
		return fmt.Errorf("at least one segment must be configured")
	}
	for id, seg := range cfg.Segments {
		if seg.Name == "" {
			return fmt.Errorf("segment %q: name is required", id)
		}
	}

	if len(cfg.Feeds.Categories) == 0 {
		return fmt.Errorf("feeds.categories must not be empty")
	}
	if cfg.Feeds.ExtendedLookback < cfg.Feeds.Lookback {
		return fmt.Errorf("feeds.extended_lookback must not be shorter than feeds.lookback")
	}
	if cfg.Feeds.MaxConcurrent < 1 {
		return fmt.Errorf("feeds.max_concurrent must be positive")
	}

	b := cfg.LLM.Selection.Tiers
	if b.FullMin > b.FullMax || b.QuickMin > b.QuickMax || b.TrendingMin > b.TrendingMax {
		return fmt.Errorf("llm.selection.tiers: min bounds must not exceed max bounds")
	}

	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// TrackingBase returns the base URL for click-tracking redirects
func (c *Config) TrackingBase() string {
	return c.Newsletter.SiteURL + "/api/track"
}
