package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported sites.
const (
	SiteDanbooru = "danbooru"
	SiteSankaku  = "sankaku"
)

// Media modes select a preset format allow-list.
const (
	MediaImages    = "images"
	MediaWithVideo = "with-video"
	MediaVideoOnly = "video-only"
)

// AI filter modes for sites that tag generated artwork.
const (
	AIAny     = "any"
	AIExclude = "exclude"
	AIOnly    = "only"
)

// Fetcher backends.
const (
	BackendRod      = "rod"
	BackendChromedp = "chromedp"
	BackendHTTP     = "http"
)

// Config holds all configuration options for the crawler
type Config struct {
	Site     SiteConfig           `yaml:"site" json:"site"`
	Crawl    CrawlConfig          `yaml:"crawl" json:"crawl"`
	Filter   FilterConfig         `yaml:"filter" json:"filter"`
	Search   SearchConfig         `yaml:"search" json:"search"`
	Fetcher  FetcherConfig        `yaml:"fetcher" json:"fetcher"`
	Retry    RetryConfig          `yaml:"retry" json:"retry"`
	Output   OutputConfig         `yaml:"output" json:"output"`
	Logging  LoggingConfig        `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig        `yaml:"metrics" json:"metrics"`
	Datasets map[string][]string `yaml:"datasets,omitempty" json:"datasets,omitempty"`
}

// SiteConfig selects the board being crawled
type SiteConfig struct {
	Name    string `yaml:"name" json:"name"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// CrawlConfig holds traversal limits
type CrawlConfig struct {
	Tags           []string `yaml:"tags" json:"tags"`
	Limit          int      `yaml:"limit" json:"limit"`
	MaxPages       int      `yaml:"max_pages" json:"max_pages"`
	EmptyPageLimit int      `yaml:"empty_page_limit" json:"empty_page_limit"`
	StaleJumpLimit int      `yaml:"stale_jump_limit" json:"stale_jump_limit"`
}

// FilterConfig holds the acceptance rules
type FilterConfig struct {
	Media           string   `yaml:"media" json:"media"`
	Formats         []string `yaml:"formats,omitempty" json:"formats,omitempty"`
	Ratings         []string `yaml:"ratings,omitempty" json:"ratings,omitempty"`
	SingleCharacter bool     `yaml:"single_character" json:"single_character"`
	Subject         string   `yaml:"subject,omitempty" json:"subject,omitempty"`
}

// SearchConfig decorates the listing query
type SearchConfig struct {
	ExcludeTags []string `yaml:"exclude_tags" json:"exclude_tags"`
	AI          string   `yaml:"ai" json:"ai"`
}

// FetcherConfig configures the document fetcher
type FetcherConfig struct {
	Backend           string        `yaml:"backend" json:"backend"`
	Headless          bool          `yaml:"headless" json:"headless"`
	BrowserBin        string        `yaml:"browser_bin,omitempty" json:"browser_bin,omitempty"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	CookieFile        string        `yaml:"cookie_file,omitempty" json:"cookie_file,omitempty"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay" json:"settle_delay"`
	RestartDelay      time.Duration `yaml:"restart_delay" json:"restart_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// RetryConfig configures the recovery supervisor
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	DownloadAttempts  int           `yaml:"download_attempts" json:"download_attempts"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	Dataset       string `yaml:"dataset,omitempty" json:"dataset,omitempty"`
	MetadataDir   string `yaml:"metadata_dir,omitempty" json:"metadata_dir,omitempty"`
	Sample        bool   `yaml:"sample" json:"sample"`
	Force         bool   `yaml:"-" json:"-"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig configures the optional Prometheus endpoint
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name:    SiteDanbooru,
			BaseURL: DefaultBaseURL(SiteDanbooru),
		},
		Crawl: CrawlConfig{
			Limit:          99999,
			MaxPages:       0,
			EmptyPageLimit: 3,
			StaleJumpLimit: 0,
		},
		Filter: FilterConfig{
			Media: MediaImages,
		},
		Search: SearchConfig{
			ExcludeTags: []string{"holostars"},
			AI:          AIAny,
		},
		Fetcher: FetcherConfig{
			Backend:           BackendRod,
			Headless:          true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			NavigationTimeout: 30 * time.Second,
			SettleDelay:       2 * time.Second,
			RestartDelay:      5 * time.Second,
			RequestsPerMinute: 30,
			BurstSize:         1,
			DownloadTimeout:   60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:       0, // unlimited
			InitialDelay:      time.Second,
			MaxDelay:          time.Minute,
			BackoffMultiplier: 2.0,
			DownloadAttempts:  3,
		},
		Output: OutputConfig{
			BaseDirectory: "scraped_images",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// DefaultBaseURL returns the public front-end for a supported site
func DefaultBaseURL(site string) string {
	switch site {
	case SiteSankaku:
		return "https://chan.sankakucomplex.com"
	case SiteDanbooru:
		return "https://danbooru.donmai.us"
	default:
		return ""
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if site := os.Getenv("BOORUSCRAPER_SITE"); site != "" {
		c.setSite(site)
	}
	if baseURL := os.Getenv("BOORUSCRAPER_BASE_URL"); baseURL != "" {
		c.Site.BaseURL = baseURL
	}
	if tags := os.Getenv("BOORUSCRAPER_TAGS"); tags != "" {
		c.Crawl.Tags = splitList(tags)
	}
	if limit := os.Getenv("BOORUSCRAPER_LIMIT"); limit != "" {
		val, err := strconv.Atoi(limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("BOORUSCRAPER_LIMIT: %w", err))
		} else {
			c.Crawl.Limit = val
		}
	}
	if pages := os.Getenv("BOORUSCRAPER_MAX_PAGES"); pages != "" {
		val, err := strconv.Atoi(pages)
		if err != nil {
			errs = append(errs, fmt.Errorf("BOORUSCRAPER_MAX_PAGES: %w", err))
		} else {
			c.Crawl.MaxPages = val
		}
	}
	if ratings := os.Getenv("BOORUSCRAPER_RATINGS"); ratings != "" {
		c.Filter.Ratings = splitList(ratings)
	}
	if media := os.Getenv("BOORUSCRAPER_MEDIA"); media != "" {
		c.Filter.Media = media
	}
	if backend := os.Getenv("BOORUSCRAPER_BACKEND"); backend != "" {
		c.Fetcher.Backend = backend
	}
	if bin := os.Getenv("BOORUSCRAPER_BROWSER_BIN"); bin != "" {
		c.Fetcher.BrowserBin = bin
	}
	if cookies := os.Getenv("BOORUSCRAPER_COOKIE_FILE"); cookies != "" {
		c.Fetcher.CookieFile = cookies
	}
	if userAgent := os.Getenv("BOORUSCRAPER_USER_AGENT"); userAgent != "" {
		c.Fetcher.UserAgent = userAgent
	}
	if rpm := os.Getenv("BOORUSCRAPER_REQUESTS_PER_MINUTE"); rpm != "" {
		val, err := strconv.Atoi(rpm)
		if err != nil {
			errs = append(errs, fmt.Errorf("BOORUSCRAPER_REQUESTS_PER_MINUTE: %w", err))
		} else if val > 0 {
			c.Fetcher.RequestsPerMinute = val
		}
	}
	if outputDir := os.Getenv("BOORUSCRAPER_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if logLevel := os.Getenv("BOORUSCRAPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if addr := os.Getenv("BOORUSCRAPER_METRICS_ADDR"); addr != "" {
		c.Metrics.ListenAddress = addr
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".booruscraper.yaml",
		".booruscraper.yml",
		filepath.Join(home, ".config", "booruscraper", "config.yaml"),
		filepath.Join(home, ".config", "booruscraper", "config.yml"),
		filepath.Join(home, ".booruscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.Site.Name {
	case SiteDanbooru, SiteSankaku:
	default:
		errs = append(errs, fmt.Errorf("unsupported site %q", c.Site.Name))
	}
	if c.Site.BaseURL == "" {
		errs = append(errs, errors.New("site base URL is required"))
	}

	if c.Crawl.Limit < 0 {
		errs = append(errs, errors.New("limit cannot be negative"))
	}
	if c.Crawl.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}
	if c.Crawl.EmptyPageLimit <= 0 {
		errs = append(errs, errors.New("empty page limit must be positive"))
	}
	if c.Crawl.StaleJumpLimit < 0 {
		errs = append(errs, errors.New("stale jump limit cannot be negative"))
	}

	switch c.Filter.Media {
	case MediaImages, MediaWithVideo, MediaVideoOnly:
	default:
		errs = append(errs, fmt.Errorf("invalid media mode %q", c.Filter.Media))
	}

	switch c.Search.AI {
	case AIAny, AIExclude, AIOnly:
	default:
		errs = append(errs, fmt.Errorf("invalid ai mode %q", c.Search.AI))
	}

	switch c.Fetcher.Backend {
	case BackendRod, BackendChromedp, BackendHTTP:
	default:
		errs = append(errs, fmt.Errorf("invalid fetcher backend %q", c.Fetcher.Backend))
	}
	if c.Fetcher.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Fetcher.SettleDelay < 0 || c.Fetcher.RestartDelay < 0 {
		errs = append(errs, errors.New("settle and restart delays cannot be negative"))
	}
	if c.Fetcher.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Fetcher.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max attempts cannot be negative"))
	}
	if c.Retry.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("backoff multiplier must be at least 1"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Keys match the cobra flag names; only flags the user changed are present.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if site, ok := flags["site"].(string); ok && site != "" {
		c.setSite(site)
	}
	if baseURL, ok := flags["base-url"].(string); ok && baseURL != "" {
		c.Site.BaseURL = baseURL
	}
	if tags, ok := flags["tags"].([]string); ok && len(tags) > 0 {
		c.Crawl.Tags = tags
	}
	if limit, ok := flags["limit"].(int); ok {
		c.Crawl.Limit = limit
	}
	if pages, ok := flags["pages"].(int); ok {
		c.Crawl.MaxPages = pages
	}
	if media, ok := flags["media"].(string); ok && media != "" {
		c.Filter.Media = media
	}
	if ratings, ok := flags["rating"].([]string); ok && len(ratings) > 0 {
		c.Filter.Ratings = ratings
	}
	if single, ok := flags["single-character"].(bool); ok {
		c.Filter.SingleCharacter = single
	}
	if ai, ok := flags["ai"].(string); ok && ai != "" {
		c.Search.AI = ai
	}
	if backend, ok := flags["backend"].(string); ok && backend != "" {
		c.Fetcher.Backend = backend
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Fetcher.Headless = headless
	}
	if cookies, ok := flags["cookies"].(string); ok && cookies != "" {
		c.Fetcher.CookieFile = cookies
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if dataset, ok := flags["dataset"].(string); ok && dataset != "" {
		c.Output.Dataset = dataset
	}
	if sample, ok := flags["sample"].(bool); ok {
		c.Output.Sample = sample
	}
	if force, ok := flags["force"].(bool); ok {
		c.Output.Force = force
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile, ok := flags["log-file"].(string); ok && logFile != "" {
		c.Logging.File = logFile
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.ListenAddress = addr
	}
}

// setSite switches site and moves the base URL along with it unless the
// caller pinned a custom one.
func (c *Config) setSite(site string) {
	site = strings.ToLower(site)
	if c.Site.BaseURL == "" || c.Site.BaseURL == DefaultBaseURL(c.Site.Name) {
		c.Site.BaseURL = DefaultBaseURL(site)
	}
	c.Site.Name = site
}

// AllowedFormats returns the effective format allow-list
func (c *Config) AllowedFormats() []string {
	if len(c.Filter.Formats) > 0 {
		return c.Filter.Formats
	}
	images := []string{"jpg", "jpeg", "png", "webp"}
	videos := []string{"webm", "mp4", "mov"}
	switch c.Filter.Media {
	case MediaWithVideo:
		return append(images, videos...)
	case MediaVideoOnly:
		return videos
	default:
		return images
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".booruscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
