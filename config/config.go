package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	errs "sjsage522/feedharvester/pkg/errors"
)

// DefaultUserAgent is a desktop Chrome user agent
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config represents the application configuration
type Config struct {
	// Target feed
	Username string `long:"username" env:"TARGET_USERNAME" description:"Account whose feed is harvested (required)"`
	BaseURL  string `long:"base-url" env:"BASE_URL" default:"https://x.com" description:"Site root; the feed is <base-url>/<username>"`

	// Scrolling
	ScrollPause time.Duration `long:"scroll-pause" env:"SCROLL_PAUSE" default:"2s" description:"Pause after each scroll"`
	MaxScrolls  int           `long:"max-scrolls" env:"MAX_SCROLLS" default:"10" description:"Number of scroll iterations"`
	BatchSize   int           `long:"batch-size" env:"BATCH_SIZE" default:"200" description:"Records per committed batch"`
	QueueSize   int           `long:"queue-size" env:"QUEUE_SIZE" default:"1" description:"Batches buffered between scrolling and persistence"`
	WaitTimeout time.Duration `long:"wait-timeout" env:"WAIT_TIMEOUT" default:"20s" description:"How long to wait for feed items to render"`
	NavTimeout  time.Duration `long:"nav-timeout" env:"NAV_TIMEOUT" default:"30s" description:"Navigation timeout"`

	// Storage
	DBURL      string `long:"db-url" env:"DB_URL" default:"harvest.db" description:"postgres:// DSN or SQLite database path"`
	DBMaxConns int    `long:"db-max-conns" env:"DB_MAX_CONNS" default:"5" description:"Maximum pooled database connections"`
	ErrorLog   string `long:"error-log" env:"ERROR_LOG" description:"File that journals failed batches (optional)"`

	// Browser
	ChromeURL     string `long:"chrome-url" env:"CHROME_URL" description:"Remote DevTools websocket URL; a local Chrome is started when empty"`
	ShowBrowser   bool   `long:"show-browser" env:"SHOW_BROWSER" description:"Run Chrome with a visible window"`
	UserAgent     string `long:"user-agent" env:"USER_AGENT" description:"Browser user agent"`
	FixtureDir    string `long:"fixture-dir" env:"FIXTURE_DIR" description:"Replay recorded HTML frames instead of driving Chrome"`
	SelectorsFile string `long:"selectors-file" env:"SELECTORS_FILE" description:"YAML selector profile"`

	// Redis configuration
	RedisAddr            string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for batch events (optional)"`
	RedisDB              int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database"`
	RedisStream          string `long:"redis-stream" env:"REDIS_STREAM" default:"harvest:batches" description:"Stream receiving batch events"`
	RedisStreamMaxLength int    `long:"redis-stream-max-length" env:"REDIS_STREAM_MAX_LENGTH" default:"1000" description:"Stream length kept after each run"`

	// Memcache configuration
	MemcacheAddr string        `long:"memcache-addr" env:"MEMCACHE_ADDR" description:"Memcached address for the run lock (optional)"`
	LockTTL      time.Duration `long:"lock-ttl" env:"LOCK_TTL" default:"30m" description:"Run lock expiry"`

	// Environment
	Environment string `long:"environment" env:"HARVEST_ENVIRONMENT" default:"development" description:"development or production"`
}

// LoadConfig parses args and the environment. It returns nil and no error
// when help was requested.
func LoadConfig(args []string) (*Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, errs.NewConfiguration("failed to parse configuration", err)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	cfg.Username = strings.TrimPrefix(strings.TrimSpace(cfg.Username), "@")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and numeric ranges
func (c *Config) Validate() error {
	switch {
	case c.Username == "":
		return errs.NewConfiguration("username is required (--username or TARGET_USERNAME)", nil)
	case strings.ContainsAny(c.Username, "/?# "):
		return errs.NewConfiguration(fmt.Sprintf("invalid username %q", c.Username), nil)
	case c.MaxScrolls < 1:
		return errs.NewConfiguration(fmt.Sprintf("max-scrolls must be at least 1, got %d", c.MaxScrolls), nil)
	case c.BatchSize < 1:
		return errs.NewConfiguration(fmt.Sprintf("batch-size must be at least 1, got %d", c.BatchSize), nil)
	case c.QueueSize < 1:
		return errs.NewConfiguration(fmt.Sprintf("queue-size must be at least 1, got %d", c.QueueSize), nil)
	case c.ScrollPause < 0 || c.WaitTimeout < 0 || c.NavTimeout <= 0:
		return errs.NewConfiguration("timeouts must not be negative and nav-timeout must be positive", nil)
	case c.DBURL == "":
		return errs.NewConfiguration("db-url is required", nil)
	case c.DBMaxConns < 1:
		return errs.NewConfiguration(fmt.Sprintf("db-max-conns must be at least 1, got %d", c.DBMaxConns), nil)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errs.NewConfiguration(fmt.Sprintf("invalid base-url %q", c.BaseURL), err)
	}
	return nil
}

// ProfileURL returns the feed page of the configured user
func (c *Config) ProfileURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + c.Username
}

// IsProduction reports whether the production environment is configured
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
