// Package config holds runtime configuration for the scraper, its HTTP
// API and the scheduler.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"philgeps-scraper/models"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL            string            `yaml:"baseURL"`
	LoginPath          string            `yaml:"loginPath"`
	ListingPath        string            `yaml:"listingPath"`
	MaxPages           int               `yaml:"maxPages"`
	RequestDelay       time.Duration     `yaml:"requestDelay"`
	Timeout            time.Duration     `yaml:"timeout"`
	UserAgent          string            `yaml:"userAgent"`
	Username           string            `yaml:"-"`
	Password           string            `yaml:"-"`
	ManualLoginTimeout time.Duration     `yaml:"manualLoginTimeout"`
	DatabasePath       string            `yaml:"databasePath"`
	ReportsDir         string            `yaml:"reportsDir"`
	ServerAddr         string            `yaml:"serverAddr"`
	MetricsAddr        string            `yaml:"metricsAddr"`
	CronSpec           string            `yaml:"cronSpec"`
	Timezone           string            `yaml:"timezone"`
	FetchDetails       bool              `yaml:"fetchDetails"`
	Incremental        bool              `yaml:"incremental"`
	Verbose            bool              `yaml:"verbose"`
	Filters            models.FilterSpec `yaml:"filters"`
}

// DefaultConfig returns defaults matching the production portal.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://philgeps.gov.ph",
		LoginPath:          "/Indexes/login",
		ListingPath:        "/BulletinBoard/view_more_current_oppourtunities",
		MaxPages:           5,
		RequestDelay:       time.Second,
		Timeout:            30 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		ManualLoginTimeout: 5 * time.Minute,
		DatabasePath:       "data/philgeps.db",
		ReportsDir:         "reports",
		ServerAddr:         ":8080",
		MetricsAddr:        "",
		CronSpec:           "0 2 * * *",
		Timezone:           "Asia/Manila",
		FetchDetails:       true,
		Incremental:        false,
		Verbose:            false,
	}
}

// Load builds a Config from defaults, an optional YAML file, and
// environment overrides, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := EnvString("PHILGEPS_USERNAME"); ok {
		c.Username = v
	}
	if v, ok := EnvString("PHILGEPS_PASSWORD"); ok {
		c.Password = v
	}
	if v, ok := EnvString("PHILGEPS_BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok := EnvString("PHILGEPS_DB_PATH"); ok {
		c.DatabasePath = v
	}
	if v, ok := EnvString("PHILGEPS_REPORTS_DIR"); ok {
		c.ReportsDir = v
	}
	if v, ok := EnvString("PHILGEPS_SERVER_ADDR"); ok {
		c.ServerAddr = v
	}
	if v, ok := EnvString("PHILGEPS_CRON_SPEC"); ok {
		c.CronSpec = v
	}
	if v, ok, err := EnvInt("PHILGEPS_MAX_PAGES"); err == nil && ok {
		c.MaxPages = v
	}
}

// HasCredentials reports whether automated login is possible.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// LoginURL is the absolute login page URL.
func (c *Config) LoginURL() string {
	return c.BaseURL + c.LoginPath
}

// ListingURL builds the absolute listing URL for a given page number.
// Page 1 uses the plain listing path; later pages use the paginated
// variant with an explicit sort order.
func (c *Config) ListingURL(page int) string {
	if page <= 1 {
		return c.BaseURL + c.ListingPath
	}
	return fmt.Sprintf(
		"%s/bulletin-board/view-more-current-oppourtunities?page=%d&direction=Tenders.tender_start_datetime+desc",
		c.BaseURL, page,
	)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.LoginPath == "" {
		return fmt.Errorf("login path cannot be empty")
	}
	if c.ListingPath == "" {
		return fmt.Errorf("listing path cannot be empty")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ManualLoginTimeout <= 0 {
		return fmt.Errorf("manual login timeout must be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.ReportsDir == "" {
		return fmt.Errorf("reports directory cannot be empty")
	}
	if c.CronSpec == "" {
		return fmt.Errorf("cron spec cannot be empty")
	}
	if c.Timezone == "" {
		return fmt.Errorf("timezone cannot be empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	if f := c.Filters; f.BudgetMin != nil && f.BudgetMax != nil && *f.BudgetMin > *f.BudgetMax {
		return fmt.Errorf("budget min (%.2f) cannot exceed budget max (%.2f)", *f.BudgetMin, *f.BudgetMax)
	}
	if !c.Filters.DateFrom.IsZero() && !c.Filters.DateTo.IsZero() && c.Filters.DateFrom.After(c.Filters.DateTo) {
		return fmt.Errorf("filter date range is inverted")
	}
	if c.Filters.NeedsBudget() && !c.FetchDetails {
		return fmt.Errorf("budget filter requires detail fetching")
	}

	return nil
}

// EnvString reads a string environment variable, reporting presence.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment variable, reporting presence.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, true, nil
}
