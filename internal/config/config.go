// Package config loads and validates contactfinder configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/contactfinder/internal/email"
	"github.com/JakeFAU/contactfinder/internal/extractor"
	collyfetcher "github.com/JakeFAU/contactfinder/internal/fetcher/colly"
	"github.com/JakeFAU/contactfinder/internal/fetcher/headless"
	"github.com/JakeFAU/contactfinder/internal/leadership"
	"github.com/JakeFAU/contactfinder/internal/policy/ratelimit"
	"github.com/JakeFAU/contactfinder/internal/retryclient"
)

// EnvPrefix namespaces environment overrides, e.g. CONTACTFINDER_SERVER_PORT.
const EnvPrefix = "CONTACTFINDER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	AI         AIConfig         `mapstructure:"ai"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Export     ExportConfig     `mapstructure:"export"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	APIKey         string        `mapstructure:"api_key"`
}

// ExtractionConfig governs the strategies run for each URL.
type ExtractionConfig struct {
	Mode                string        `mapstructure:"mode"`
	EscalationThreshold int           `mapstructure:"escalation_threshold"`
	SitemapEnabled      bool          `mapstructure:"sitemap_enabled"`
	StaticTimeout       time.Duration `mapstructure:"static_timeout"`
	RenderTimeout       time.Duration `mapstructure:"render_timeout"`
	SitemapTimeout      time.Duration `mapstructure:"sitemap_timeout"`
	RequestDeadline     time.Duration `mapstructure:"request_deadline"`
	RenderPause         time.Duration `mapstructure:"render_pause"`
	MaxURLLength        int           `mapstructure:"max_url_length"`
	RestrictPrivate     bool          `mapstructure:"restrict_private"`
	ResolveHosts        bool          `mapstructure:"resolve_hosts"`
	UserAgent           string        `mapstructure:"user_agent"`
	ExcludedDomains     []string      `mapstructure:"excluded_domains"`
	FakePatterns        []string      `mapstructure:"fake_patterns"`
	PerHostQPS          float64       `mapstructure:"per_host_qps"`
	PerHostBurst        int           `mapstructure:"per_host_burst"`
	MaxEmailsPerSite    int           `mapstructure:"max_emails_per_site"`
}

// BrowserConfig configures the headless rendering subsystem.
type BrowserConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MaxParallel int    `mapstructure:"max_parallel"`
	ExecPath    string `mapstructure:"exec_path"`
	NoSandbox   bool   `mapstructure:"no_sandbox"`
}

// AIConfig configures the OpenRouter-compatible completion API.
type AIConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	DefaultModel     string        `mapstructure:"default_model"`
	MinInterval      time.Duration `mapstructure:"min_interval"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
}

// DatabaseConfig controls the optional run history store.
type DatabaseConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// ExportConfig controls where finished runs are exported. Dir and GCSBucket
// are mutually exclusive; the Pub/Sub topic is independent of both.
type ExportConfig struct {
	Dir           string `mapstructure:"dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	Prefix        string `mapstructure:"prefix"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// Enabled reports whether any export sink is configured.
func (e ExportConfig) Enabled() bool {
	return e.Dir != "" || e.GCSBucket != "" || e.PubSubTopic != ""
}

// Load builds a Config from .env, disk and the environment. A missing .env
// file is ignored.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 3*time.Minute)
	v.SetDefault("server.api_key", "")

	v.SetDefault("extraction.mode", string(extractor.ModeAuto))
	v.SetDefault("extraction.escalation_threshold", 3)
	v.SetDefault("extraction.sitemap_enabled", true)
	v.SetDefault("extraction.static_timeout", 30*time.Second)
	v.SetDefault("extraction.render_timeout", 10*time.Second)
	v.SetDefault("extraction.sitemap_timeout", 5*time.Second)
	v.SetDefault("extraction.request_deadline", 2*time.Minute)
	v.SetDefault("extraction.render_pause", 2*time.Second)
	v.SetDefault("extraction.max_url_length", 2048)
	v.SetDefault("extraction.restrict_private", true)
	v.SetDefault("extraction.resolve_hosts", false)
	v.SetDefault("extraction.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("extraction.excluded_domains", email.DefaultExcludedDomains())
	v.SetDefault("extraction.fake_patterns", email.DefaultFakePatterns())
	v.SetDefault("extraction.per_host_qps", 2.0)
	v.SetDefault("extraction.per_host_burst", 2)
	v.SetDefault("extraction.max_emails_per_site", 100)

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ai.default_model", "perplexity/llama-3-sonar-large-online")
	v.SetDefault("ai.min_interval", 2*time.Second)
	v.SetDefault("ai.max_attempts", 3)
	v.SetDefault("ai.request_timeout", 30*time.Second)
	v.SetDefault("ai.base_backoff", time.Second)
	v.SetDefault("ai.rate_limit_backoff", 2*time.Second)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "extraction_runs")

	v.SetDefault("export.dir", "")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.prefix", "runs")
	v.SetDefault("export.pubsub_project", "")
	v.SetDefault("export.pubsub_topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must be >= 0")
	}
	if _, err := extractor.ParseMode(c.Extraction.Mode); err != nil {
		return fmt.Errorf("extraction.mode: %w", err)
	}
	if c.Extraction.EscalationThreshold < 0 {
		return fmt.Errorf("extraction.escalation_threshold must be >= 0")
	}
	if c.Extraction.StaticTimeout <= 0 {
		return fmt.Errorf("extraction.static_timeout must be > 0")
	}
	if c.Extraction.RenderTimeout <= 0 {
		return fmt.Errorf("extraction.render_timeout must be > 0")
	}
	if c.Extraction.SitemapEnabled && c.Extraction.SitemapTimeout <= 0 {
		return fmt.Errorf("extraction.sitemap_timeout must be > 0 when the sitemap is enabled")
	}
	if c.Extraction.RequestDeadline < 0 {
		return fmt.Errorf("extraction.request_deadline must be >= 0")
	}
	if c.Extraction.MaxURLLength <= 0 {
		return fmt.Errorf("extraction.max_url_length must be > 0")
	}
	if c.Extraction.MaxEmailsPerSite < 0 {
		return fmt.Errorf("extraction.max_emails_per_site must be >= 0")
	}
	if c.Extraction.PerHostQPS < 0 {
		return fmt.Errorf("extraction.per_host_qps must be >= 0")
	}
	if c.Browser.Enabled && c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0 when the browser is enabled")
	}
	if c.AI.BaseURL == "" {
		return fmt.Errorf("ai.base_url must be set")
	}
	if c.AI.MaxAttempts <= 0 {
		return fmt.Errorf("ai.max_attempts must be > 0")
	}
	if c.AI.MinInterval < 0 || c.AI.BaseBackoff < 0 || c.AI.RateLimitBackoff < 0 {
		return fmt.Errorf("ai backoff and interval settings must be >= 0")
	}
	if c.AI.RequestTimeout <= 0 {
		return fmt.Errorf("ai.request_timeout must be > 0")
	}
	if c.Database.DSN != "" && c.Database.Table == "" {
		return fmt.Errorf("database.table must be set when database.dsn is set")
	}
	if c.Export.Dir != "" && c.Export.GCSBucket != "" {
		return fmt.Errorf("export.dir and export.gcs_bucket are mutually exclusive")
	}
	if c.Export.PubSubTopic != "" && c.Export.PubSubProject == "" {
		return fmt.Errorf("export.pubsub_project must be set when export.pubsub_topic is set")
	}
	return nil
}

// ExtractorConfig converts the extraction section into a per-request policy.
func (c Config) ExtractorConfig() extractor.Config {
	mode, _ := extractor.ParseMode(c.Extraction.Mode)
	return extractor.Config{
		Mode:                mode,
		EscalationThreshold: c.Extraction.EscalationThreshold,
		SitemapEnabled:      c.Extraction.SitemapEnabled,
		StaticTimeout:       c.Extraction.StaticTimeout,
		RenderTimeout:       c.Extraction.RenderTimeout,
		SitemapTimeout:      c.Extraction.SitemapTimeout,
		Deadline:            c.Extraction.RequestDeadline,
		ExcludedDomains:     append([]string(nil), c.Extraction.ExcludedDomains...),
		FakePatterns:        append([]string(nil), c.Extraction.FakePatterns...),
		MaxEmails:           c.Extraction.MaxEmailsPerSite,
		MaxURLLength:        c.Extraction.MaxURLLength,
		RestrictPrivate:     c.Extraction.RestrictPrivate,
	}
}

// FetcherConfig returns the static fetcher settings.
func (c Config) FetcherConfig() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent: c.Extraction.UserAgent,
		Headers:   collyfetcher.DefaultHeaders(),
		Timeout:   c.Extraction.StaticTimeout,
	}
}

// RateLimitConfig returns the per-host politeness settings.
func (c Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{RPS: c.Extraction.PerHostQPS, Burst: c.Extraction.PerHostBurst}
}

// HeadlessConfig returns the browser renderer settings.
func (c Config) HeadlessConfig() headless.Config {
	return headless.Config{
		MaxParallel: c.Browser.MaxParallel,
		UserAgent:   c.Extraction.UserAgent,
		Headers:     collyfetcher.DefaultHeaders(),
		ScrollPause: c.Extraction.RenderPause,
		WaitTimeout: c.Extraction.RenderTimeout,
		ExecPath:    c.Browser.ExecPath,
		NoSandbox:   c.Browser.NoSandbox,
	}
}

// RetryConfig returns the paced retry client settings for the AI API.
func (c Config) RetryConfig() retryclient.Config {
	return retryclient.Config{
		MinInterval:    c.AI.MinInterval,
		Timeout:        c.AI.RequestTimeout,
		MaxAttempts:    c.AI.MaxAttempts,
		BaseDelay:      c.AI.BaseBackoff,
		RateLimitDelay: c.AI.RateLimitBackoff,
	}
}

// LeadershipConfig returns the AI lookup settings.
func (c Config) LeadershipConfig() leadership.Config {
	return leadership.Config{
		BaseURL:      c.AI.BaseURL,
		APIKey:       c.AI.APIKey,
		DefaultModel: c.AI.DefaultModel,
	}
}
