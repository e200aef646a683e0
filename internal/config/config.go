// Package config loads and validates sitewatch configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	SitesFile  string           `mapstructure:"sites_file"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	StatusPage StatusPageConfig `mapstructure:"statuspage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// MonitorConfig governs cycle scheduling.
type MonitorConfig struct {
	IntervalHours float64       `mapstructure:"interval_hours"`
	SiteDelay     time.Duration `mapstructure:"site_delay"`
	Concurrency   int           `mapstructure:"concurrency"`
}

// Interval converts IntervalHours to a duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalHours * float64(time.Hour))
}

// CaptureConfig bounds each site capture and selects the renderer.
type CaptureConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	// Renderer is "chromedp" or "rod".
	Renderer   string `mapstructure:"renderer"`
	Stealth    bool   `mapstructure:"stealth"`
	ChromePath string `mapstructure:"chrome_path"`
	NoSandbox  bool   `mapstructure:"no_sandbox"`
	UserAgent  string `mapstructure:"user_agent"`
}

// RetentionConfig bounds stored artifacts.
type RetentionConfig struct {
	MaxArtifactsPerSite int `mapstructure:"max_artifacts_per_site"`
}

// StorageConfig selects the artifact and report backends.
type StorageConfig struct {
	Artifacts ArtifactStorageConfig `mapstructure:"artifacts"`
	Reports   ReportStorageConfig   `mapstructure:"reports"`
}

// ArtifactStorageConfig selects where snapshots live.
type ArtifactStorageConfig struct {
	// Provider is "local", "gcs" or "memory".
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ReportStorageConfig selects where cycle reports live.
type ReportStorageConfig struct {
	// Provider is "local", "postgres", "sqlite" or "memory".
	Provider   string `mapstructure:"provider"`
	Dir        string `mapstructure:"dir"`
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// NotifyConfig controls the per-cycle report message.
type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Transport is "mailgun" or "log". The log transport only writes the
	// message envelope to the logger.
	Transport       string        `mapstructure:"transport"`
	AttachArtifacts bool          `mapstructure:"attach_artifacts"`
	AttachReport    bool          `mapstructure:"attach_report"`
	Mailgun         MailgunConfig `mapstructure:"mailgun"`
}

// MailgunConfig holds Mailgun credentials and addressing.
type MailgunConfig struct {
	Domain  string   `mapstructure:"domain"`
	APIKey  string   `mapstructure:"api_key"`
	APIBase string   `mapstructure:"api_base"`
	From    string   `mapstructure:"from"`
	To      []string `mapstructure:"to"`
}

// StatusPageConfig points at a Cachet-compatible status page.
type StatusPageConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	BaseURL              string        `mapstructure:"base_url"`
	APIToken             string        `mapstructure:"api_token"`
	Timeout              time.Duration `mapstructure:"timeout"`
	RateQPS              float64       `mapstructure:"rate_qps"`
	ResponseTimeMetricID int64         `mapstructure:"response_time_metric_id"`
	ResolveOnRecovery    bool          `mapstructure:"resolve_on_recovery"`
}

// PubSubConfig holds metadata for cycle report publication.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether publication is configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// ServerConfig controls the health/status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ProgressConfig tunes the cycle event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEWATCH")
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
	// Hosting platforms hand out the listen port through PORT.
	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("PORT %q: %w", raw, err)
		}
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sites_file", "config/sites.json")
	v.SetDefault("monitor.interval_hours", 8)
	v.SetDefault("monitor.site_delay", "2s")
	v.SetDefault("monitor.concurrency", 1)
	v.SetDefault("capture.navigation_timeout", "30s")
	v.SetDefault("capture.wait_timeout", "10s")
	v.SetDefault("capture.settle_delay", "3s")
	v.SetDefault("capture.viewport_width", 1920)
	v.SetDefault("capture.viewport_height", 1080)
	v.SetDefault("capture.renderer", "chromedp")
	v.SetDefault("capture.stealth", false)
	v.SetDefault("capture.no_sandbox", false)
	v.SetDefault("retention.max_artifacts_per_site", 10)
	v.SetDefault("storage.artifacts.provider", "local")
	v.SetDefault("storage.artifacts.base_dir", "screenshots")
	v.SetDefault("storage.artifacts.prefix", "screenshots")
	v.SetDefault("storage.reports.provider", "local")
	v.SetDefault("storage.reports.dir", "reports")
	v.SetDefault("storage.reports.table", "cycle_reports")
	v.SetDefault("storage.reports.sqlite_path", "sitewatch.db")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.transport", "mailgun")
	v.SetDefault("notify.attach_artifacts", true)
	v.SetDefault("notify.attach_report", true)
	v.SetDefault("statuspage.enabled", false)
	v.SetDefault("statuspage.timeout", "10s")
	v.SetDefault("statuspage.rate_qps", 5)
	v.SetDefault("statuspage.resolve_on_recovery", true)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 3000)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "250ms")
	v.SetDefault("progress.sink_timeout", "5s")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SitesFile) == "" {
		return fmt.Errorf("sites_file is required")
	}
	if c.Monitor.IntervalHours <= 0 {
		return fmt.Errorf("monitor.interval_hours must be > 0")
	}
	if c.Monitor.SiteDelay < 0 {
		return fmt.Errorf("monitor.site_delay must be >= 0")
	}
	if c.Monitor.Concurrency <= 0 {
		return fmt.Errorf("monitor.concurrency must be > 0")
	}
	if c.Capture.NavigationTimeout <= 0 || c.Capture.WaitTimeout <= 0 {
		return fmt.Errorf("capture timeouts must be > 0")
	}
	if c.Capture.SettleDelay < time.Second {
		return fmt.Errorf("capture.settle_delay must be at least 1s")
	}
	if c.Capture.ViewportWidth <= 0 || c.Capture.ViewportHeight <= 0 {
		return fmt.Errorf("capture viewport must be positive")
	}
	switch c.Capture.Renderer {
	case "chromedp", "rod":
	default:
		return fmt.Errorf("capture.renderer must be chromedp or rod, got %q", c.Capture.Renderer)
	}
	if c.Retention.MaxArtifactsPerSite < 0 {
		return fmt.Errorf("retention.max_artifacts_per_site must be >= 0")
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if c.Notify.Enabled {
		m := c.Notify.Mailgun
		if m.From == "" || len(m.To) == 0 {
			return fmt.Errorf("notify.mailgun from and to are required when notify is enabled")
		}
		switch c.Notify.Transport {
		case "mailgun":
			if m.Domain == "" || m.APIKey == "" {
				return fmt.Errorf("notify.mailgun domain and api_key are required for the mailgun transport")
			}
		case "log":
		default:
			return fmt.Errorf("notify.transport must be mailgun or log, got %q", c.Notify.Transport)
		}
	}
	if c.StatusPage.Enabled && c.StatusPage.BaseURL == "" {
		return fmt.Errorf("statuspage.base_url must be set when statuspage is enabled")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be within 1..65535")
	}
	return nil
}

func (s StorageConfig) validate() error {
	switch s.Artifacts.Provider {
	case "local":
		if s.Artifacts.BaseDir == "" {
			return fmt.Errorf("storage.artifacts.base_dir is required for the local provider")
		}
	case "gcs":
		if s.Artifacts.GCSBucket == "" {
			return fmt.Errorf("storage.artifacts.gcs_bucket is required for the gcs provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.artifacts.provider %q", s.Artifacts.Provider)
	}
	switch s.Reports.Provider {
	case "local":
		if s.Reports.Dir == "" {
			return fmt.Errorf("storage.reports.dir is required for the local provider")
		}
	case "postgres":
		if s.Reports.DSN == "" {
			return fmt.Errorf("storage.reports.dsn is required for the postgres provider")
		}
	case "sqlite":
		if s.Reports.SQLitePath == "" {
			return fmt.Errorf("storage.reports.sqlite_path is required for the sqlite provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.reports.provider %q", s.Reports.Provider)
	}
	return nil
}
