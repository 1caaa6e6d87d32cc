package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"livewatcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	CSV      CSVConfig      `mapstructure:"csv"`
	YouTube  YouTubeConfig  `mapstructure:"youtube"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	History  HistoryConfig  `mapstructure:"history"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN
// disables the relational sink entirely.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CSVConfig controls the append-only tabular sink.
type CSVConfig struct {
	Path string `mapstructure:"path"`
}

// YouTubeConfig covers upstream Data API access.
type YouTubeConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxResults     int           `mapstructure:"max_results"`
}

// PollerConfig governs the two polling cadences.
type PollerConfig struct {
	Channels          []string      `mapstructure:"channels"`
	DiscoveryInterval time.Duration `mapstructure:"discovery_interval"`
	SampleInterval    time.Duration `mapstructure:"sample_interval"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
}

// QuotaConfig bounds daily API spend.
type QuotaConfig struct {
	DailyBudget int `mapstructure:"daily_budget"`
	SearchCost  int `mapstructure:"search_cost"`
	StatsCost   int `mapstructure:"stats_cost"`
}

// HistoryConfig sizes the in-memory trend window.
type HistoryConfig struct {
	MaxPoints int `mapstructure:"max_points"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIVEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "livewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("csv.path", "analytics.csv")

	v.SetDefault("youtube.base_url", "https://www.googleapis.com/youtube/v3")
	v.SetDefault("youtube.request_timeout", "10s")
	v.SetDefault("youtube.user_agent", "livewatcher/1.0")
	v.SetDefault("youtube.max_results", 10)

	v.SetDefault("poller.discovery_interval", "60s")
	v.SetDefault("poller.sample_interval", "30s")
	v.SetDefault("poller.startup_delay", "0s")

	v.SetDefault("quota.daily_budget", 10000)
	v.SetDefault("quota.search_cost", 100)
	v.SetDefault("quota.stats_cost", 1)

	v.SetDefault("history.max_points", 60)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	// Keys without a usable default still need registering, otherwise
	// viper never consults the environment for them during Unmarshal.
	v.SetDefault("database.dsn", "")
	v.SetDefault("youtube.api_key", "")
	v.SetDefault("poller.channels", []string{})
	v.SetDefault("logging.file", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Poller.DiscoveryInterval <= 0 {
		return fmt.Errorf("poller.discovery_interval must be greater than zero")
	}
	if c.Poller.SampleInterval <= 0 {
		return fmt.Errorf("poller.sample_interval must be greater than zero")
	}
	if c.Quota.DailyBudget <= 0 {
		return fmt.Errorf("quota.daily_budget must be greater than zero")
	}
	if c.Quota.SearchCost <= 0 || c.Quota.StatsCost <= 0 {
		return fmt.Errorf("quota call costs must be greater than zero")
	}
	if c.History.MaxPoints <= 0 {
		return fmt.Errorf("history.max_points must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ValidateTracking checks the extra requirements of the long-running
// tracker: the monitored channel set and API credentials.
func (c *Config) ValidateTracking() error {
	if len(c.Poller.Channels) == 0 {
		return fmt.Errorf("poller.channels 不能为空")
	}
	for _, ch := range c.Poller.Channels {
		if strings.TrimSpace(ch) == "" {
			return fmt.Errorf("poller.channels contains an empty channel id")
		}
	}
	if c.YouTube.APIKey == "" {
		return fmt.Errorf("youtube.api_key is required")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
