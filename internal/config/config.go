package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// HTTPConfig tunes the shared transport policy.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	UserAgent   string        `mapstructure:"user_agent"`
	Debug       bool          `mapstructure:"debug"`
}

// ProvidersConfig holds per-provider settings and the fallback order.
type ProvidersConfig struct {
	Primary  string         `mapstructure:"primary"` // "allanime" or "hianime"
	AllAnime AllAnimeConfig `mapstructure:"allanime"`
	HiAnime  HiAnimeConfig  `mapstructure:"hianime"`
}

// AllAnimeConfig configures the GraphQL provider.
type AllAnimeConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	BaseURL         string `mapstructure:"base_url"`
	APIURL          string `mapstructure:"api_url"`
	SourceBaseURL   string `mapstructure:"source_base_url"`
	TranslationType string `mapstructure:"translation_type"`
	SearchLimit     int    `mapstructure:"search_limit"`
}

// HiAnimeConfig configures the scraping provider.
type HiAnimeConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	BaseURL         string `mapstructure:"base_url"`
	PreferredServer string `mapstructure:"preferred_server"`
	SearchLimit     int    `mapstructure:"search_limit"`
}

// LoggingConfig configures the slog sink.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "text" or "json"
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig configures the history store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from the given file (or the default location when
// empty), applying defaults and KOWARE_* environment overrides.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("koware")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0")
	v.SetDefault("http.debug", false)

	v.SetDefault("providers.primary", "allanime")
	v.SetDefault("providers.allanime.enabled", true)
	v.SetDefault("providers.allanime.base_url", "https://allanime.to")
	v.SetDefault("providers.allanime.api_url", "https://api.allanime.day")
	v.SetDefault("providers.allanime.source_base_url", "https://allanime.day")
	v.SetDefault("providers.allanime.translation_type", "sub")
	v.SetDefault("providers.allanime.search_limit", 40)
	v.SetDefault("providers.hianime.enabled", true)
	v.SetDefault("providers.hianime.base_url", "https://hianime.to")
	v.SetDefault("providers.hianime.preferred_server", "HD-1")
	v.SetDefault("providers.hianime.search_limit", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	v.SetDefault("database.path", filepath.Join(defaultDataDir(), "koware.db"))
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "koware")
	}
	return "."
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "koware")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "koware")
}
