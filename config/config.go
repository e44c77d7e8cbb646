// Package config loads the media server configuration from a YAML file,
// a .env file and DMS_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kksharma1618/mediaserver/renderer"
)

const (
	defaultListen          = ":1338"
	defaultFriendlyName    = "Media Server"
	defaultMaxConnections  = 64
	defaultShutdownTimeout = 10 * time.Second
	defaultProbeWorkers    = 4
	defaultProviderTimeout = 10 * time.Second
	defaultBusyTimeout     = 5 * time.Second
)

type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Media           MediaConfig           `mapstructure:"media"`
	Storage         StorageConfig         `mapstructure:"storage"`
	ContentProvider ContentProviderConfig `mapstructure:"content_provider"`
	Renderers       []renderer.Profile    `mapstructure:"renderers"`
	Metrics         MetricsConfig         `mapstructure:"metrics"`
}

type ServerConfig struct {
	Listen       string `mapstructure:"listen"`
	FriendlyName string `mapstructure:"friendly_name"`
	// UUID is the device UDN without the "uuid:" prefix. Empty means one is
	// generated at startup.
	UUID            string        `mapstructure:"uuid"`
	MaxConnections  int           `mapstructure:"max_connections"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

type MediaConfig struct {
	Roots            []string `mapstructure:"roots"`
	FFmpegPath       string   `mapstructure:"ffmpeg_path"`
	ProbeWorkers     int      `mapstructure:"probe_workers"`
	DisableSubtitles bool     `mapstructure:"disable_subtitles"`
	ShowFullyPlayed  bool     `mapstructure:"show_fully_played"`
	AudioLanguages   []string `mapstructure:"audio_languages"`
}

type StorageConfig struct {
	DSN         string        `mapstructure:"dsn"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// ContentProviderConfig selects the remote store when BaseURL is set.
type ContentProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	RootCAs []string      `mapstructure:"root_cas"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over the file and are prefixed
// with DMS_, using underscores for nesting: DMS_SERVER_LISTEN=:8200.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	return load(v, configPath)
}

// LoadWith is Load on a caller supplied viper, so command line flags bound
// to it take part.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	return load(v, configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("dms")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/dms")
		v.AddConfigPath("/etc/dms")
	}

	v.SetEnvPrefix("DMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", defaultListen)
	v.SetDefault("server.friendly_name", defaultFriendlyName)
	v.SetDefault("server.uuid", "")
	v.SetDefault("server.max_connections", defaultMaxConnections)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("media.roots", []string{"."})
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.probe_workers", defaultProbeWorkers)
	v.SetDefault("media.disable_subtitles", false)
	v.SetDefault("media.show_fully_played", true)
	v.SetDefault("media.audio_languages", []string{})

	v.SetDefault("storage.dsn", "dms.db")
	v.SetDefault("storage.busy_timeout", defaultBusyTimeout)

	v.SetDefault("content_provider.base_url", "")
	v.SetDefault("content_provider.token", "")
	v.SetDefault("content_provider.root_cas", []string{})
	v.SetDefault("content_provider.timeout", defaultProviderTimeout)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("server.max_connections must be at least 1")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.ContentProvider.BaseURL == "" && len(c.Media.Roots) == 0 {
		return fmt.Errorf("media.roots or content_provider.base_url is required")
	}
	if c.Media.ProbeWorkers < 1 {
		return fmt.Errorf("media.probe_workers must be at least 1")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	for i, p := range c.Renderers {
		if p.Name == "" {
			return fmt.Errorf("renderers[%d].name is required", i)
		}
	}
	return nil
}

// RendererProfiles returns the configured profiles with the media-wide
// audio language preference filled in where a profile has none.
func (c *Config) RendererProfiles() []renderer.Profile {
	out := make([]renderer.Profile, len(c.Renderers))
	for i, p := range c.Renderers {
		if len(p.AudioLanguages) == 0 {
			p.AudioLanguages = c.Media.AudioLanguages
		}
		out[i] = p
	}
	return out
}

// DefaultRendererProfile is renderer.DefaultProfile adjusted by the media
// section.
func (c *Config) DefaultRendererProfile() renderer.Profile {
	p := renderer.DefaultProfile()
	p.AudioLanguages = c.Media.AudioLanguages
	return p
}
