package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Server:  ServerConfig{Listen: ":1338", MaxConnections: 8},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Media:   MediaConfig{Roots: []string{"/srv/media"}, ProbeWorkers: 2},
		Storage: StorageConfig{DSN: ":memory:"},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":1338", cfg.Server.Listen)
	assert.Equal(t, "Media Server", cfg.Server.FriendlyName)
	assert.Equal(t, 64, cfg.Server.MaxConnections)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, []string{"."}, cfg.Media.Roots)
	assert.Equal(t, "ffmpeg", cfg.Media.FFmpegPath)
	assert.Equal(t, "dms.db", cfg.Storage.DSN)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Renderers)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	configPath := filepath.Join(dir, "dms.yaml")
	content := `
server:
  listen: "127.0.0.1:8200"
  friendly_name: "Living room"
logging:
  level: "debug"
  format: "text"
media:
  roots: ["/srv/movies", "/srv/music"]
  audio_languages: ["eng", "deu"]
renderers:
  - name: "Samsung TV"
    user_agent: "SEC_HHP_"
    chunked_transfer: true
    hls_version: 6
    subtitle_formats: ["srt"]
  - name: "Xbox 360"
    user_agent: "Xbox"
    xbox360: true
metrics:
  enabled: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8200", cfg.Server.Listen)
	assert.Equal(t, "Living room", cfg.Server.FriendlyName)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"/srv/movies", "/srv/music"}, cfg.Media.Roots)
	require.Len(t, cfg.Renderers, 2)
	assert.Equal(t, "SEC_HHP_", cfg.Renderers[0].UserAgent)
	assert.Equal(t, 6, cfg.Renderers[0].HLSVersion)
	assert.Equal(t, []string{"srt"}, cfg.Renderers[0].SubtitleFormats)
	assert.True(t, cfg.Renderers[1].Xbox360)
	assert.True(t, cfg.Metrics.Enabled)

	profiles := cfg.RendererProfiles()
	assert.Equal(t, []string{"eng", "deu"}, profiles[0].AudioLanguages)
	assert.Equal(t, []string{"eng", "deu"}, cfg.DefaultRendererProfile().AudioLanguages)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DMS_SERVER_LISTEN", ":9000")
	t.Setenv("DMS_LOGGING_LEVEL", "warn")
	t.Setenv("DMS_STORAGE_DSN", "/var/lib/dms/state.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/dms/state.db", cfg.Storage.DSN)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DMS_SERVER_FRIENDLY_NAME=From dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DMS_SERVER_FRIENDLY_NAME") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "From dotenv", cfg.Server.FriendlyName)
}

func TestLoadWith_BoundValue(t *testing.T) {
	t.Chdir(t.TempDir())
	v := viper.New()
	v.Set("logging.format", "text")
	cfg, err := LoadWith(v, "")
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	configPath := filepath.Join(dir, "dms.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0o600))
	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validTestConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"no connections", func(c *Config) { c.Server.MaxConnections = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"no content", func(c *Config) { c.Media.Roots = nil }},
		{"no workers", func(c *Config) { c.Media.ProbeWorkers = 0 }},
		{"no dsn", func(c *Config) { c.Storage.DSN = "" }},
		{"metrics path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" }},
		{"unnamed renderer", func(c *Config) { c.Renderers = append(c.Renderers, c.DefaultRendererProfile()); c.Renderers[0].Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validTestConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	c := validTestConfig()
	c.Media.Roots = nil
	c.ContentProvider.BaseURL = "https://provider.local"
	assert.NoError(t, c.Validate())
}
