// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/raygan/mam-audiofinder-sub001/internal/domain"
)

const (
	configFileName = "config.toml"
	envPrefix      = "AUDIOFINDER__"
)

var validImportModes = map[string]struct{}{
	"":         {},
	"link":     {},
	"hardlink": {},
	"copy":     {},
	"move":     {},
}

var configTemplate = `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost"
host = "{{ .host }}"

# Port
# Default: 8484
port = 8484

# Base URL
# Set custom baseUrl eg /audiofinder/ to serve in subdirectory.
#baseUrl = "/"

# Log level
# Default: "INFO"
# Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
logLevel = "INFO"

# Log file path. Leave empty to log to stdout only.
#logPath = "log/audiofinder.log"

# Log rotation
#logMaxSize = 50
#logMaxBackups = 3

# Data directory holding the database and cover thumbnails.
# Default: the directory of this file
#dataDir = ""

# Prometheus metrics at /metrics
#metricsEnabled = true

# qBittorrent Web UI
qbitHost = "http://localhost:8080"
#qbitUsername = "admin"
#qbitPassword = ""
#qbitCategory = "audiobooks"
#qbitTimeoutSeconds = 30

# Library root books are imported into, as <libraryRoot>/<Author>/<Title>.
libraryRoot = "/library"

# Path fragment torrent content paths are expected to contain.
#mediaRootFragment = "/media/torrents"

# Transfer mode: "link", "copy" or "move"
#importMode = "link"

# Audiobookshelf
#absUrl = "http://localhost:13378"
#absToken = ""
#absLibraryId = ""

# Cover fetching
#coverMaxRetries = 2
#coverMaxJitterMs = 500
#coverBaseDelayMs = 1000
#coverCacheMinutes = 30
`

// AppConfig holds the loaded configuration and notifies listeners when the
// file changes on disk.
type AppConfig struct {
	Config *domain.Config

	viper  *viper.Viper
	fs     afero.Fs
	dir    string
	mu     sync.RWMutex
	listen []func(*domain.Config)
}

// New loads config.toml from configDir, writing a default file first if needed.
func New(configDir, version string) (*AppConfig, error) {
	c, err := load(afero.NewOsFs(), configDir, version)
	if err != nil {
		return nil, err
	}
	c.watch()
	return c, nil
}

func load(fs afero.Fs, configDir, version string) (*AppConfig, error) {
	if configDir == "" {
		configDir = defaultConfigDir()
	}
	c := &AppConfig{
		Config: &domain.Config{Version: version},
		viper:  viper.New(),
		fs:     fs,
		dir:    configDir,
	}
	c.viper.SetFs(fs)
	c.defaults()
	c.bindEnv()

	if err := c.writeDefaultConfig(); err != nil {
		return nil, err
	}

	c.viper.SetConfigFile(filepath.Join(configDir, configFileName))
	c.viper.SetConfigType("toml")
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := c.unmarshal(); err != nil {
		return nil, err
	}
	return c, nil
}

// defaults lists every key with its default value.
var defaults = []struct {
	key   string
	value any
}{
	{"host", "localhost"},
	{"port", 8484},
	{"baseUrl", "/"},
	{"logLevel", "INFO"},
	{"logPath", ""},
	{"logMaxSize", 50},
	{"logMaxBackups", 3},
	{"dataDir", ""},
	{"metricsEnabled", true},
	{"qbitHost", "http://localhost:8080"},
	{"qbitUsername", ""},
	{"qbitPassword", ""},
	{"qbitCategory", ""},
	{"qbitTimeoutSeconds", 30},
	{"libraryRoot", "/library"},
	{"mediaRootFragment", ""},
	{"importMode", "link"},
	{"absUrl", ""},
	{"absToken", ""},
	{"absLibraryId", ""},
	{"coverMaxRetries", 2},
	{"coverMaxJitterMs", 500},
	{"coverBaseDelayMs", 1000},
	{"coverCacheMinutes", 30},
}

func (c *AppConfig) defaults() {
	for _, d := range defaults {
		c.viper.SetDefault(d.key, d.value)
	}
}

// bindEnv maps every key to AUDIOFINDER__<UPPER_SNAKE_KEY>.
func (c *AppConfig) bindEnv() {
	for _, d := range defaults {
		_ = c.viper.BindEnv(d.key, EnvName(d.key))
	}
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	var b strings.Builder
	b.WriteString(envPrefix)
	for i, r := range key {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func (c *AppConfig) unmarshal() error {
	cfg := &domain.Config{}
	if err := c.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	if c.Config != nil {
		cfg.Version = c.Config.Version
	}
	if cfg.DataDir == "" {
		cfg.DataDir = c.dir
	}
	if err := validate(cfg); err != nil {
		return err
	}

	c.mu.Lock()
	c.Config = cfg
	c.mu.Unlock()
	return nil
}

func validate(cfg *domain.Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if _, ok := validImportModes[strings.ToLower(cfg.ImportMode)]; !ok {
		return fmt.Errorf("invalid importMode %q", cfg.ImportMode)
	}
	if cfg.CoverMaxRetries < 0 {
		return fmt.Errorf("invalid coverMaxRetries %d", cfg.CoverMaxRetries)
	}
	return nil
}

// Current returns the most recently loaded configuration.
func (c *AppConfig) Current() *domain.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Config
}

// OnChange registers fn to run after the config file is reloaded.
func (c *AppConfig) OnChange(fn func(*domain.Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listen = append(c.listen, fn)
}

func (c *AppConfig) watch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c.reload()
	})
	c.viper.WatchConfig()
}

func (c *AppConfig) reload() {
	if err := c.unmarshal(); err != nil {
		log.Error().Err(err).Msg("Failed to reload config, keeping previous values")
		return
	}
	cfg := c.Current()
	log.Info().Str("logLevel", cfg.LogLevel).Msg("Config reloaded")

	c.mu.RLock()
	listeners := append([]func(*domain.Config){}, c.listen...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

func (c *AppConfig) writeDefaultConfig() error {
	path := filepath.Join(c.dir, configFileName)
	if _, err := c.fs.Stat(path); err == nil {
		return nil
	}
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("parse config template: %w", err)
	}
	host := "localhost"
	if _, err := c.fs.Stat("/.dockerenv"); err == nil {
		host = "0.0.0.0"
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string{"host": host}); err != nil {
		return fmt.Errorf("render config template: %w", err)
	}
	if err := afero.WriteFile(c.fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	log.Info().Str("path", path).Msg("Wrote default config")
	return nil
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "audiofinder")
	}
	return "."
}
