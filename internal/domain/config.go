// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Version        string
	Host           string `toml:"host" mapstructure:"host"`
	Port           int    `toml:"port" mapstructure:"port"`
	BaseURL        string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel       string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath        string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize     int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups  int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir        string `toml:"dataDir" mapstructure:"dataDir"`
	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`

	// qBittorrent
	QbitHost           string `toml:"qbitHost" mapstructure:"qbitHost"`
	QbitUsername       string `toml:"qbitUsername" mapstructure:"qbitUsername"`
	QbitPassword       string `toml:"qbitPassword" mapstructure:"qbitPassword"`
	QbitCategory       string `toml:"qbitCategory" mapstructure:"qbitCategory"`
	QbitTimeoutSeconds int    `toml:"qbitTimeoutSeconds" mapstructure:"qbitTimeoutSeconds"`

	// Import
	LibraryRoot       string `toml:"libraryRoot" mapstructure:"libraryRoot"`
	MediaRootFragment string `toml:"mediaRootFragment" mapstructure:"mediaRootFragment"`
	ImportMode        string `toml:"importMode" mapstructure:"importMode"`

	// Audiobookshelf
	AbsURL       string `toml:"absUrl" mapstructure:"absUrl"`
	AbsToken     string `toml:"absToken" mapstructure:"absToken"`
	AbsLibraryID string `toml:"absLibraryId" mapstructure:"absLibraryId"`

	// Covers
	CoverMaxRetries   int `toml:"coverMaxRetries" mapstructure:"coverMaxRetries"`
	CoverMaxJitterMs  int `toml:"coverMaxJitterMs" mapstructure:"coverMaxJitterMs"`
	CoverBaseDelayMs  int `toml:"coverBaseDelayMs" mapstructure:"coverBaseDelayMs"`
	CoverCacheMinutes int `toml:"coverCacheMinutes" mapstructure:"coverCacheMinutes"`
}
