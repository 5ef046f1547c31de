// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/raygan/mam-audiofinder-sub001/internal/domain"
)

// Setup configures the global zerolog logger from cfg. It returns the
// rotating file writer, if any, so the caller can close it on shutdown.
func Setup(cfg *domain.Config, stdout io.Writer) io.Closer {
	zerolog.TimeFieldFormat = time.RFC3339

	writers := []io.Writer{zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.DateTime}}

	var file *lumberjack.Logger
	if cfg.LogPath != "" {
		path := cfg.LogPath
		if !filepath.IsAbs(path) && cfg.DataDir != "" {
			path = filepath.Join(cfg.DataDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to create log directory, logging to stdout only")
		} else {
			file = &lumberjack.Logger{
				Filename:   path,
				MaxSize:    max(cfg.LogMaxSize, 1),
				MaxBackups: cfg.LogMaxBackups,
			}
			writers = append(writers, file)
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	SetLevel(cfg.LogLevel)

	if file == nil {
		return nopCloser{}
	}
	return file
}

// SetLevel changes the global level. Unknown names fall back to info.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
