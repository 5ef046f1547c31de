package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raygan/mam-audiofinder-sub001/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"TRACE":   zerolog.TraceLevel,
		"debug":   zerolog.DebugLevel,
		" Warn ":  zerolog.WarnLevel,
		"ERROR":   zerolog.ErrorLevel,
		"INFO":    zerolog.InfoLevel,
		"unknown": zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetupWritesRotatedFile(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	dir := t.TempDir()
	var stdout bytes.Buffer
	closer := Setup(&domain.Config{
		LogLevel:   "DEBUG",
		LogPath:    "logs/audiofinder.log",
		DataDir:    dir,
		LogMaxSize: 1,
	}, &stdout)

	log.Debug().Str("hash", "abc").Msg("Planned import")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "logs", "audiofinder.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Planned import")
	assert.Contains(t, stdout.String(), "Planned import")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupStdoutOnly(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var stdout bytes.Buffer
	closer := Setup(&domain.Config{LogLevel: "WARN"}, &stdout)
	require.NoError(t, closer.Close())

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "shown")
}
