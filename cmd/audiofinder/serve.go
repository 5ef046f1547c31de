package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/raygan/mam-audiofinder-sub001/internal/api"
	"github.com/raygan/mam-audiofinder-sub001/internal/config"
	"github.com/raygan/mam-audiofinder-sub001/internal/database"
	"github.com/raygan/mam-audiofinder-sub001/internal/domain"
	"github.com/raygan/mam-audiofinder-sub001/internal/logger"
	"github.com/raygan/mam-audiofinder-sub001/internal/metrics"
	"github.com/raygan/mam-audiofinder-sub001/internal/models"
	"github.com/raygan/mam-audiofinder-sub001/internal/qbittorrent"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/audiobookshelf"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/covers"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/importer"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/matcher"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/verification"
)

func newServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the import planning server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, configDir)
		},
	}

	cmd.Flags().StringVar(&configDir, "config", "", "Config directory (defaults to the user config dir)")
	return cmd
}

func runServer(ctx context.Context, configDir string) error {
	appCfg, err := config.New(configDir, version)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := appCfg.Current()

	logCloser := logger.Setup(cfg, os.Stdout)
	defer logCloser.Close()
	appCfg.OnChange(func(c *domain.Config) {
		logger.SetLevel(c.LogLevel)
	})

	log.Info().Str("version", version).Str("dataDir", cfg.DataDir).Msg("Starting audiofinder")

	db, err := database.New(ctx, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	store := models.NewHistoryStore(db.Conn())

	mode, err := importer.ParseMode(cfg.ImportMode)
	if err != nil {
		return err
	}

	torrents := qbittorrent.NewClient(qbittorrent.Config{
		Host:           cfg.QbitHost,
		Username:       cfg.QbitUsername,
		Password:       cfg.QbitPassword,
		Category:       cfg.QbitCategory,
		TimeoutSeconds: cfg.QbitTimeoutSeconds,
	})
	library := audiobookshelf.NewClient(audiobookshelf.Config{
		BaseURL:   cfg.AbsURL,
		Token:     cfg.AbsToken,
		LibraryID: cfg.AbsLibraryID,
	})
	if !library.Configured() {
		log.Warn().Msg("Audiobookshelf is not configured, verification will report not_configured")
	}

	importSvc := importer.NewService(torrents, store, matcher.New(cfg.MediaRootFragment), importer.NewExecutor(importer.NewOsFs()), importer.Options{
		LibraryRoot: cfg.LibraryRoot,
		Mode:        mode,
	})
	tracker := verification.NewTracker(library, store)
	importSvc.Subscribe(tracker)

	coverSvc, err := covers.NewService(library, covers.Options{
		DataDir:    cfg.DataDir,
		MaxRetries: cfg.CoverMaxRetries,
		MaxJitter:  time.Duration(cfg.CoverMaxJitterMs) * time.Millisecond,
		BaseDelay:  time.Duration(cfg.CoverBaseDelayMs) * time.Millisecond,
		CacheTTL:   time.Duration(cfg.CoverCacheMinutes) * time.Minute,
	})
	if err != nil {
		return err
	}

	var metricsManager *metrics.Manager
	if cfg.MetricsEnabled {
		metricsManager = metrics.NewManager()
		importSvc.SetRecorder(metricsManager)
		tracker.SetRecorder(metricsManager)
		coverSvc.SetRecorder(metricsManager)
	}

	router, err := api.NewRouter(api.Dependencies{
		Version:  version,
		BaseURL:  cfg.BaseURL,
		History:  store,
		Planner:  importSvc,
		Importer: importSvc,
		Verifier: tracker,
		Files:    torrents,
		Covers:   coverSvc,
		DB:       db.Conn(),
		Metrics:  metricsManager,
	})
	if err != nil {
		return err
	}

	return api.NewServer(cfg.Host, cfg.Port, router).ListenAndServe(ctx)
}
