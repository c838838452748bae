package main

import (
	"os"
	"os/signal"
	"syscall"

	"cadenza/internal/config"
	"cadenza/internal/coordinator"
	"cadenza/internal/database"
	"cadenza/internal/library"
	"cadenza/internal/metadata"
	"cadenza/internal/playback"
	"cadenza/internal/playlist"
	"cadenza/internal/session"
	"cadenza/internal/smartlist"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Optional .env overrides for local development
	_ = godotenv.Load()
	if path := os.Getenv("CADENZA_CONFIG"); path != "" {
		configPath = path
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	applyLogConfig(logger, cfg.Logging)

	// Check that at least one library folder exists
	accessible := 0
	for _, folder := range cfg.Library.Folders {
		if info, err := os.Stat(folder); err == nil && info.IsDir() {
			accessible++
		} else {
			logger.WithField("folder", folder).Warn("Library folder does not exist")
		}
	}
	if accessible == 0 {
		logger.Fatal("No library folder is accessible. Please create one and add your music files.")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	// Build the library and scan the configured folders
	extractor := metadata.NewExtractor(cfg.Library.SupportedFormats, logger)
	lib := library.New(db, extractor, &cfg.Library, logger)

	// Playlists materialize against the live library
	builder := smartlist.NewBuilder(lib, logger)
	playlists := playlist.NewManager(db, builder, lib, logger)
	if err := playlists.LoadAll(); err != nil {
		logger.WithError(err).Fatal("Error loading playlists")
	}

	// Session persistence
	store, err := session.NewStore(cfg.Session.StorePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error opening session store")
	}
	sess := session.NewManager(store, lib, cfg.Session, logger)

	// Playback state and engine
	state := playback.NewStateManager()
	engine := playback.NewClockEngine()
	engine.SetVolume(cfg.Playback.Volume)
	state.UpdateVolume(cfg.Playback.Volume, false)

	coord := coordinator.New(cfg, lib, playlists, state, engine, sess, logger)
	coord.Start()

	if err := lib.Load(); err != nil {
		logger.WithError(err).Fatal("Error loading music library")
	}
	if err := lib.Scan(); err != nil {
		logger.WithError(err).Fatal("Error scanning music library")
	}
	if len(lib.AllTracks()) == 0 {
		logger.WithField("supported_formats", cfg.Library.SupportedFormats).Warn("No supported audio files found in library folders")
	}

	if cfg.Library.WatchForChanges {
		if err := lib.StartWatcher(); err != nil {
			logger.WithError(err).Warn("Could not start file watcher")
		}
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	logger.Info("Cadenza is running. Press Ctrl+C to exit.")
	<-c

	logger.Info("Received shutdown signal")
	coord.Shutdown()
	lib.Close()
}

func applyLogConfig(logger *logrus.Logger, cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}
