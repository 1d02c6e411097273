package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vigil/config"
	"vigil/internal/api"
	"vigil/internal/cache/sqlite"
	"vigil/internal/catalogue"
	"vigil/internal/core"
	"vigil/internal/engine"
	"vigil/internal/locks"
	"vigil/internal/logging"
	"vigil/internal/playback"
	"vigil/internal/remote"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"
	appVersion        = "0.3.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	offline := flag.Bool("offline", false, "Run against the in-memory store instead of the remote database")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error

	if *useEnv {
		cfg, err = config.LoadFromEnv(*offline)
	} else {
		cfg, err = config.Load(*configPath, *offline)
	}

	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Log.Format,
		Level:  logging.ParseLevel(cfg.Log.Level),
	})

	ctx := context.Background()

	// Durable enforcement cache
	logger.Info("Opening enforcement cache", "path", cfg.Cache.Path)
	cacheStore, err := sqlite.New(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("failed to open enforcement cache: %w", err)
	}
	defer cacheStore.Close()

	// Remote store
	var store remote.Store
	if *offline {
		logger.Warn("Running in offline mode, remote changes will not arrive")
		store = remote.NewMemoryStore()
	} else {
		store, err = remote.NewFirebaseStore(ctx, cfg.Remote.CredentialsFile, cfg.Remote.DatabaseURL,
			cfg.Remote.PollInterval(), logger)
		if err != nil {
			return fmt.Errorf("failed to connect to remote store: %w", err)
		}
	}

	// Catalogue and playback surface, fed by the local API
	cat := catalogue.NewMemoryCatalogue()
	tracker := playback.NewTracker()

	// Enforcement engine
	eng := engine.New(engine.Options{
		FamilyID:          cfg.Family.FamilyID,
		ChildUID:          cfg.Family.ChildUID,
		DeviceName:        cfg.Family.DeviceName,
		AppVersion:        appVersion,
		ReconcileInterval: cfg.Reconcile.Interval(),
	}, store, cacheStore, locks.NewCatalogueResolver(cat, logger), tracker, core.RealClock{}, logger)

	if err := eng.StartListening(ctx); err != nil {
		return fmt.Errorf("failed to start enforcement engine: %w", err)
	}
	defer eng.StopListening()

	// Local status/control API
	router := api.NewRouter(api.RouterConfig{
		Engine: eng,
		APIKey: cfg.Server.APIKey,
		Logger: logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting local API server", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Received signal, starting graceful shutdown", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}
