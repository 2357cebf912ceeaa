package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/update_fetcher/internal/cleanup"
	"github.com/italolelis/update_fetcher/internal/config"
	"github.com/italolelis/update_fetcher/internal/http/rest"
	"github.com/italolelis/update_fetcher/internal/logctx"
	"github.com/italolelis/update_fetcher/internal/manager"
	"github.com/italolelis/update_fetcher/internal/manifest"
	"github.com/italolelis/update_fetcher/internal/netwatch"
	"github.com/italolelis/update_fetcher/internal/notifier"
	"github.com/italolelis/update_fetcher/internal/storage"
	"github.com/italolelis/update_fetcher/internal/storage/sqlite"
	"github.com/italolelis/update_fetcher/internal/telemetry"
	"github.com/italolelis/update_fetcher/internal/update"
	"github.com/italolelis/update_fetcher/internal/verify"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("update fetcher starting...", "version", version, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer shutdownCancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedUpdateRepository(database, tel)

	// =========================================================================
	// Start Trust Anchors
	roots, err := verify.LoadRoots(cfg.TrustedRootsPath)
	if err != nil {
		return fmt.Errorf("failed to load trusted roots: %w", err)
	}

	// =========================================================================
	// Start HTTP Client
	client := buildHTTPClient(ctx, cfg)

	// =========================================================================
	// Start Network Monitor
	monitor := netwatch.NewMonitor()

	// =========================================================================
	// Start Update Manager
	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
	}

	mgr := manager.New(manager.Config{
		DownloadDir: cfg.DownloadDir,
		Client:      client,
		Verifier:    verify.NewSuite(roots),
		Watcher:     monitor,
		Policy: update.Policy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			RetryDelay:   cfg.Retry.Delay,
			PollInterval: cfg.Retry.PollInterval,
		},
		Repo:      repo,
		Notifier:  notif,
		Telemetry: tel,
	})

	if err := refreshManifest(ctx, mgr, cfg); err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, mgr, repo, tel, cfg)

	logger.Info("waiting for updates...",
		"artifact", cfg.ArtifactName,
		"current_version", cfg.CurrentVersion,
		"download_dir", cfg.DownloadDir,
		"check_interval", cfg.CheckInterval.String(),
		"retention", cfg.KeepAcceptedFor.String(),
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	group.Go(func() error {
		monitor.Watch(ctx, cfg.Probe.Interval, netwatch.DialProbe(cfg.Probe.Address, cfg.Probe.Timeout))

		return nil
	})

	group.Go(func() error {
		return checkLoop(ctx, mgr, cfg)
	})

	group.Go(func() error {
		cleanupLoop(ctx, repo, cfg)

		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// buildHTTPClient returns the client used for manifest and artifact
// downloads, with bearer auth and trace propagation when configured.
func buildHTTPClient(ctx context.Context, cfg *config.Config) *http.Client {
	var client *http.Client
	if cfg.UpdateToken != "" {
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.UpdateToken}))
	} else {
		client = &http.Client{}
	}

	client.Transport = otelhttp.NewTransport(client.Transport)
	client.Timeout = 0 // transfers are bounded by context, not a flat timeout

	return client
}

// checkLoop polls the manifest and triggers an update whenever a newer
// version of the configured artifact shows up.
func checkLoop(ctx context.Context, mgr *manager.Manager, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := refreshManifest(ctx, mgr, cfg); err != nil {
				logger.Error("failed to refresh manifest", "err", err)

				continue
			}

			art, ok := mgr.Latest(cfg.ArtifactName)
			if !ok {
				logger.Warn("artifact missing from manifest", "artifact", cfg.ArtifactName)

				continue
			}

			needs, err := art.NeedsUpdate(cfg.CurrentVersion)
			if err != nil {
				logger.Error("failed to compare versions", "err", err)

				continue
			}

			if !needs {
				continue
			}

			taskID, err := mgr.Trigger(ctx, cfg.ArtifactName)
			if err != nil {
				if errors.Is(err, storage.ErrAlreadyApplied) {
					continue
				}

				logger.Error("failed to trigger update", "err", err)

				continue
			}

			logger.Info("update triggered", "task_id", taskID, "artifact", cfg.ArtifactName, "version", art.Version)
		}
	}
}

func refreshManifest(ctx context.Context, mgr *manager.Manager, cfg *config.Config) error {
	if cfg.ManifestURL != "" {
		return mgr.Refresh(ctx, cfg.ManifestURL)
	}

	doc, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		return err
	}

	mgr.SetManifest(doc)

	return nil
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, mgr *manager.Manager, repo storage.UpdateRepository, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	uHandler := rest.NewUpdateHandler(mgr, repo)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)
	r.Mount("/", uHandler.Routes())
	r.Method(http.MethodGet, "/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func cleanupLoop(ctx context.Context, repo storage.UpdateReadRepository, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-ticker.C:
			tracked, err := repo.GetUpdates()
			if err != nil {
				logger.Error("failed to get tracked updates for cleanup", "err", err)

				continue
			}

			if err := cleanup.DeleteExpiredArtifacts(ctx, tracked, cfg.DownloadDir, cfg.KeepAcceptedFor); err != nil {
				logger.Error("failed to delete expired artifacts", "err", err)
			}
		}
	}
}
