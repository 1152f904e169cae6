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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/media_downloader/internal/broadcast"
	"github.com/italolelis/media_downloader/internal/cleanup"
	"github.com/italolelis/media_downloader/internal/config"
	"github.com/italolelis/media_downloader/internal/http/rest"
	"github.com/italolelis/media_downloader/internal/invocation"
	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/notifier"
	"github.com/italolelis/media_downloader/internal/operation"
	"github.com/italolelis/media_downloader/internal/process"
	"github.com/italolelis/media_downloader/internal/storage"
	"github.com/italolelis/media_downloader/internal/storage/sqlite"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

// version is set at build time.
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("media downloader starting...", "log_level", cfg.LogLevel, "version", version)

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
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(sqlite.InMemory)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	history := sqlite.NewInstrumentedOperationRepository(database, tel)

	// =========================================================================
	// Start Coordinator
	broadcaster := broadcast.New(cfg.SubscriberBuffer, tel)
	defer broadcaster.Close()

	builder := invocation.NewBuilder(invocation.Config{
		YtDlpPath:       cfg.YtDlpPath,
		FFmpegPath:      cfg.FFmpegPath,
		DownloadDir:     cfg.DownloadDir,
		DownloadTimeout: cfg.DownloadTimeout,
		ConvertTimeout:  cfg.ConvertTimeout,
	})

	coordinator := operation.NewCoordinator(
		builder,
		operation.SupervisorStarter{Supervisor: process.NewSupervisor(cfg.ProcessWaitDelay)},
		broadcaster,
		operation.WithHistory(history),
		operation.WithTelemetry(tel),
	)

	// =========================================================================
	// Start Notification
	setupNotification(ctx, coordinator, cfg)

	// =========================================================================
	// Start Cleanup
	go cleanup.Run(ctx, history, cfg.CleanupInterval, cfg.KeepHistoryFor)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, coordinator, history, broadcaster, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for requests...",
		"download_dir", cfg.DownloadDir,
		"download_timeout", cfg.DownloadTimeout.String(),
		"convert_timeout", cfg.ConvertTimeout.String(),
		"retention", cfg.KeepHistoryFor.String(),
	)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		return shutdownServer(ctx, server, coordinator.CancelAll, cfg.Web.ShutdownTimeout)
	}
}

// shutdownServer stops the server and cancels running operations so their
// pending requests can answer. Operations are cancelled once the listener is
// closed and again after the server stopped, which also catches requests
// accepted while shutdown began.
func shutdownServer(ctx context.Context, server *http.Server, cancelAll func(), timeout time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	server.RegisterOnShutdown(cancelAll)

	// Give outstanding requests a deadline for completion.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := server.Shutdown(ctx)
	if err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		err = server.Close()
	}

	cancelAll()

	if err != nil {
		return fmt.Errorf("could not stop server gracefully: %w", err)
	}

	return nil
}

func setupNotification(ctx context.Context, coordinator *operation.Coordinator, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-coordinator.OnOperationFinished:
				if notif == nil {
					continue
				}

				msg := notifier.OutcomeMessage(event.Operation.Kind, event.Operation.Source, event.Outcome, event.Operation.Elapsed())

				if err := notif.Notify(ctx, msg); err != nil {
					logger.Error("failed to send notification", "operation_id", event.Operation.ID, "err", err)
				}
			}
		}
	}()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	coordinator *operation.Coordinator,
	history storage.OperationReadRepository,
	broadcaster *broadcast.Broadcaster,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	mediaHandler := rest.NewMediaHandler(coordinator, history)
	hub := rest.NewHub(broadcaster, cfg.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Requested-With"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", tel.Handler())
	r.Handle("/mediaHub", hub)
	r.Mount("/", mediaHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "http.server"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
