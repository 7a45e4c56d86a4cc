package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/pinboard/internal/channels/discord"
	"github.com/haasonsaas/pinboard/internal/config"
	"github.com/haasonsaas/pinboard/internal/observability"
	"github.com/haasonsaas/pinboard/internal/pins"
	"github.com/haasonsaas/pinboard/internal/storage"
	"github.com/haasonsaas/pinboard/pkg/models"
)

const shutdownTimeout = 30 * time.Second

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe loads the configuration, wires the Discord client to the pin
// service and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, level := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		AddSource: cfg.Logging.AddSource,
	})
	if debug {
		level.Set(slog.LevelDebug)
	}
	slog.SetDefault(logger)

	logger.Info("starting pinboard",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	traceCfg := observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Attributes:     cfg.Tracing.Attributes,
		EnableInsecure: cfg.Tracing.Insecure,
	}
	if traceCfg.ServiceVersion == "" {
		traceCfg.ServiceVersion = version
	}
	if cfg.Tracing.Enabled {
		traceCfg.Endpoint = cfg.Tracing.Endpoint
	}
	tracer, shutdownTracer := observability.NewTracer(traceCfg)

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	if cfg.Pinboards.DefaultMigrationMode != "" {
		mode, err := models.ParseMigrationMode(cfg.Pinboards.DefaultMigrationMode)
		if err != nil {
			return err
		}
		seeded, err := stores.Settings.SeedMigrationMode(ctx, mode)
		if err != nil {
			return fmt.Errorf("seed migration mode: %w", err)
		}
		if seeded {
			logger.Info("stored default migration mode", "mode", mode)
		}
	}

	client, err := discord.NewClient(discord.Config{
		Token:             cfg.Discord.Token,
		RateLimit:         cfg.Discord.RateLimit,
		RateBurst:         cfg.Discord.RateBurst,
		StateMessageLimit: cfg.Discord.StateMessageLimit,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create discord client: %w", err)
	}

	svc, err := pins.NewService(serviceConfig(cfg), client, stores,
		pins.WithLogger(logger),
		pins.WithMetrics(metrics),
		pins.WithTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("failed to create pin service: %w", err)
	}
	client.SetHandler(svc)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		_ = client.Stop(context.Background())
		return fmt.Errorf("failed to start pin service: %w", err)
	}

	errCh := make(chan error, 1)
	var httpServer *http.Server
	if cfg.Metrics.Enabled != nil && *cfg.Metrics.Enabled {
		httpServer = newHTTPServer(cfg.Metrics.Listen, registry, client.Connected)
		listener, err := net.Listen("tcp", httpServer.Addr)
		if err != nil {
			_ = svc.Stop(context.Background())
			_ = client.Stop(context.Background())
			return fmt.Errorf("http listen: %w", err)
		}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
		logger.Info("metrics endpoint listening", "addr", listener.Addr().String())
	}

	go func() {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			if debug {
				return
			}
			level.Set(observability.LogLevelFromString(next.Logging.Level))
			logger.Info("log level reloaded", "level", next.Logging.Level)
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	logger.Info("pinboard started",
		"home_guild_id", cfg.Discord.HomeGuildID,
		"self_id", client.SelfID(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case runErr = <-errCh:
		logger.Error("server error, shutting down", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", "error", err)
		}
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Warn("pin service shutdown failed", "error", err)
	}
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Warn("discord client shutdown failed", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("pinboard stopped gracefully")
	return nil
}

func serviceConfig(cfg *config.Config) pins.Config {
	out := pins.Config{
		HomeGuildID:   cfg.Discord.HomeGuildID,
		CommandPrefix: cfg.Discord.CommandPrefix,
		PromptTimeout: cfg.Pinboards.PromptTimeout,
		MaxPageSize:   cfg.Pinboards.MaxPageSize,
		WarmCache:     cfg.Pinboards.WarmCache == nil || *cfg.Pinboards.WarmCache,
	}
	if cfg.Pinboards.AuditEnabled() {
		out.AuditSchedule = cfg.Pinboards.AuditSchedule
	}
	return out
}

func newHTTPServer(addr string, gatherer prometheus.Gatherer, connected func() bool) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", healthHandler(connected))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// healthHandler reports 200 while the gateway is connected and 503 otherwise.
func healthHandler(connected func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok", "discord_connected": true}
		if connected == nil || !connected() {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "discord_connected": false}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// =============================================================================
// Database Command Handlers
// =============================================================================

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, dialect, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN, sqlConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := storage.Migrate(cmd.Context(), db, dialect)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(out, "Applied %s\n", name)
	}
	return nil
}

func runDBPrune(cmd *cobra.Command, configPath string, yes bool) error {
	if !yes {
		return errors.New("refusing to delete all data without --yes")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	if err := stores.Prune(cmd.Context()); err != nil {
		return fmt.Errorf("prune database: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All stored data deleted.")
	return nil
}

// =============================================================================
// Migration Mode Command Handlers
// =============================================================================

func runModeGet(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	mode, err := stores.Settings.MigrationMode(cmd.Context())
	if err != nil {
		return fmt.Errorf("read migration mode: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), mode)
	return nil
}

func runModeSet(cmd *cobra.Command, configPath, value string) error {
	mode, err := models.ParseMigrationMode(value)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	if err := stores.Settings.SetMigrationMode(cmd.Context(), mode); err != nil {
		return fmt.Errorf("store migration mode: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Automatic migration mode set to %s.\n", mode)
	return nil
}

// =============================================================================
// Link Command Handlers
// =============================================================================

type linksReport struct {
	Pinboards []*models.Pinboard     `json:"pinboards"`
	Links     []*models.PinboardLink `json:"links"`
}

func runLinksList(cmd *cobra.Command, configPath string, asJSON bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	report := linksReport{}
	if report.Pinboards, err = stores.Pinboards.List(cmd.Context(), 0); err != nil {
		return fmt.Errorf("list pinboards: %w", err)
	}
	if report.Links, err = stores.Pinboards.Links(cmd.Context()); err != nil {
		return fmt.Errorf("list links: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if len(report.Pinboards) == 0 {
		fmt.Fprintln(out, "No pinboards registered.")
		return nil
	}
	for _, board := range report.Pinboards {
		fmt.Fprintf(out, "Pinboard %s\n", board.ChannelID)
		linked := 0
		for _, link := range report.Links {
			if link.PinboardChannelID != board.ChannelID {
				continue
			}
			fmt.Fprintf(out, "  <- %s\n", link.SourceChannelID)
			linked++
		}
		if linked == 0 {
			fmt.Fprintln(out, "  (no linked channels)")
		}
	}
	return nil
}

// =============================================================================
// Privacy Command Handlers
// =============================================================================

func runPrivacy(cmd *cobra.Command, configPath, action, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	switch action {
	case "protect":
		if err := stores.Privacy.Protect(ctx, userID); err != nil {
			return fmt.Errorf("protect user: %w", err)
		}
		fmt.Fprintf(out, "Messages from %s will no longer be mirrored.\n", userID)
	case "unprotect":
		if err := stores.Privacy.Unprotect(ctx, userID); err != nil {
			return fmt.Errorf("unprotect user: %w", err)
		}
		fmt.Fprintf(out, "Messages from %s will be mirrored again.\n", userID)
	case "status":
		protected, err := stores.Privacy.IsProtected(ctx, userID)
		if err != nil {
			return fmt.Errorf("read privacy setting: %w", err)
		}
		if protected {
			fmt.Fprintf(out, "%s is protected\n", userID)
		} else {
			fmt.Fprintf(out, "%s is not protected\n", userID)
		}
	default:
		return fmt.Errorf("unknown privacy action %q", action)
	}
	return nil
}

// =============================================================================
// Config Command Handlers
// =============================================================================

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(schema); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	raw, err := config.LoadRaw(configPath)
	if err != nil {
		return err
	}
	if err := config.ValidateSchema(raw); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s is valid\n", configPath)
	fmt.Fprintf(out, "  database:        %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  home guild:      %s\n", cfg.Discord.HomeGuildID)
	fmt.Fprintf(out, "  command prefix:  %s\n", cfg.Discord.CommandPrefix)
	if cfg.Pinboards.AuditEnabled() {
		fmt.Fprintf(out, "  audit schedule:  %s\n", cfg.Pinboards.AuditSchedule)
	} else {
		fmt.Fprintln(out, "  audit schedule:  off")
	}
	return nil
}
