package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"linkwatch/app/internal/alerts"
	"linkwatch/app/internal/checker"
	"linkwatch/app/internal/config"
	"linkwatch/app/internal/database"
	"linkwatch/app/internal/health"
	"linkwatch/app/internal/inventory"
	"linkwatch/app/internal/logging"
	"linkwatch/app/internal/monitor"
	"linkwatch/app/internal/state"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "linkwatch",
	Short:   "linkwatch - branch link uptime monitor",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor and the health/metrics listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "linkwatch %s\n", Version)
		if GitCommit != "unknown" {
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	logging.Init(logging.Config{Level: "info", Format: "console", Component: "linkwatch"})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "linkwatch"})
	log.Info().Str("version", Version).Msg("Starting linkwatch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The manager keeps up to DBMaxConnections; leave headroom for the health probe.
	db, err := database.Open(cfg.DBPath, cfg.DBMaxConnections+2)
	if err != nil {
		return err
	}
	defer db.Close()

	pool := database.NewSQLPool(db)
	mgr := database.NewManager(pool, database.Options{
		MaxConnections: cfg.DBMaxConnections,
		MaxIdleTime:    cfg.DBMaxIdle,
		Retries:        cfg.DBQueryRetries,
	})
	mgr.Start(ctx)
	defer func() {
		if err := mgr.CloseAll(); err != nil {
			log.Warn().Err(err).Msg("Error closing database connections")
		}
	}()

	store := state.New(state.Config{
		JournalCapacity:      cfg.EventJournalCapacity,
		EventTTL:             cfg.EventTTL,
		RecentChecksCapacity: cfg.RecentChecksCapacity,
	})

	hosts := database.NewHosts(mgr)
	inv := inventory.New(hosts, store, cfg.InventoryRefresh)
	inv.LoadInitial(ctx)
	inv.StartAutoRefresh(ctx)
	defer inv.StopAutoRefresh()

	dbHealth := health.New(pool, health.Config{
		Schedule: cfg.DBRetrySchedule,
		MaxDelay: cfg.DBRetryMax,
	})
	dbHealth.Start(ctx)
	defer dbHealth.Stop()

	senders := []alerts.Sender{alerts.LogSender{}}
	if cfg.AlertWebhookURL != "" {
		senders = append(senders, alerts.NewWebhookSender(cfg.AlertWebhookURL, cfg.AlertWebhookSecret))
	}
	alertMgr := alerts.NewManager(alerts.Config{
		MinInterval:   cfg.AlertMinInterval,
		DownThreshold: cfg.DownThreshold,
	}, senders...)

	if cfg.EnableScheduler {
		sched := monitor.NewScheduler(monitor.Config{
			PollInterval: cfg.PollInterval,
			CheckTimeout: cfg.CheckTimeout,
			Concurrency:  cfg.CheckConcurrency,
			Policy:       monitor.Policy{DownThreshold: cfg.DownThreshold, UpThreshold: cfg.UpThreshold},
		}, monitor.Deps{
			Inventory: inv,
			Prober:    checker.NewTCPProber(cfg.CheckTimeout, ""),
			Store:     store,
			Writer:    hosts,
			Notifier:  alertMgr,
		})
		sched.Start(ctx)
		defer sched.Stop()
		log.Info().Dur("interval", cfg.PollInterval).Msg("Scheduler started")
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      newMux(dbHealth, inv, store),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Listener starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-errCh:
		return fmt.Errorf("listener failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Listener shutdown error")
	}
	return nil
}
