package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"linkwatch/app/internal/config"
	"linkwatch/app/internal/database"
	"linkwatch/app/internal/logging"
	"linkwatch/app/internal/models"
	"linkwatch/app/internal/pagination"
)

var (
	reportSince     time.Duration
	reportThreshold int
	reportPage      int
	reportPerPage   int
	hostName        string
)

var reportCmd = &cobra.Command{
	Use:   "report <host-id>",
	Short: "Print a downtime report and the latest check log for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd.Context(), func(ctx context.Context, cfg *config.Config, m *database.Manager) error {
			threshold := reportThreshold
			if threshold <= 0 {
				threshold = cfg.DownThreshold
			}
			return runReport(ctx, cmd.OutOrStdout(), database.NewReports(m), args[0], time.Now().Add(-reportSince), threshold,
				pagination.Params{Page: reportPage, PerPage: reportPerPage})
		})
	},
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage the monitored host inventory",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd.Context(), func(ctx context.Context, _ *config.Config, m *database.Manager) error {
			hosts, err := database.NewHosts(m).ListHosts(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), hosts)
		})
	},
}

var hostsAddCmd = &cobra.Command{
	Use:   "add <host-id> <address>",
	Short: "Add or update an inventory host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd.Context(), func(ctx context.Context, _ *config.Config, m *database.Manager) error {
			host := models.InventoryHost{ID: args[0], Address: args[1], DisplayName: hostName}
			if err := database.NewHosts(m).UpsertHost(ctx, host); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved host %s (%s)\n", host.ID, host.Address)
			return nil
		})
	},
}

func init() {
	reportCmd.Flags().DurationVar(&reportSince, "since", 24*time.Hour, "Report window")
	reportCmd.Flags().IntVar(&reportThreshold, "threshold", 0, "Failed checks per downtime event (default DOWN_THRESHOLD)")
	reportCmd.Flags().IntVar(&reportPage, "page", 1, "Check log page")
	reportCmd.Flags().IntVar(&reportPerPage, "per-page", pagination.DefaultPerPage, "Check log entries per page")

	hostsAddCmd.Flags().StringVar(&hostName, "name", "", "Display name")
	hostsCmd.AddCommand(hostsListCmd, hostsAddCmd)

	rootCmd.AddCommand(reportCmd, hostsCmd)
}

// withManager opens the database behind a connection manager for one command
func withManager(ctx context.Context, fn func(context.Context, *config.Config, *database.Manager) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "linkwatch"})

	db, err := database.Open(cfg.DBPath, cfg.DBMaxConnections)
	if err != nil {
		return err
	}
	defer db.Close()

	m := database.NewManager(database.NewSQLPool(db), database.Options{
		MaxConnections: cfg.DBMaxConnections,
		Retries:        cfg.DBQueryRetries,
	})
	defer func() {
		if err := m.CloseAll(); err != nil {
			log.Debug().Err(err).Msg("Error closing database connections")
		}
	}()

	return fn(ctx, cfg, m)
}

type reportOutput struct {
	Downtime database.DowntimeReport                   `json:"downtime"`
	CheckLog pagination.Page[database.CheckLogEntry] `json:"check_log"`
}

func runReport(ctx context.Context, out io.Writer, r *database.Reports, hostID string, since time.Time, threshold int, p pagination.Params) error {
	downtime, err := r.DowntimeReport(ctx, hostID, since, threshold)
	if err != nil {
		return fmt.Errorf("downtime report: %w", err)
	}
	page, err := r.CheckLogPage(ctx, hostID, p)
	if err != nil {
		return fmt.Errorf("check log: %w", err)
	}
	return writeJSON(out, reportOutput{Downtime: downtime, CheckLog: page})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
