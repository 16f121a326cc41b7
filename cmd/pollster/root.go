package main

import (
	"context"
	"fmt"
	"time"

	"github.com/NeCTAR-RC/reporting-pollster/internal/clock"
	"github.com/NeCTAR-RC/reporting-pollster/internal/config"
	"github.com/NeCTAR-RC/reporting-pollster/internal/logger"
	"github.com/NeCTAR-RC/reporting-pollster/internal/migration"
	"github.com/NeCTAR-RC/reporting-pollster/internal/orchestrator"
	"github.com/NeCTAR-RC/reporting-pollster/internal/source"
	"github.com/NeCTAR-RC/reporting-pollster/internal/target"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// lastUpdatedLayout is the date format accepted by --last-updated.
const lastUpdatedLayout = "20060102"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pollster",
		Short:         "Incremental OpenStack reporting database updater",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newUpdateCmd())
	return root
}

// updateFlags is the update command's invocation surface. Without --full-run
// a run is a dry run: queries are logged and nothing is written.
type updateFlags struct {
	configFile  string
	fullRun     bool
	forceUpdate bool
	lastUpdated string
	lastDay     bool
	lastWeek    bool
	lastMonth   bool
	tables      []string
	debug       bool
}

func (f updateFlags) options() (orchestrator.Options, error) {
	opts := orchestrator.Options{
		DryRun:      !f.fullRun,
		ForceUpdate: f.forceUpdate,
		Tables:      f.tables,
		LastDay:     f.lastDay,
		LastWeek:    f.lastWeek,
		LastMonth:   f.lastMonth,
	}
	if f.lastUpdated != "" {
		t, err := time.Parse(lastUpdatedLayout, f.lastUpdated)
		if err != nil {
			return orchestrator.Options{}, fmt.Errorf("invalid --last-updated %q: %w", f.lastUpdated, err)
		}
		opts.LastUpdated = &t
	}
	return opts, nil
}

func newUpdateCmd() *cobra.Command {
	var flags updateFlags

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run one synchronization pass against the reporting database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return err
			}
			if flags.debug {
				cfg.LogLevel = "debug"
			}

			opts, err := flags.options()
			if err != nil {
				return err
			}
			return runUpdate(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config-file", "c", "", "path to the configuration file")
	cmd.Flags().BoolVarP(&flags.fullRun, "full-run", "f", false, "execute a full query/update run")
	cmd.Flags().BoolVar(&flags.forceUpdate, "force-update", false, "ignore last update time and force a full update")
	cmd.Flags().StringVar(&flags.lastUpdated, "last-updated", "", "process records updated since this date (YYYYMMDD)")
	cmd.Flags().BoolVar(&flags.lastDay, "last-day", false, "process records updated in the last day")
	cmd.Flags().BoolVar(&flags.lastWeek, "last-week", false, "process records updated in the last week")
	cmd.Flags().BoolVar(&flags.lastMonth, "last-month", false, "process records updated in the last month")
	cmd.Flags().StringSliceVarP(&flags.tables, "tables", "t", nil, "limit the run to these tables")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	return cmd
}

// runUpdate assembles the application graph, runs the migrations on startup
// via the migration module, performs one update run and tears everything
// down.
func runUpdate(ctx context.Context, cfg config.Config, opts orchestrator.Options) error {
	var runner *orchestrator.Runner
	app := fx.New(
		fx.Supply(cfg),
		logger.Module,
		clock.Module,
		source.Module,
		target.Module,
		migration.Module,
		orchestrator.Module,
		fx.Populate(&runner),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	_, runErr := runner.Run(ctx, opts)

	stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
