package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"medirate_alerts/internal/domain/cycle"
	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/domain/record"
	"medirate_alerts/internal/infra/api"
	idb "medirate_alerts/internal/infra/database"
	"medirate_alerts/internal/infra/logger"
	"medirate_alerts/internal/infra/scheduler"
	"medirate_alerts/internal/infra/telegram"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// errCycleFailed marks a cycle that ran but could not reach a feed or the store.
var errCycleFailed = errors.New("cycle finished with errors")

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "alertsync",
		Short: "Medicaid bill and provider alert reconciliation",
		Long: `alertsync reconciles the Medicaid bill and provider alert exports into the
store, flags what is new, and emails each subscriber a digest of the new records
matching their states and service lines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newCycleCommand(),
		newReconcileCommand(),
		newNotifyCommand(),
		newNewRecordsCommand(),
		newMigrateCommand(),
		newCheckCommand(),
	)
	return root
}

func newServeCommand() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApplication()
			if err != nil {
				return err
			}
			defer a.Close()

			if migrateFirst {
				if err := migrate(a); err != nil {
					return err
				}
			}
			if err := a.cfg.RequireEmail(); err != nil {
				a.log.WithError(err).Warn("Digest delivery will fail until email is configured")
			}

			sched := scheduler.NewCycleScheduler(a.cycles, logger.Component("scheduler"), a.cfg.CronSpecCycle, a.cfg.CronSpecNotify)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			if a.bot != nil {
				botLog := logger.Component("telegram")
				telegram.Register(ctx, a.bot, telegram.NewAdminHandlers(a.admin, a.cycles, botLog), botLog)
				go a.bot.Start()
				defer a.bot.Stop()
				a.log.Info("Telegram bot started")
			}

			srv := &http.Server{
				Addr:              ":" + a.cfg.HTTPPort,
				Handler:           api.NewServer(api.NewHandler(a.cycles), a.cfg.APIAccessKey, logger.Component("api")),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			a.log.WithField("port", a.cfg.HTTPPort).Info("Application setup complete")

			select {
			case <-ctx.Done():
				a.log.Info("Shutting down application...")
			case err := <-errCh:
				return fmt.Errorf("http server failed: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func newCycleCommand() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Reconcile bills then provider alerts under one new-flag reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApplication()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.cycles.RunFullCycle(cmd.Context())
			if err := reportCycle(cmd.OutOrStdout(), res, err); err != nil {
				return err
			}
			if !notify {
				return nil
			}
			if err := a.cfg.RequireEmail(); err != nil {
				return err
			}
			report, err := a.cycles.Dispatch(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "dispatch digests after a successful cycle")
	return cmd
}

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "reconcile bills|alerts",
		Short:     "Run a cycle over a single feed",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bills", "alerts"},
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := record.ParseSource(args[0])
			if err != nil {
				return err
			}
			a, err := newApplication()
			if err != nil {
				return err
			}
			defer a.Close()

			run := a.cycles.RunBillReconciliation
			if src == record.SourceProviderAlert {
				run = a.cycles.RunAlertReconciliation
			}
			res, err := run(cmd.Context())
			return reportCycle(cmd.OutOrStdout(), res, err)
		},
	}
}

func newNotifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Email digests of the records flagged new by the last cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApplication()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.RequireEmail(); err != nil {
				return err
			}

			report, err := a.cycles.Dispatch(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newNewRecordsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "List the records flagged new by the last cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApplication()
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.cycles.FetchNewRecords(cmd.Context())
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			version, dirty, err := idb.RunMigrations(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the store and every feed export are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApplication()
			if err != nil {
				return err
			}
			defer a.Close()

			status := a.cycles.CheckConnections(cmd.Context())
			w := cmd.OutOrStdout()
			if status.StoreErr != nil {
				fmt.Fprintf(w, "store: %v\n", status.StoreErr)
			} else {
				fmt.Fprintln(w, "store: ok")
			}
			for _, f := range status.Feeds {
				if f.Err != nil {
					fmt.Fprintf(w, "%s: %v\n", f.Source, f.Err)
					continue
				}
				fmt.Fprintf(w, "%s: %s\n", f.Source, f.File)
			}
			if !status.OK() {
				return errors.New("connection check failed")
			}
			return nil
		},
	}
}

func migrate(a *application) error {
	version, dirty, err := idb.RunMigrations(a.db)
	if err != nil {
		return err
	}
	a.log.WithField("version", version).WithField("dirty", dirty).Info("Database migrations applied")
	return nil
}

// reportCycle prints the summary of a finished cycle and turns a hard failure into
// a non-zero exit.
func reportCycle(w io.Writer, res *cycle.Result, err error) error {
	if res == nil {
		return err
	}
	fmt.Fprintln(w, res.Summary())
	if res.HardFailure() {
		return errCycleFailed
	}
	return nil
}

func printReport(w io.Writer, report *notification.Report) {
	fmt.Fprintf(w, "New records: %d, subscribers: %d, excluded: %d\n",
		report.NewRecords, report.Subscribers, report.Excluded)
	for _, d := range report.Deliveries {
		if d.Err != nil {
			fmt.Fprintf(w, "  %s %s: %v\n", d.Status, d.Email, d.Err)
		}
	}
	fmt.Fprintf(w, "Digests sent: %d, failed: %d\n", report.Sent(), report.Failed())
}

func printRecords(w io.Writer, recs []*record.Record) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No new records.")
		return err
	}
	config := tablewriter.Config{}
	config.Header.Alignment = tw.CellAlignment{Global: tw.AlignLeft}
	config.Row.Alignment = tw.CellAlignment{Global: tw.AlignLeft}
	table := tablewriter.NewTable(w, tablewriter.WithConfig(config))
	table.Header("SOURCE", "KEY", "STATE", "TITLE", "SERVICE LINES")
	for _, r := range recs {
		row := []any{string(r.Source), r.NaturalKey, r.Jurisdiction, r.Title(), strings.Join(r.Categories.Labels(), ", ")}
		if err := table.Append(row...); err != nil {
			return fmt.Errorf("failed to add row %s: %w", r.NaturalKey, err)
		}
	}
	return table.Render()
}
