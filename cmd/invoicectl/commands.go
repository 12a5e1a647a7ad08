package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-invoice/internal/app"
	"github.com/noah-isme/backend-invoice/internal/auth"
	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/store/pgstore"
	"github.com/noah-isme/backend-invoice/internal/tasks"
)

type loader func() (*config.Config, error)

func newRootCmd(load loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Maintenance commands for the invoice service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(load),
		newRecomputeCmd(load),
		newMarkOverdueCmd(load),
		newNextNumberCmd(load),
		newSeedAdminCmd(load),
	)
	return root
}

func cliLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).Level(lvl).With().Timestamp().Logger()
}

// withDeps loads configuration, connects and hands the wiring to fn.
func withDeps(cmd *cobra.Command, load loader, fn func(ctx context.Context, deps *app.Dependencies) error) error {
	cfg, err := load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cliLogger(cmd.ErrOrStderr(), cfg.Obs.LogLevel)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.New(connectCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("close dependencies")
		}
	}()
	return fn(ctx, deps)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd(load loader) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back one step of) the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.StoreDriver != config.DriverPostgres {
				return fmt.Errorf("migrate only applies to the %s driver, STORE_DRIVER is %q", config.DriverPostgres, cfg.StoreDriver)
			}
			if err := pgstore.Migrate(cfg.DatabaseURL, down); err != nil {
				return err
			}
			direction := "up"
			if down {
				direction = "down"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: ok\n", direction)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}

func newRecomputeCmd(load loader) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Re-run the pricing pipeline over stored invoices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, load, func(ctx context.Context, deps *app.Dependencies) error {
				res, err := deps.Invoices.Recompute(ctx, dryRun)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), struct {
					DryRun  bool `json:"dryRun"`
					Scanned int  `json:"scanned"`
					Updated int  `json:"updated"`
					Failed  int  `json:"failed"`
				}{dryRun, res.Scanned, res.Updated, res.Failed})
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without writing")
	return cmd
}

func newMarkOverdueCmd(load loader) *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "mark-overdue",
		Short: "Flag pending invoices past their due date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, load, func(ctx context.Context, deps *app.Dependencies) error {
				if enqueue {
					if deps.TaskClient == nil {
						return errors.New("--enqueue needs REDIS_URL")
					}
					info, err := tasks.EnqueueMarkOverdue(ctx, deps.TaskClient, time.Minute)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s\n", info.ID, info.Queue)
					return nil
				}
				n, err := deps.Invoices.MarkOverdue(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"marked": n})
			})
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "hand the sweep to the worker instead of running it here")
	return cmd
}

func newNextNumberCmd(load loader) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "next-number",
		Short: "Print the invoice number the next create would receive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at := time.Now().UTC()
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				at = parsed
			}
			return withDeps(cmd, load, func(ctx context.Context, deps *app.Dependencies) error {
				number, err := deps.Invoices.NextNumber(ctx, at)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), number)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "issue date (YYYY-MM-DD), defaults to today")
	return cmd
}

func newSeedAdminCmd(load loader) *cobra.Command {
	var in auth.RegisterInput
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the admin account when none exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, load, func(ctx context.Context, deps *app.Dependencies) error {
				exists, err := deps.Auth.AdminExists(ctx)
				if err != nil {
					return err
				}
				if exists {
					fmt.Fprintln(cmd.OutOrStdout(), "admin already exists, nothing to do")
					return nil
				}
				user, err := deps.Auth.Register(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&in.Password, "password", "", "admin password")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
