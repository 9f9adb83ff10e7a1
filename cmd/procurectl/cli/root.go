package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/procurement/internal/masterdata"
)

// MigrationRunner applies schema migrations.
type MigrationRunner interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
	Close() error
}

// JobRunner enqueues and inspects background jobs.
type JobRunner interface {
	Trigger(ctx context.Context, name string, suppliers []string, asOf string) (string, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	Close() error
}

// CacheInvalidator drops cached master-data lookups.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, kind masterdata.Kind, key ...string) error
}

// Deps opens the resources each command needs. Factories run lazily so
// help output never touches the network.
type Deps struct {
	Migrator   func(ctx context.Context) (MigrationRunner, error)
	Jobs       func(ctx context.Context) (JobRunner, error)
	MasterData func(ctx context.Context) (CacheInvalidator, func() error, error)
}

// NewRootCommand assembles the procurectl command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "procurectl",
		Short:         "Operational helpers for the procurement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand(deps), newJobsCommand(deps), newMasterDataCommand(deps))
	return root
}

func newMigrateCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	withMigrator := func(c *cobra.Command, fn func(MigrationRunner) error) error {
		m, err := deps.Migrator(c.Context())
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		return fn(m)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withMigrator(c, func(m MigrationRunner) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(c.OutOrStdout(), m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withMigrator(c, func(m MigrationRunner) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printVersion(c.OutOrStdout(), m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withMigrator(c, func(m MigrationRunner) error {
				return printVersion(c.OutOrStdout(), m)
			})
		},
	})
	return cmd
}

func printVersion(out io.Writer, m MigrationRunner) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "schema version %d dirty=%t\n", v, dirty)
	return err
}

func newJobsCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Trigger and inspect background jobs"}

	var suppliers []string
	var asOf string
	trigger := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue a job, currently exposure-refresh",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			runner, err := deps.Jobs(c.Context())
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()
			id, err := runner.Trigger(c.Context(), args[0], suppliers, asOf)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.OutOrStdout(), "enqueued %s id=%s\n", args[0], id)
			return err
		},
	}
	trigger.Flags().StringSliceVar(&suppliers, "supplier", nil, "limit the refresh to these suppliers")
	trigger.Flags().StringVar(&asOf, "as-of", "", "reference date YYYY-MM-DD")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print default queue statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			runner, err := deps.Jobs(c.Context())
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()
			stats, err := runner.InspectQueue(c.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	cmd.AddCommand(trigger, inspect)
	return cmd
}

func newMasterDataCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{Use: "masterdata", Short: "Master-data cache maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate <kind> <key>...",
		Short: "Drop a cached existence lookup",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			kind, err := masterdata.ParseKind(args[0])
			if err != nil {
				return err
			}
			inv, closeFn, err := deps.MasterData(c.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			if err := inv.Invalidate(c.Context(), kind, args[1:]...); err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.OutOrStdout(), "invalidated %s %v\n", kind, args[1:])
			return err
		},
	})
	return cmd
}
