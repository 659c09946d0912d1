// Package cli implements refeitorioctl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/refeitorio/refeitorio/internal/attendance"
	"github.com/refeitorio/refeitorio/internal/settings"
)

// RootOptions holds global flags and the backend factory for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Connect opens the backend; the returned func releases it.
	Connect func(ctx context.Context) (*Backend, func(), error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Importer loads an attendance sheet.
type Importer interface {
	ImportReader(ctx context.Context, r io.Reader) (attendance.Summary, error)
}

// SettingsStore reads and writes configuration entries.
type SettingsStore interface {
	Entries(ctx context.Context) ([]settings.Entry, error)
	Update(ctx context.Context, values map[string]string) ([]string, error)
}

// Purger removes old audit entries.
type Purger interface {
	Purge(ctx context.Context, days int) (int64, error)
}

// Enqueuer schedules background jobs.
type Enqueuer interface {
	EnqueueAuditPurge(ctx context.Context, days int) (string, error)
	EnqueueReportsWarmup(ctx context.Context) (string, error)
}

// Backend groups the services reachable from the CLI.
type Backend struct {
	Importer      Importer
	Settings      SettingsStore
	Audit         Purger
	Queue         Enqueuer
	RetentionDays int
}

// NewRootCommand creates the root command. connect is used by every
// subcommand that needs the database.
func NewRootCommand(connect func(ctx context.Context) (*Backend, func(), error)) *cobra.Command {
	opts := &RootOptions{Connect: connect}

	cmd := &cobra.Command{
		Use:   "refeitorioctl",
		Short: "Operate the cafeteria attendance service",
		Long:  "Import attendance sheets, inspect configuration and run maintenance jobs against the cafeteria ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))

	return cmd
}

// withBackend opens the backend for the duration of fn.
func withBackend(cmd *cobra.Command, opts *RootOptions, fn func(*Backend) error) error {
	if opts.Connect == nil {
		return fmt.Errorf("no backend configured")
	}
	backend, release, err := opts.Connect(cmd.Context())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if release != nil {
		defer release()
	}
	return fn(backend)
}
