package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Maintain the audit log",
	}

	var days int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, rootOpts, func(b *Backend) error {
				window := days
				if window <= 0 {
					window = b.RetentionDays
				}
				removed, err := b.Audit.Purge(cmd.Context(), window)
				if err != nil {
					return err
				}
				out := map[string]int64{"removed": removed, "retention_days": int64(window)}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(out, func(w io.Writer) error {
					return line(w, "removed %d entries older than %d days", removed, window)
				})
			})
		},
	}
	purge.Flags().IntVar(&days, "days", 0, "retention window in days (default from AUDIT_RETENTION_DAYS)")
	cmd.AddCommand(purge)
	return cmd
}
