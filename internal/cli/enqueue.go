package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewEnqueueCommand creates the enqueue command, which hands work to the worker.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:       "enqueue <audit-purge|reports-warmup>",
		Short:     "Enqueue a background job",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"audit-purge", "reports-warmup"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, rootOpts, func(b *Backend) error {
				if b.Queue == nil {
					return fmt.Errorf("job queue not configured")
				}
				var (
					id  string
					err error
				)
				switch args[0] {
				case "audit-purge":
					id, err = b.Queue.EnqueueAuditPurge(cmd.Context(), days)
				case "reports-warmup":
					id, err = b.Queue.EnqueueReportsWarmup(cmd.Context())
				default:
					return fmt.Errorf("unknown job %q", args[0])
				}
				if err != nil {
					return err
				}
				out := map[string]string{"job": args[0], "task_id": id}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(out, func(w io.Writer) error {
					return line(w, "enqueued %s (%s)", args[0], id)
				})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention window for audit-purge")
	return cmd
}
