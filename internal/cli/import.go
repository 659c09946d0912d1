package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/refeitorio/refeitorio/internal/attendance"
)

// NewImportCommand creates the import command. The source file is left in place.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <sheet.csv|sheet.xlsx>",
		Short: "Import an attendance sheet",
		Long: `Import an attendance export into the ledger.

The whole sheet is applied in one transaction: a storage failure leaves the
ledger untouched. Rows with missing fields are skipped and counted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open sheet: %w", err)
			}
			defer f.Close()
			return withBackend(cmd, rootOpts, func(b *Backend) error {
				summary, err := b.Importer.ImportReader(cmd.Context(), f)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(summary, func(w io.Writer) error {
					return writeSummary(w, summary, rootOpts.Verbose)
				})
			})
		},
	}
}

func writeSummary(w io.Writer, s attendance.Summary, verbose bool) error {
	if err := line(w, "%s", s.Message()); err != nil {
		return err
	}
	if !verbose {
		return nil
	}
	if err := line(w, "batch %s: %d presences, %d skipped, %d rejected rows", s.BatchID, s.Presences, s.Skipped, s.RowErrors); err != nil {
		return err
	}
	if len(s.Blocked) > 0 {
		return line(w, "blocked: %s", strings.Join(s.Blocked, ", "))
	}
	return nil
}
