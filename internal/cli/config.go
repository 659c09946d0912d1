package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the block threshold and meal prices",
	}
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	cmd.AddCommand(newConfigSetCommand(rootOpts))
	return cmd
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List configuration entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, rootOpts, func(b *Backend) error {
				entries, err := b.Settings.Entries(cmd.Context())
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(entries, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "KEY\tVALUE\tDESCRIPTION")
					for _, e := range entries {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, e.Value, e.Description)
					}
					return tw.Flush()
				})
			})
		},
	}
}

func newConfigSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key=value>...",
		Short: "Update configuration entries",
		Long:  "Update one or more entries, e.g. `config set block_threshold=4 price_lunch=9.00`. Unknown keys are ignored.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args)
			if err != nil {
				return err
			}
			return withBackend(cmd, rootOpts, func(b *Backend) error {
				updated, err := b.Settings.Update(cmd.Context(), values)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(map[string][]string{"updated": updated}, func(w io.Writer) error {
					if len(updated) == 0 {
						return line(w, "nothing updated")
					}
					return line(w, "updated: %s", strings.Join(updated, ", "))
				})
			})
		},
	}
}

func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: want key=value", arg)
		}
		values[key] = strings.TrimSpace(value)
	}
	return values, nil
}
