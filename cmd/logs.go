package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-screenshot-crawler/internal/audit"
)

// newLogsCmd creates the 'logs' subcommand, which prints the tail of the
// audit log.
func newLogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the most recent audit log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if lines <= 0 {
				return fmt.Errorf("--lines must be positive")
			}
			tail, err := audit.TailFile(appInstance.Config().Audit.Path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", audit.DefaultTail, "number of entries to print")
	return cmd
}
