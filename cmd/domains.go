package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDomainsCmd creates the 'domains' command group that edits the stored
// bulk domain list.
func newDomainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Manages the stored domain list used by bulk crawls",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Prints the stored domains",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				list, err := appInstance.Domains().List()
				if err != nil {
					return err
				}
				for _, d := range list {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <domain>...",
			Short: "Adds domains to the list",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				added, err := appInstance.Domains().Add(args...)
				if err != nil {
					return err
				}
				if len(added) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing added; every domain is already listed")
					return nil
				}
				for _, d := range added {
					fmt.Fprintln(cmd.OutOrStdout(), "added", d)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "remove <domain>",
			Aliases: []string{"rm"},
			Short:   "Removes a domain from the list",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				if err := appInstance.Domains().Remove(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "removed", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <old> <new>",
			Short: "Replaces a domain in place",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				if err := appInstance.Domains().Rename(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], args[1])
				return nil
			},
		},
	)
	return cmd
}
