package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-screenshot-crawler/internal/batch"
)

// newBulkCmd creates the 'bulk' subcommand, which crawls many domains.
func newBulkCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "bulk [domain...]",
		Short: "Captures every domain in the stored list",
		Long: `Crawls each domain given as an argument, or every domain in the stored
domain list when none are given. Runs execute worker.concurrency at a time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := opts.validate(appInstance.Config().Crawler.HardMaxLinks); err != nil {
				return err
			}
			devices, err := opts.resolveDevices(appInstance)
			if err != nil {
				return err
			}
			targets := args
			if len(targets) == 0 {
				targets, err = appInstance.Domains().List()
				if err != nil {
					return err
				}
			}
			reqs := batch.Plan(targets, devices, opts.maxLinks)
			if len(reqs) == 0 {
				return fmt.Errorf("no domains to capture; add some with 'domains add'")
			}
			return executeRuns(cmd.Context(), appInstance, reqs, cmd.OutOrStdout(), opts.asJSON)
		},
	}
	cmd.Flags().StringSliceVar(&opts.devices, "device", nil, "device profiles to capture (desktop, mobile, all); defaults to crawler.devices")
	cmd.Flags().IntVar(&opts.maxLinks, "max-links", 0, "maximum links to visit per run (0 uses crawler.max_links)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	return cmd
}
