package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-screenshot-crawler/internal/batch"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, which captures one site on
// each requested device.
func newCrawlCmd() *cobra.Command {
	var (
		opts  runOptions
		label string
	)
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Captures a site and its same-origin links",
		Long: `Opens the URL in headless Chrome, captures it, then captures up to
--max-links of the same-origin pages it links to. The crawl runs once per
device profile.`,
		Args: cobra.ExactArgs(1),
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
			label = strings.TrimSpace(label)
			if label != "" {
				if err := crawler.ValidateDomainLabel(label); err != nil {
					return fmt.Errorf("--label: %w", err)
				}
			}
			reqs := batch.Plan(args, devices, opts.maxLinks)
			for i := range reqs {
				reqs[i].DomainLabel = label
			}
			return executeRuns(cmd.Context(), appInstance, reqs, cmd.OutOrStdout(), opts.asJSON)
		},
	}
	cmd.Flags().StringSliceVar(&opts.devices, "device", nil, "device profiles to capture (desktop, mobile, all); defaults to crawler.devices")
	cmd.Flags().IntVar(&opts.maxLinks, "max-links", 0, "maximum links to visit per run (0 uses crawler.max_links)")
	cmd.Flags().StringVar(&label, "label", "", "directory name for the site (defaults to the host)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	return cmd
}
