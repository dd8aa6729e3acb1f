package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-screenshot-crawler/internal/artifact"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// newGalleryCmd creates the 'gallery' subcommand, which lists stored
// screenshots.
func newGalleryCmd() *cobra.Command {
	var (
		filter artifact.Filter
		device string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Lists captured screenshots",
		Long: `Lists the screenshots under artifacts.root, optionally narrowed by capture
date (YYYY-MM-DD, UTC), domain and device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if device != "" {
				profile, err := crawler.Profile(crawler.DeviceName(device))
				if err != nil {
					return err
				}
				filter.Device = profile.Name
			}
			entries, err := appInstance.Artifacts().Find(filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "no screenshots found")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOMAIN\tDEVICE\tCAPTURED\tSIZE\tPATH")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					e.Domain, e.Device, e.ModTime.UTC().Format("2006-01-02 15:04:05"), e.Size, e.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Date, "date", "", "capture day as YYYY-MM-DD")
	cmd.Flags().StringVar(&filter.Domain, "domain", "", "domain or directory label")
	cmd.Flags().StringVar(&device, "device", "", "device profile (desktop or mobile)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}
