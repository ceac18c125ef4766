package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"loft/internal/api"
	"loft/internal/asset"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect stored assets",
	}

	assetsCmd.AddCommand(newAssetsListCommand(ctx))
	assetsCmd.AddCommand(newAssetsShowCommand(ctx))
	return assetsCmd
}

func newAssetsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			assets, err := client.ListAssets(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(assets) == 0 {
				fmt.Fprintln(out, "No assets stored")
				return nil
			}

			rows := make([][]string, 0, len(assets))
			for _, a := range assets {
				rows = append(rows, []string{
					a.ID,
					a.OriginalFilename,
					string(a.MediaType),
					humanize.IBytes(uint64(a.SizeBytes)),
					fmt.Sprintf("%d", a.UsageCount),
					humanize.Time(a.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Filename", "Type", "Size", "Usages", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of assets to list (0 for all)")
	return cmd
}

func newAssetsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <asset-id>",
		Short: "Show one asset in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			a, err := client.GetAsset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAsset(cmd, a)
			return nil
		},
	}
}

func printAsset(cmd *cobra.Command, a *asset.Descriptor) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", a.ID)
	fmt.Fprintf(out, "Filename:    %s\n", a.OriginalFilename)
	fmt.Fprintf(out, "URL:         %s\n", a.URL)
	fmt.Fprintf(out, "Type:        %s (%s)\n", a.MediaType, humanize.IBytes(uint64(a.SizeBytes)))
	if a.Width > 0 && a.Height > 0 {
		fmt.Fprintf(out, "Dimensions:  %dx%d\n", a.Width, a.Height)
	}
	if a.DurationSeconds > 0 {
		fmt.Fprintf(out, "Duration:    %.1fs\n", a.DurationSeconds)
	}
	if a.Fingerprint != "" {
		fmt.Fprintf(out, "Fingerprint: %s\n", a.Fingerprint)
	}
	fmt.Fprintf(out, "Created:     %s\n", a.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Usages:      %d\n", a.UsageCount)
}

func newDeletionReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deletion-report <asset-id>...",
		Short: "Show which assets are still referenced before deleting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			report, err := client.DeletionReport(cmd.Context(), args)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(report.Entries))
			for _, entry := range report.Entries {
				rows = append(rows, []string{
					entry.AssetID,
					deletionVerdict(entry),
					fmt.Sprintf("%d", len(entry.Usage)),
					formatUsageList(entry.Usage),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Asset", "Verdict", "Usages", "Locations"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func deletionVerdict(entry api.DeletionReportEntry) string {
	switch {
	case !entry.Known:
		return "unknown asset"
	case len(entry.Usage) > 0:
		return "still in use"
	default:
		return "safe to delete"
	}
}

func formatUsageList(usage []asset.UsageLocation) string {
	if len(usage) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(usage))
	for _, loc := range usage {
		parts = append(parts, fmt.Sprintf("%s/%s/%s", loc.PropertyID, loc.ZoneID, loc.StepID))
	}
	return strings.Join(parts, ", ")
}
