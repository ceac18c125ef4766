package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loft/internal/asset"
)

func newUsageCommand(ctx *commandContext) *cobra.Command {
	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "Maintain asset usage locations",
	}

	usageCmd.AddCommand(newUsageAttachCommand(ctx))
	usageCmd.AddCommand(newUsageDetachCommand(ctx))
	return usageCmd
}

func usageLocationFlags(cmd *cobra.Command, propertyID, zoneID, stepID *string) {
	cmd.Flags().StringVar(propertyID, "property", "", "Property referencing the asset")
	cmd.Flags().StringVar(zoneID, "zone", "", "Zone referencing the asset")
	cmd.Flags().StringVar(stepID, "step", "", "Workflow step referencing the asset")
	_ = cmd.MarkFlagRequired("property")
	_ = cmd.MarkFlagRequired("zone")
	_ = cmd.MarkFlagRequired("step")
}

func newUsageAttachCommand(ctx *commandContext) *cobra.Command {
	var propertyID, zoneID, stepID string

	cmd := &cobra.Command{
		Use:   "attach <asset-id>",
		Short: "Record a usage location for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			loc := asset.UsageLocation{PropertyID: propertyID, ZoneID: zoneID, StepID: stepID}
			resp, err := client.AttachUsage(cmd.Context(), args[0], loc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Asset %s now has %d usage(s)\n", resp.AssetID, resp.UsageCount)
			return nil
		},
	}

	usageLocationFlags(cmd, &propertyID, &zoneID, &stepID)
	return cmd
}

func newUsageDetachCommand(ctx *commandContext) *cobra.Command {
	var propertyID, zoneID, stepID string

	cmd := &cobra.Command{
		Use:   "detach <asset-id>",
		Short: "Remove a usage location from an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			loc := asset.UsageLocation{PropertyID: propertyID, ZoneID: zoneID, StepID: stepID}
			resp, err := client.DetachUsage(cmd.Context(), args[0], loc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Asset %s now has %d usage(s)\n", resp.AssetID, resp.UsageCount)
			return nil
		},
	}

	usageLocationFlags(cmd, &propertyID, &zoneID, &stepID)
	return cmd
}
