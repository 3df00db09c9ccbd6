package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newApproveCommand(ctx *commandContext) *cobra.Command {
	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve assets and scenes",
	}

	approveCmd.AddCommand(&cobra.Command{
		Use:   "asset <asset-id>",
		Short: "Approve a bible asset's reference image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().ApproveAsset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Asset approved")
			return nil
		},
	})

	approveCmd.AddCommand(&cobra.Command{
		Use:   "scene <scene-id>",
		Short: "Approve a scene's breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().ApproveScene(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Scene approved")
			return nil
		},
	})

	return approveCmd
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	rejectCmd := &cobra.Command{
		Use:   "reject",
		Short: "Send assets and scenes back for rework",
	}

	rejectCmd.AddCommand(&cobra.Command{
		Use:   "asset <asset-id>",
		Short: "Withdraw an asset approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().UnapproveAsset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Asset approval withdrawn")
			return nil
		},
	})

	rejectCmd.AddCommand(&cobra.Command{
		Use:   "scene <scene-id>",
		Short: "Reject a scene's breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().RejectScene(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Scene rejected")
			return nil
		},
	})

	return rejectCmd
}
