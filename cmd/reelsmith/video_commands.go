package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Request and manage scene video jobs",
	}

	videoCmd.AddCommand(newVideoRequestCommand(ctx))
	videoCmd.AddCommand(newVideoCancelCommand(ctx))
	videoCmd.AddCommand(newVideoRegenerateCommand(ctx))

	return videoCmd
}

func newVideoRequestCommand(ctx *commandContext) *cobra.Command {
	var sourceVariantID string

	cmd := &cobra.Command{
		Use:   "request <scene-id>",
		Short: "Request a video for a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, err := ctx.client().RequestVideo(cmd.Context(), args[0], sourceVariantID)
			if err != nil {
				return err
			}
			printDecision(cmd, decision)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceVariantID, "from-variant", "", "Render from this variant instead of the selected image")
	return cmd
}

func newVideoCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <shot-id>",
		Short: "Cancel an in-flight video job and free its slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().CancelShot(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Video job cancelled")
			return nil
		},
	}
}

func newVideoRegenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <shot-id>",
		Short: "Resubmit a finished or failed video job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, err := ctx.client().RegenerateShot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printDecision(cmd, decision)
			return nil
		},
	}
}

func printDecision(cmd *cobra.Command, decision api.VideoDecision) {
	out := cmd.OutOrStdout()
	switch {
	case decision.Queued:
		fmt.Fprintln(out, "At capacity; the scene will be picked up by a later sweep")
	case decision.Shot != nil:
		fmt.Fprintln(out, renderStatusLine("Shot "+shortID(decision.Shot.ID),
			statusKindForStage(decision.Shot.Status), stageLabel(decision.Shot.Status), shouldColorize(out)))
	default:
		fmt.Fprintf(out, "State: %s\n", stageLabel(decision.State))
	}
}
