package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
)

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var (
		title       string
		description string
	)

	assembleCmd := &cobra.Command{
		Use:   "assemble <project-id>",
		Short: "Compose the final reel from the project's completed shots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.AssembleRequest{Title: title, Description: description}
			reel, err := ctx.client().Assemble(cmd.Context(), args[0], req, false)
			printReelOutcome(cmd, reel)
			return err
		},
	}

	assembleCmd.Flags().StringVar(&title, "title", "", "Published title (defaults to the project title)")
	assembleCmd.Flags().StringVar(&description, "description", "", "Published description")

	assembleCmd.AddCommand(newAssembleRetryCommand(ctx))
	assembleCmd.AddCommand(newAssembleOrderCommand(ctx))

	return assembleCmd
}

func newAssembleRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <project-id>",
		Short: "Re-run composition after a failed attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reel, err := ctx.client().Assemble(cmd.Context(), args[0], api.AssembleRequest{}, true)
			printReelOutcome(cmd, reel)
			return err
		},
	}
}

func newAssembleOrderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "order <project-id>",
		Short: "Preview the segments composition would use, in scene order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segments, err := ctx.client().AssemblyOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(segments) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No completed shots to assemble")
				return nil
			}

			rows := make([][]string, 0, len(segments))
			for i, seg := range segments {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					strconv.Itoa(seg.SceneNumber),
					shortID(seg.ShotID),
					formatDuration(seg.Duration),
					truncate(seg.URL, 60),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Scene", "Shot", "Duration", "Video"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func printReelOutcome(cmd *cobra.Command, reel api.Reel) {
	if reel.ID == "" {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Reel %s: %s\n", shortID(reel.ID), stageLabel(reel.Status))
	if reel.VideoURL != "" {
		fmt.Fprintf(out, "Video: %s\n", reel.VideoURL)
	}
	if reel.PublishedURL != "" {
		fmt.Fprintf(out, "Published: %s\n", reel.PublishedURL)
	}
	if reel.ErrorMessage != "" {
		fmt.Fprintf(out, "Error: %s\n", reel.ErrorMessage)
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return strconv.FormatFloat(seconds, 'f', 1, 64) + "s"
}
