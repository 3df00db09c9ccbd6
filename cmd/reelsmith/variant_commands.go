package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
)

func newVariantCommand(ctx *commandContext) *cobra.Command {
	variantCmd := &cobra.Command{
		Use:   "variant",
		Short: "Generate, inspect, and select image variants",
	}

	variantCmd.AddCommand(newVariantListCommand(ctx))
	variantCmd.AddCommand(newVariantGenerateCommand(ctx))
	variantCmd.AddCommand(newVariantSelectCommand(ctx))
	variantCmd.AddCommand(newVariantRegenerateCommand(ctx))
	variantCmd.AddCommand(newVariantDeleteCommand(ctx))
	variantCmd.AddCommand(newVariantFixCommand(ctx))

	return variantCmd
}

func newVariantListCommand(ctx *commandContext) *cobra.Command {
	var shotType string

	cmd := &cobra.Command{
		Use:   "list <parent-id>",
		Short: "List variants for an asset or scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listed, err := ctx.client().Variants(cmd.Context(), args[0], shotType)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(listed) == 0 {
				fmt.Fprintln(out, "No variants.")
				return nil
			}

			rows := make([][]string, 0, len(listed))
			for _, v := range listed {
				selected := ""
				if v.Selected {
					selected = "*"
				}
				rows = append(rows, []string{
					shortID(v.ID),
					fmt.Sprintf("%d", v.GenerationOrder),
					v.Model,
					stageLabel(v.Status),
					selected,
					truncate(v.ImageURL, 48),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "#", "Model", "Status", "Sel", "Image"},
				rows, []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignCenter}))
			return nil
		},
	}

	cmd.Flags().StringVar(&shotType, "shot-type", "", "Filter by shot type")
	return cmd
}

func newVariantGenerateCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var shotType string
	var prompt string
	var models []string

	cmd := &cobra.Command{
		Use:   "generate <parent-id>",
		Short: "Fan out image generation across models",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := ctx.client().GenerateVariants(cmd.Context(), api.GenerateVariantsRequest{
				ParentKind: kind,
				ParentID:   args[0],
				ShotType:   shotType,
				Prompt:     prompt,
				Models:     models,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %d generation(s)\n", len(created))
			for _, v := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s (%s)\n", shortID(v.ID), v.Model, stageLabel(v.Status))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "character", "Parent kind (character|location|prop|scene_image)")
	cmd.Flags().StringVar(&shotType, "shot-type", "", "Shot type for scene images")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Override the generation prompt")
	cmd.Flags().StringSliceVar(&models, "model", nil, "Model names (default: catalog defaults)")
	return cmd
}

func newVariantSelectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "select <variant-id>",
		Short: "Select a variant as the canonical image for its parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variant, err := ctx.client().SelectVariant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (%s)\n", shortID(variant.ID), variant.Model)
			return nil
		},
	}
}

func newVariantRegenerateCommand(ctx *commandContext) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "regenerate <variant-id>",
		Short: "Create a successor variant from an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variant, err := ctx.client().RegenerateVariant(cmd.Context(), args[0], prompt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s (%s)\n", shortID(variant.ID), variant.Model)
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "Replacement prompt for the successor")
	return cmd
}

func newVariantDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <variant-id>",
		Short: "Delete a non-selected variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().DeleteVariant(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Variant deleted")
			return nil
		},
	}
}

func newVariantFixCommand(ctx *commandContext) *cobra.Command {
	var shotType string

	cmd := &cobra.Command{
		Use:   "fix-duplicates <parent-id>",
		Short: "Repair duplicate selections, keeping the most recent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repaired, err := ctx.client().FixDuplicates(cmd.Context(), args[0], shotType)
			if err != nil {
				return err
			}
			if repaired == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No duplicate selections found")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d duplicate selection(s)\n", repaired)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&shotType, "shot-type", "", "Shot type scope")
	return cmd
}
