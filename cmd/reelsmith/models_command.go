package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the generation models the daemon knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := ctx.client().Models(cmd.Context(), kind)
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models in the catalog")
				return nil
			}

			rows := make([][]string, 0, len(models))
			for _, m := range models {
				def := ""
				if m.Default {
					def = "*"
				}
				label := m.Label
				if label == "" {
					label = m.Name
				}
				rows = append(rows, []string{m.Name, m.Kind, label, def, truncate(m.Description, 50)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Kind", "Label", "Def", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignCenter, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by model kind (image, video, parse)")
	return cmd
}
