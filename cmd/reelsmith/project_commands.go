package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect and manage projects",
	}

	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectDeleteCommand(ctx))
	projectCmd.AddCommand(newProjectSkipBibleCommand(ctx))
	projectCmd.AddCommand(newProjectSweepCommand(ctx))

	return projectCmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	var includeFailed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := ctx.client().ListProjects(cmd.Context(), includeFailed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintln(out, "No projects.")
				return nil
			}

			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				rows = append(rows, []string{
					shortID(p.ID),
					truncate(p.Title, 40),
					stageLabel(p.Status),
					boolLabel(p.AutoMode, "auto", "manual"),
					p.UpdatedAt,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Stage", "Mode", "Updated"},
				rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeFailed, "failed", false, "Include failed projects")
	return cmd
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its assets, scenes, and reel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := ctx.client().Project(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderProjectDetail(cmd, detail)
			return nil
		},
	}
}

func renderProjectDetail(cmd *cobra.Command, detail api.ProjectDetail) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader(detail.Title, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Stage", statusInfo, stageLabel(detail.Status), colorize))
	if detail.Logline != "" {
		fmt.Fprintln(out, renderStatusLine("Logline", statusInfo, detail.Logline, colorize))
	}
	if detail.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, detail.ErrorMessage, colorize))
	}

	if len(detail.Assets) > 0 {
		rows := make([][]string, 0, len(detail.Assets))
		for _, a := range detail.Assets {
			rows = append(rows, []string{
				shortID(a.ID), a.Kind, truncate(a.Name, 28), stageLabel(a.ImageStatus),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Bible assets:")
		fmt.Fprintln(out, renderTable([]string{"ID", "Kind", "Name", "Image"}, rows, nil))
	}

	if len(detail.Scenes) > 0 {
		rows := make([][]string, 0, len(detail.Scenes))
		for _, s := range detail.Scenes {
			video := "-"
			for _, shot := range s.Shots {
				video = stageLabel(shot.Status)
			}
			rows = append(rows, []string{
				shortID(s.ID),
				fmt.Sprintf("%d", s.SceneNumber),
				truncate(s.Title, 32),
				stageLabel(s.ValidationStatus),
				video,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Scenes:")
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "#", "Title", "Review", "Video"},
			rows, []columnAlignment{alignLeft, alignRight}))
	}

	if detail.Reel != nil {
		fmt.Fprintln(out)
		msg := stageLabel(detail.Reel.Status)
		switch detail.Reel.Status {
		case "ready":
			msg = detail.Reel.VideoURL
		case "failed":
			msg = detail.Reel.ErrorMessage
		}
		fmt.Fprintln(out, renderStatusLine("Final reel", statusKindForStage(detail.Reel.Status), msg, colorize))
	}
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var logline string
	var sourceFile string
	var autoMode bool

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a project from a source document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(sourceFile) == "" {
				return errors.New("--source is required")
			}
			source, err := os.ReadFile(sourceFile)
			if err != nil {
				return fmt.Errorf("read source document: %w", err)
			}

			project, err := ctx.client().CreateProject(cmd.Context(), api.CreateProjectRequest{
				Title:      args[0],
				Logline:    logline,
				SourceText: string(source),
				AutoMode:   autoMode,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", project.ID, stageLabel(project.Status))
			return nil
		},
	}

	cmd.Flags().StringVar(&logline, "logline", "", "One-line summary")
	cmd.Flags().StringVar(&sourceFile, "source", "", "Path to the source document")
	cmd.Flags().BoolVar(&autoMode, "auto", false, "Run approvals automatically")
	return cmd
}

func newProjectDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Project deleted")
			return nil
		},
	}
}

func newProjectSkipBibleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "skip-bible <project-id>",
		Short: "Approve all bible assets without images and advance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("project id is required")
			}
			if err := ctx.client().SkipBibleImages(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Bible review skipped; project advanced to scene validation")
			return nil
		},
	}
}

func newProjectSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <project-id>",
		Short: "Admit pending video work up to the concurrency cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := ctx.client().Sweep(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admitted %d video job(s)\n", result.Admitted)
			return nil
		},
	}
}

func boolLabel(value bool, yes, no string) string {
	if value {
		return yes
	}
	return no
}
