package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Reelsmith Daemon", colorize) {
				fmt.Fprintln(out, line)
			}

			runKind := statusOK
			runMsg := fmt.Sprintf("pid %d", status.PID)
			if !status.Running {
				runKind = statusWarn
				runMsg = "not running"
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", runKind, runMsg, colorize))

			dbKind := statusOK
			dbMsg := fmt.Sprintf("%d project(s)", status.Database.Projects)
			switch {
			case status.Database.Error != "":
				dbKind = statusError
				dbMsg = status.Database.Error
			case !status.Database.Readable:
				dbKind = statusError
				dbMsg = "not readable"
			case !status.Database.IntegrityCheck:
				dbKind = statusWarn
				dbMsg = "integrity check failed"
			}
			fmt.Fprintln(out, renderStatusLine("Database", dbKind, dbMsg, colorize))
			fmt.Fprintln(out, renderStatusLine("Video jobs", statusInfo,
				fmt.Sprintf("%d generating", status.GeneratingShots), colorize))
			return nil
		},
	}
}
