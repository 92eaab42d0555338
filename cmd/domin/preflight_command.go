package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"domin/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, disk space, binaries and the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			results := preflight.RunAll(cmd.Context(), ctx.configValue())
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderPreflight(results, shouldColorize(out)))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}

func renderPreflight(results []preflight.Result, colorize bool) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, status(r.Passed, colorize), r.Detail})
	}
	return renderTable([]column{{title: "Check"}, {title: "Status"}, {title: "Detail"}}, rows)
}
