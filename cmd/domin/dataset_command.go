package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"domin/internal/config"
	"domin/internal/dataset"
)

func newDatasetCommand(ctx *commandContext) *cobra.Command {
	datasetCmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect recorded datasets",
	}
	datasetCmd.AddCommand(newDatasetInfoCommand(ctx))
	return datasetCmd
}

func newDatasetInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info [root]",
		Short: "Summarize a dataset (defaults to paths.dataset_root)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ctx.configValue().Paths.DatasetRoot
			if len(args) == 1 {
				expanded, err := config.ExpandPath(args[0])
				if err != nil {
					return fmt.Errorf("resolve dataset path: %w", err)
				}
				root = expanded
			}
			summary, err := dataset.Inspect(cmd.Context(), root)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, summary)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderSummary(s dataset.Summary) string {
	overview := renderTable([]column{{title: "Field"}, {title: "Value"}}, [][]string{
		{"Root", s.Root},
		{"Repo", s.RepoID},
		{"Robot type", s.Meta.RobotType},
		{"FPS", strconv.Itoa(s.Meta.FPS)},
		{"Video", yesNo(s.Meta.Video)},
		{"Episodes", humanize.Comma(int64(s.Episodes))},
		{"Frames", humanize.Comma(int64(s.Frames))},
		{"Tasks", strings.Join(s.Tasks, "; ")},
		{"Attempts", humanize.Comma(int64(s.Attempts))},
		{"Success rate", formatRate(s.SuccessRate())},
	})

	keys := make([]string, 0, len(s.Meta.Features))
	for key := range s.Meta.Features {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	featureRows := make([][]string, 0, len(keys))
	for _, key := range keys {
		f := s.Meta.Features[key]
		featureRows = append(featureRows, []string{key, f.DType, formatShape(f.Shape), strconv.Itoa(len(f.Names))})
	}
	features := renderTable([]column{{title: "Feature"}, {title: "DType"}, {title: "Shape"}, {title: "Names", right: true}}, featureRows)

	parts := []string{overview, features}
	if len(s.Labels) > 0 {
		labelRows := make([][]string, 0, len(s.Labels))
		for _, lc := range s.Labels {
			labelRows = append(labelRows, []string{lc.Label, strconv.Itoa(lc.Count)})
		}
		parts = append(parts, renderTable([]column{{title: "Outcome"}, {title: "Count", right: true}}, labelRows))
	}
	return strings.Join(parts, "\n")
}

func formatShape(shape []int) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(dims, ", ") + ")"
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 1, 64) + "%"
}
