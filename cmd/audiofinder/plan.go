package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raygan/mam-audiofinder-sub001/internal/services/layout"
)

type planOutput struct {
	Detection layout.DetectionResult `json:"detection"`
	Plan      layout.Plan            `json:"plan"`
}

func newPlanCommand() *cobra.Command {
	var flatten bool

	cmd := &cobra.Command{
		Use:   "plan <files.json|->",
		Short: "Preview disc detection and the flatten plan for a file listing",
		Long: `Reads a JSON array of {"path", "size"} objects, as returned by the torrent
client, and prints the detected structure together with the rename plan.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open listing: %w", err)
				}
				defer f.Close()
				in = f
			}

			var entries []layout.FileEntry
			if err := json.NewDecoder(in).Decode(&entries); err != nil {
				return fmt.Errorf("decode listing: %w", err)
			}

			detection := layout.Detect(entries)
			if !cmd.Flags().Changed("flatten") {
				flatten = detection.RecommendedFlatten
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(planOutput{
				Detection: detection,
				Plan:      layout.BuildPlan(entries, flatten),
			})
		},
	}

	cmd.Flags().BoolVar(&flatten, "flatten", false, "Flatten disc folders into sequential parts (defaults to the detected recommendation)")
	return cmd
}
