package cmd

import (
	"context"
	"fmt"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/oneconcern/kyla/internal/builder"
)

var buildParams struct {
	sourceDirectory string
}

var buildCmd = &cobra.Command{
	Use:   "build <descriptor> <out-dir>",
	Short: "Build a repository from a descriptor and a source tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		descriptorPath, outDir := args[0], args[1]
		log := newLogger()

		var lastStage builder.Stage
		err := builder.Build(context.Background(), builder.Options{
			DescriptorPath: descriptorPath,
			SourceDir:      buildParams.sourceDirectory,
			OutDir:         outDir,
			Log:            log,
			Progress: func(e builder.ProgressEvent) {
				if e.Stage != lastStage {
					lastStage = e.Stage
					fmt.Fprintf(cmd.OutOrStdout(), "stage: %s\n", e.Stage)
				}
				if e.Path != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d/%d)\n", e.Path, e.Current, e.Total)
				} else if e.Stage == builder.StageWrite && e.Size > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %s (%d/%d)\n", e.Digest, units.BytesSize(float64(e.Size)), e.Current, e.Total)
				}
			},
		})
		if err != nil {
			return ioErrorf(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "build complete")
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildParams.sourceDirectory, "source-directory", ".", "directory source paths in the descriptor are relative to")
	rootCmd.AddCommand(buildCmd)
}
