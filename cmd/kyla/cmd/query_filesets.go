package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oneconcern/kyla/internal/installer"
)

var queryFileSetsParams struct {
	namesOnly bool
}

var queryFileSetsCmd = &cobra.Command{
	Use:   "query-filesets <repo>",
	Short: "List the FileSets recorded in a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		log := newLogger()

		in := installer.New().WithLogger(log)
		if err := in.OpenTargetRepository(root); err != nil {
			return ioErrorf(err)
		}
		defer in.CloseRepository()

		infos, err := in.QueryFileSets()
		if err != nil {
			return ioErrorf(err)
		}

		for _, fs := range infos {
			if queryFileSetsParams.namesOnly {
				fmt.Fprintln(cmd.OutOrStdout(), fs.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", fs.UUID, fs.Name)
			}
		}
		return nil
	},
}

func init() {
	queryFileSetsCmd.Flags().BoolVarP(&queryFileSetsParams.namesOnly, "names-only", "n", false, "print only fileset names")
	rootCmd.AddCommand(queryFileSetsCmd)
}
