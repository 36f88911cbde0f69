package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oneconcern/kyla/internal/installer"
)

var installCmd = &cobra.Command{
	Use:   "install <source> <target> <fileset-uuid>...",
	Short: "Deploy FileSets from source into a fresh target repository",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, target := args[0], args[1]
		fileSetIDs, err := parseFileSetIDs(args[2:])
		if err != nil {
			return err
		}
		log := newLogger()

		in := installer.New().WithLogger(log)
		if err := in.OpenSourceRepository(source); err != nil {
			return ioErrorf(err)
		}
		defer in.CloseRepository()

		in.SetProgressCallback(func(msg string) {
			fmt.Fprintln(cmd.OutOrStdout(), msg)
		})

		desired := &installer.DesiredState{FileSetIDs: fileSetIDs}
		if err := in.Execute(context.Background(), installer.Install, target, desired); err != nil {
			return ioErrorf(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "install complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
