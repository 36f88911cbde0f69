package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/installer"
	"github.com/oneconcern/kyla/internal/repo"
)

var repairCmd = &cobra.Command{
	Use:   "repair <source> <target>",
	Short: "Repair a target repository's faulty objects from a source repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, target := args[0], args[1]
		log := newLogger()

		in := installer.New().WithLogger(log)
		if err := in.OpenSourceRepository(source); err != nil {
			return ioErrorf(err)
		}
		if err := in.OpenTargetRepository(target); err != nil {
			return ioErrorf(err)
		}
		defer in.CloseRepository()

		if err := in.Execute(context.Background(), installer.Repair, target, nil); err != nil {
			return ioErrorf(err)
		}

		allOK := true
		in.SetValidationCallback(func(rec repo.ValidationRecord) error {
			if rec.Kind != errs.Ok {
				allOK = false
			}
			return nil
		})
		if err := in.Execute(context.Background(), installer.Verify, target, nil); err != nil {
			return ioErrorf(err)
		}

		if !allOK {
			return validationFaultErr()
		}
		fmt.Fprintln(cmd.OutOrStdout(), "repair complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)
}
