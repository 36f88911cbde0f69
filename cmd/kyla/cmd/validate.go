package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/installer"
	"github.com/oneconcern/kyla/internal/repo"
)

var validateParams struct {
	verbose bool
	summary bool
}

var validateCmd = &cobra.Command{
	Use:   "validate <repo>",
	Short: "Validate a repository's objects against its catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		log := newLogger()

		in := installer.New().WithLogger(log)
		if err := in.OpenTargetRepository(root); err != nil {
			return ioErrorf(err)
		}
		defer in.CloseRepository()

		var counts [3]int
		var totalBytes int64
		allOK := true

		in.SetValidationCallback(func(rec repo.ValidationRecord) error {
			counts[rec.Kind]++
			totalBytes += rec.Size
			if rec.Kind != errs.Ok {
				allOK = false
			}
			if validateParams.verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", rec.Kind, rec.Digest)
			}
			return nil
		})

		if err := in.Execute(context.Background(), installer.Verify, root, nil); err != nil {
			return ioErrorf(err)
		}

		if validateParams.summary {
			fmt.Fprintf(cmd.OutOrStdout(), "Ok: %d  Missing: %d  Corrupted: %d  total: %s\n",
				counts[errs.Ok], counts[errs.Missing], counts[errs.Corrupted], humanize.Bytes(uint64(totalBytes)))
		}

		if !allOK {
			return validationFaultErr()
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVarP(&validateParams.verbose, "verbose", "v", false, "print one line per object")
	validateCmd.Flags().BoolVar(&validateParams.summary, "summary", false, "print aggregate counts and total bytes")
	rootCmd.AddCommand(validateCmd)
}
