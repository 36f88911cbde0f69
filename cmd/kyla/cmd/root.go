package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/oneconcern/kyla/internal/dlog"
)

// Exit codes: 0 success, 1 validation faults present, 2 usage error, 3 I/O
// or catalog error.
const (
	ExitOK              = 0
	ExitValidationFault = 1
	ExitUsage           = 2
	ExitIOOrCatalog     = 3
)

type params struct {
	logLevel string
}

var rootParams params

var rootCmd = &cobra.Command{
	Use:   "kyla",
	Short: "kyla builds, deploys, and validates content-addressed software repositories",
	Long: `kyla turns a build descriptor and a source tree into a content-addressed
repository (loose or packed), deploys FileSets from it, and validates or
repairs an existing repository against its catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootParams.logLevel, "log-level", dlog.LevelInfo, "log level: debug, info, none")
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.SetEnvPrefix("KYLA")
	viper.AutomaticEnv()
	if v := viper.GetString("log_level"); v != "" && rootParams.logLevel == dlog.LevelInfo {
		rootParams.logLevel = v
	}
}

func newLogger() *zap.Logger {
	return dlog.MustNew(rootParams.logLevel)
}

// exitError carries the exit code a RunE failure should produce; a plain
// error from a subcommand is treated as ExitIOOrCatalog.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return &exitError{code: ExitUsage, err: fmt.Errorf(format, args...)}
}

func ioErrorf(err error) error {
	return &exitError{code: ExitIOOrCatalog, err: err}
}

func validationFaultErr() error {
	return &exitError{code: ExitValidationFault, err: fmt.Errorf("validation faults present")}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(os.Stderr, ee.err)
		return ee.code
	}
	fmt.Fprintln(os.Stderr, err)
	return ExitIOOrCatalog
}
