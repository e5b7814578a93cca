package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		root    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:           "modex",
		Short:         "Manage project modules and synchronize them into git repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&root, "root", ".", "project root directory")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	open := func() (*app, error) {
		return newApp(root, verbose)
	}

	cmd.AddCommand(
		newListCmd(open),
		newRefreshCmd(open),
		newEnableCmd(open),
		newDisableCmd(open),
		newInvokeCmd(open),
		newSyncCmd(open),
		newInstallCmd(open),
	)
	return cmd
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}
