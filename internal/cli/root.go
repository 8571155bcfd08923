package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

// rootCmd runs the named command sequences from .fab.yaml. Invoked with no
// arguments it lists what is available.
var rootCmd = &cobra.Command{
	Use:   "fab [command[:key=value,...] ...]",
	Short: "Run commands on multiple hosts over SSH",
	Long: `fab executes named command sequences from a .fab.yaml file against
one or more hosts over SSH, in parallel or one host at a time.

Commands may take arguments after a colon; arguments become variables
for the duration of the run.

Examples:
  fab deploy
  fab deploy:branch=main restart
  fab list`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Invoke(InvokeOptions{Tokens: args, ConfigPath: configFlag})
	},
}

// Config returns the value of the global --config flag.
func Config() string {
	return configFlag
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (default: search for .fab.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
