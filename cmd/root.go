package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"soPushBot/internal/domain/apperror"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig string
	flagDryRun bool
)

var rootCmd = &cobra.Command{
	Use:   "soPushBot",
	Short: "Push new Stack Overflow questions to Pushover",
	Long: `soPushBot polls Stack Overflow for new questions on the configured tags and
sends one Pushover notification per question it has not seen before.

Without a subcommand it runs a single cycle, which is what a cron job wants.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOnce,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one fetch and notify cycle",
	RunE:  runOnce,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "soPushBot %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file (keys are environment variable names)")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "fetch and filter but do not notify or write the cache")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI and returns the process exit code. Failed
// notifications are not errors: the run still exits 0.
func Execute() int {
	err := rootCmd.Execute()
	code := exitCode(err)
	switch {
	case code != 0:
		fmt.Fprintln(os.Stderr, "Error:", err)
	case err != nil:
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}
	return code
}

func exitCode(err error) int {
	if apperror.IsFatal(err) {
		return 1
	}
	return 0
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
