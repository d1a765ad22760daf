package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	jsonOutput  bool
	metricsAddr string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nodeops",
		Short: "nodeops - remote node provisioning through ansible",
		Long: `nodeops prepares and operates blockchain node hosts through an external
remote-execution tool (ansible by default).

Every operation renders a tool command, runs it under a short, medium or
long timeout and reports a typed failure (kind, host, operation, timeout
class, command and raw output) when it does not succeed.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs (e.g. :9464)")

	rootCmd.AddCommand(newToolCommand())
	rootCmd.AddCommand(newHostCommand())
	rootCmd.AddCommand(newFileCommand())
	rootCmd.AddCommand(newDockerCommand())
	rootCmd.AddCommand(newInventoryCommand())

	return rootCmd
}
