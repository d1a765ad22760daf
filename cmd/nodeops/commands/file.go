package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nodeops/nodeops/pkg/orchestrator"
)

func newFileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Transfer files between the control machine and hosts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "copy <host> <local> <remote>",
		Short: "Push a local file or directory to a host",
		Long: `Push a local file or directory to a host.

For a file the parent of <remote> is created first; for a directory
<remote> itself is created first.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnHosts(cmd, args[:1], false, orchestrator.OpCopyUp, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.CopyUp(ctx, host, args[1], args[2])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "fetch <host> <remote> <local>",
		Short: "Pull a single file from a host",
		Long: `Pull a single file from a host. Directories cannot be fetched; a
<remote> ending in "/" is rejected before anything runs on the host.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnHosts(cmd, args[:1], false, orchestrator.OpFetchDown, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.FetchDown(ctx, host, args[1], args[2])
			})
		},
	})

	return cmd
}
