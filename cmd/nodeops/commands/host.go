package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nodeops/nodeops/pkg/orchestrator"
)

func newToolCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Inspect the remote-execution tool on the control machine",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the remote-execution tool is installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				err := a.engine.CheckTool(cmd.Context())
				return report(cmd.OutOrStdout(), []hostResult{newResult("", orchestrator.OpCheckTool, err)})
			})
		},
	})

	return cmd
}

func newHostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Check, prepare and operate target hosts",
		Long: `Check, prepare and operate target hosts.

Commands that accept --all run against every host in the inventory, with
at most 'fanout' hosts in flight at once.`,
	}

	cmd.AddCommand(newHostPingCommand())
	cmd.AddCommand(newHostExecCommand())
	cmd.AddCommand(newHostMkdirCommand())
	cmd.AddCommand(newHostCheckCommand())
	cmd.AddCommand(newHostCheckDockerCommand())
	cmd.AddCommand(newHostInitCommand())
	cmd.AddCommand(newHostBootstrapCommand())
	cmd.AddCommand(newHostMoveCommand())

	return cmd
}

func newHostPingCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ping [host]",
		Short: "Check that hosts are reachable through the tool",
		Example: `  # Ping one host
  nodeops host ping 10.0.0.5

  # Ping every registered host
  nodeops host ping --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnHosts(cmd, args, all, orchestrator.OpPing, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.CheckReachable(ctx, host)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run against every registered host")

	return cmd
}

func newHostExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "exec <host> <command...>",
		Short:   "Run a command on a host",
		Example: `  nodeops host exec 10.0.0.5 -- systemctl status docker`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args[1:], " ")
			return runOnHosts(cmd, args[:1], false, orchestrator.OpExec, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.ExecCommand(ctx, host, command)
			})
		},
	}
}

func newHostMkdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <host> <path>",
		Short: "Create a directory on a host (mkdir -p)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnHosts(cmd, args[:1], false, orchestrator.OpMkdir, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.CreateRemoteDirectory(ctx, host, args[1])
			})
		},
	}
}

func newHostCheckCommand() *cobra.Command {
	var (
		all   bool
		nodes int
	)

	cmd := &cobra.Command{
		Use:   "check [host]",
		Short: "Check host memory and CPU for a number of nodes",
		Example: `  # Can 10.0.0.5 run four nodes?
  nodeops host check 10.0.0.5 --nodes 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if nodes < 1 {
				return fmt.Errorf("--nodes must be at least 1")
			}
			return runOnHosts(cmd, args, all, orchestrator.OpCheckHost, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.CheckHostCapability(ctx, host, nodes)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run against every registered host")
	cmd.Flags().IntVarP(&nodes, "nodes", "n", 1, "number of nodes the host must be able to run")

	return cmd
}

func newHostCheckDockerCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "check-docker [host]",
		Short: "Check docker is installed and running on hosts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnHosts(cmd, args, all, orchestrator.OpCheckDocker, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.CheckDockerPrerequisites(ctx, host)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run against every registered host")

	return cmd
}

func newHostInitCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "init [host]",
		Short: "Run the host init script only",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnHosts(cmd, args, all, orchestrator.OpHostInit, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.RunHostInitScript(ctx, host)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run against every registered host")

	return cmd
}

func newHostBootstrapCommand() *cobra.Command {
	var (
		all  bool
		root string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap [host]",
		Short: "Run the host init script and create the node root directory",
		Long: `Run the host init script and create the node root directory.

Without --root the root path registered in the inventory is used. A failure
of either step fails the whole bootstrap; rerun it as a whole.`,
		Example: `  nodeops host bootstrap 10.0.0.5 --root /opt/chain
  nodeops host bootstrap --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && root != "" {
				return fmt.Errorf("--root cannot be combined with --all")
			}
			return runOnHosts(cmd, args, all, orchestrator.OpBootstrap, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.BootstrapHost(ctx, host, root)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run against every registered host")
	cmd.Flags().StringVar(&root, "root", "", "node root directory (default: registered root path)")

	return cmd
}

func newHostMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <host> <src> <dst>",
		Short: "Move a directory on a host (mv -fv)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnHosts(cmd, args[:1], false, orchestrator.OpMoveDir, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.MoveRemoteDirectory(ctx, host, args[1], args[2])
			})
		},
	}
}
