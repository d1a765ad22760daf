package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nodeops/nodeops/pkg/orchestrator"
)

func newDockerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docker",
		Short: "Manage docker images and containers on hosts",
	}

	cmd.AddCommand(newDockerImageExistsCommand())
	cmd.AddCommand(newDockerContainerExistsCommand())
	cmd.AddCommand(newDockerPullCommand())
	cmd.AddCommand(newDockerRunCommand())

	return cmd
}

func presenceDetail(found bool) string {
	if found {
		return "present"
	}
	return "absent"
}

func newDockerImageExistsCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "image-exists [host] <image>",
		Short: "Report whether an image is present on hosts",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[len(args)-1]
			return runOnHosts(cmd, args[:len(args)-1], all, orchestrator.OpImageExists, func(ctx context.Context, a *app, host string) (string, error) {
				found, err := a.engine.ImageExists(ctx, host, image)
				return presenceDetail(found), err
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run against every registered host")

	return cmd
}

func newDockerContainerExistsCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "container-exists [host] <name>",
		Short: "Report whether a container exists on hosts",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[len(args)-1]
			return runOnHosts(cmd, args[:len(args)-1], all, orchestrator.OpContainerExists, func(ctx context.Context, a *app, host string) (string, error) {
				found, err := a.engine.ContainerExists(ctx, host, name)
				return presenceDetail(found), err
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run against every registered host")

	return cmd
}

func newDockerPullCommand() *cobra.Command {
	var (
		all     bool
		dir     string
		image   string
		version string
	)

	cmd := &cobra.Command{
		Use:   "pull [host]",
		Short: "Load an image through the CDN pull script unless already present",
		Example: `  nodeops docker pull 10.0.0.5 --dir /data --image org/chain:1.0 --version 1.0
  nodeops docker pull --all --dir /data --image org/chain:1.0 --version 1.0`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnHosts(cmd, args, all, orchestrator.OpPullImage, func(ctx context.Context, a *app, host string) (string, error) {
				return "", a.engine.PullImageIfAbsent(ctx, host, dir, image, version)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run against every registered host")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory for the downloaded image archive")
	cmd.Flags().StringVar(&image, "image", "", "image tag checked before pulling")
	cmd.Flags().StringVar(&version, "version", "", "version passed to the pull script")
	_ = cmd.MarkFlagRequired("dir")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newDockerRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "run <host> <docker command...>",
		Short:   "Run a docker command on a host and print its raw result",
		Example: `  nodeops docker run 10.0.0.5 -- docker restart rep0node0`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args[1:], " ")
			return runOnHosts(cmd, args[:1], false, orchestrator.OpDocker, func(ctx context.Context, a *app, host string) (string, error) {
				res, err := a.engine.RunDockerCommand(ctx, host, command)
				if err != nil {
					return "", err
				}
				if !res.Succeeded() {
					return "", fmt.Errorf("exit code %d (timed out: %t): %s", res.ExitCode, res.TimedOut, res.Output)
				}
				return res.Output, nil
			})
		},
	}
}
