package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nodeops/nodeops/pkg/stores"
)

func newInventoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Manage the host registry",
		Long: `Manage the host registry: the target hosts and the node root path of
each one. Registered hosts are the targets of --all.`,
	}

	cmd.AddCommand(newInventoryAddCommand())
	cmd.AddCommand(newInventoryListCommand())
	cmd.AddCommand(newInventoryRemoveCommand())

	return cmd
}

func parseLabels(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid label %q, expected key=value", p)
		}
		labels[k] = v
	}
	return labels, nil
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}

func newInventoryAddCommand() *cobra.Command {
	var (
		root   string
		labels []string
	)

	cmd := &cobra.Command{
		Use:     "add <host>",
		Short:   "Register a host or update its root path and labels",
		Example: `  nodeops inventory add 10.0.0.5 --root /opt/chain --label zone=a`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseLabels(labels)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				host := &stores.Host{Address: args[0], RootPath: root, Labels: parsed}
				if err := a.registry.AddHost(cmd.Context(), host); err != nil {
					return err
				}

				log.Info().
					Str("host", host.Address).
					Str("root", host.RootPath).
					Msg("Host registered")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "node root directory on the host")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "label as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("root")

	return cmd
}

func newInventoryListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				hosts, err := a.registry.ListHosts(cmd.Context())
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(hosts)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "HOST\tROOT\tLABELS\tREGISTERED")
				for _, h := range hosts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Address, h.RootPath, formatLabels(h.Labels), h.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
}

func newInventoryRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <host>",
		Aliases: []string{"remove"},
		Short:   "Remove a host from the registry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.registry.RemoveHost(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Info().Str("host", args[0]).Msg("Host removed")
				return nil
			})
		},
	}
}
