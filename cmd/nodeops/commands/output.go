package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nodeops/nodeops/pkg/classify"
)

// hostResult is the report line of one operation against one host.
type hostResult struct {
	Host      string            `json:"host"`
	Operation string            `json:"operation"`
	Status    string            `json:"status"`
	Detail    string            `json:"detail,omitempty"`
	Failure   *classify.Failure `json:"failure,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func newResult(host, operation string, err error) hostResult {
	res := hostResult{Host: host, Operation: operation, Status: "ok"}
	if err == nil {
		return res
	}

	res.Status = "failed"
	res.Error = err.Error()
	var f *classify.Failure
	if errors.As(err, &f) {
		res.Failure = f
	}
	return res
}

// errHostsFailed is returned when at least one host reported a failure so
// that the process exits non-zero.
var errHostsFailed = errors.New("operation failed")

// report prints results and returns errHostsFailed if any failed.
func report(w io.Writer, results []hostResult) error {
	failed := 0
	for _, r := range results {
		if r.Status == "failed" {
			failed++
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
	} else {
		for _, r := range results {
			writeResult(w, r)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w on %d of %d hosts", errHostsFailed, failed, len(results))
	}
	return nil
}

func writeResult(w io.Writer, r hostResult) {
	host := r.Host
	if host == "" {
		host = "-"
	}

	switch {
	case r.Status != "failed":
		if r.Detail != "" {
			fmt.Fprintf(w, "%-8s %-24s %s: %s\n", "OK", host, r.Operation, r.Detail)
		} else {
			fmt.Fprintf(w, "%-8s %-24s %s\n", "OK", host, r.Operation)
		}
	case r.Failure != nil:
		f := r.Failure
		fmt.Fprintf(w, "%-8s %-24s %s\n", "FAILED", host, r.Operation)
		fmt.Fprintf(w, "  kind:      %s\n", f.Kind)
		if f.Class != "" {
			fmt.Fprintf(w, "  class:     %s\n", f.Class)
		}
		if f.Command != "" {
			fmt.Fprintf(w, "  command:   %s\n", f.Command)
			fmt.Fprintf(w, "  exit code: %d\n", f.ExitCode)
		}
		if f.Err != nil {
			fmt.Fprintf(w, "  error:     %s\n", f.Err)
		}
		if f.Output != "" {
			fmt.Fprintf(w, "  output:\n")
			for _, line := range strings.Split(f.Output, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	default:
		fmt.Fprintf(w, "%-8s %-24s %s: %s\n", "FAILED", host, r.Operation, r.Error)
	}
}

// targetHosts returns the explicit host argument or, with all set, every
// registered host.
func targetHosts(ctx context.Context, a *app, args []string, all bool) ([]string, error) {
	if all {
		if len(args) > 0 {
			return nil, fmt.Errorf("--all cannot be combined with a host argument")
		}
		hosts, err := a.registry.ListHosts(ctx)
		if err != nil {
			return nil, err
		}
		if len(hosts) == 0 {
			return nil, fmt.Errorf("no hosts registered, use 'nodeops inventory add'")
		}
		out := make([]string, 0, len(hosts))
		for _, h := range hosts {
			out = append(out, h.Address)
		}
		return out, nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("a host argument or --all is required")
	}
	return args[:1], nil
}

// fanOut runs fn for every host with at most limit calls in flight and
// returns the results in host order. fn reports failures in its result.
func fanOut(ctx context.Context, hosts []string, limit int, fn func(ctx context.Context, host string) hostResult) []hostResult {
	results := make([]hostResult, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, host := range hosts {
		g.Go(func() error {
			results[i] = fn(gctx, host)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runOnHosts resolves the targets, fans out op and prints the report.
func runOnHosts(cmd *cobra.Command, args []string, all bool, operation string, op func(ctx context.Context, a *app, host string) (string, error)) error {
	return withApp(cmd.Context(), func(a *app) error {
		hosts, err := targetHosts(cmd.Context(), a, args, all)
		if err != nil {
			return err
		}

		results := fanOut(cmd.Context(), hosts, a.cfg.Fanout, func(ctx context.Context, host string) hostResult {
			detail, err := op(ctx, a, host)
			res := newResult(host, operation, err)
			res.Detail = detail
			return res
		})
		return report(cmd.OutOrStdout(), results)
	})
}
