package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"admission-gateway/config"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var errSharedStoreRequired = errors.New("inspect/reset need the shared store (ratelimit.store=redis)")

func durationOrNone(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.String()
}

func (c *cli) ratelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect or reset per-client admission state in Redis",
	}
	cmd.AddCommand(c.inspectCmd(), c.resetCmd())
	return cmd
}

// withInspector abre o Redis da configuração e entrega um Inspector.
func (c *cli) withInspector(ctx context.Context, fn func(application.Inspector) error) error {
	cfg, _, err := c.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.RateLimit.Store == config.StoreMemory {
		return errSharedStoreRequired
	}

	rdb := newRedisClient(cfg.Redis)
	defer func() { _ = rdb.Close() }()

	store := infra.NewRedisCounterStore(rdb)
	if err := store.Ping(ctx); err != nil {
		return err
	}
	return fn(application.NewInspector(store, cfg.Policy()))
}

func (c *cli) inspectCmd() *cobra.Command {
	var endpoints []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <client>",
		Short: "Show window counters and backoff state of a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withInspector(cmd.Context(), func(in application.Inspector) error {
				st, err := in.Inspect(cmd.Context(), args[0], endpoints...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}

				t := table.NewWriter()
				t.SetOutputMirror(out)
				t.SetStyle(table.StyleRounded)
				t.SetTitle("client %s", st.Client)
				t.AppendHeader(table.Row{"Key", "Count", "TTL"})
				for _, w := range st.Windows {
					if !w.Present {
						t.AppendRow(table.Row{w.Key, "-", "-"})
						continue
					}
					t.AppendRow(table.Row{w.Key, w.Count, durationOrNone(w.TTL)})
				}
				penalty := "none"
				if st.Penalty.Active {
					penalty = st.Penalty.Remaining.Round(time.Second).String()
				}
				t.AppendSeparator()
				t.AppendRow(table.Row{st.BackoffKey, fmt.Sprintf("%d violation(s)", st.Violations), "penalty " + penalty})
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&endpoints, "endpoint", nil, "extra endpoints to look at (per-endpoint windows)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	var endpoints []string
	var yes, dryRun bool
	cmd := &cobra.Command{
		Use:   "reset <client>",
		Short: "Delete window counters and backoff state of a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !dryRun {
				return errors.New("refusing to delete without --yes (use --dry-run to preview)")
			}
			return c.withInspector(cmd.Context(), func(in application.Inspector) error {
				keys, err := in.Reset(cmd.Context(), args[0], dryRun, endpoints...)
				if err != nil {
					return err
				}
				verb := "deleted"
				if dryRun {
					verb = "would delete"
				}
				for _, k := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, k)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&endpoints, "endpoint", nil, "extra endpoints to reset (per-endpoint windows)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list the keys that would be deleted")
	return cmd
}
