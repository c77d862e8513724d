package main

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (c *cli) validateCmd() *cobra.Command {
	var forServe bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the effective policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.load()
			if err != nil {
				return err
			}
			if forServe {
				err = cfg.ValidateServe()
			} else {
				err = cfg.Validate()
			}
			if err != nil {
				return err
			}

			p := cfg.Policy()
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Setting", "Value"})
			t.AppendRows([]table.Row{
				{"requestsPerWindow", p.RequestsPerWindow},
				{"window", p.Window},
				{"backoffBase", p.BackoffBase},
				{"backoffMax", durationOrNone(p.BackoffMax)},
				{"backoffMemory", durationOrNone(p.BackoffMemory)},
				{"windowScope", p.WindowScope},
				{"failurePolicy", p.FailurePolicy},
				{"keyPrefix", p.KeyPrefix},
				{"store", cfg.RateLimit.Store},
				{"whitelist", len(p.Whitelist)},
			})
			eps := make([]string, 0, len(p.EndpointLimits))
			for ep := range p.EndpointLimits {
				eps = append(eps, ep)
			}
			sort.Strings(eps)
			for _, ep := range eps {
				t.AppendRow(table.Row{"limit " + ep, p.EndpointLimits[ep]})
			}
			t.Render()
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	}
	cmd.Flags().BoolVar(&forServe, "serve", false, "also check settings required by serve (upstream URL)")
	return cmd
}
