package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rhuss/sdvagent/pkg/broker"
	"github.com/rhuss/sdvagent/pkg/config"
	"github.com/rhuss/sdvagent/pkg/discovery"
)

func newDiscoverCommand(a *app) *cobra.Command {
	var target int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover tool servers and list their tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if target > 0 {
				a.cfg.Discovery.TargetCount = target
			}
			dialer, stop := a.brokerDialer(cmd.Context())
			defer stop()
			return runDiscover(cmd.Context(), a.cfg, dialer, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&target, "target", 0, "Number of servers to wait for (default from config)")
	return cmd
}

func runDiscover(ctx context.Context, cfg *config.Config, dialer broker.Dialer, out io.Writer) error {
	client, err := discovery.Connect(ctx, dialer, cfg.DiscoveryOptions(version))
	if err != nil {
		return err
	}
	defer client.Close()
	return printServers(ctx, client.Registry(), out)
}

func printServers(ctx context.Context, reg *discovery.Registry, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tIMPLEMENTATION\tTOOL\tDESCRIPTION")
	for _, name := range reg.Names() {
		s, _ := reg.Get(name)
		impl := "-"
		if res := s.InitializeResult(); res != nil && res.ServerInfo != nil {
			impl = res.ServerInfo.Name + " " + res.ServerInfo.Version
		}
		listed, err := s.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("listing tools of %s: %w", name, err)
		}
		if len(listed) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\n", name, impl)
		}
		for _, t := range listed {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, impl, t.Name, firstLine(t.Description))
		}
	}
	return tw.Flush()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
