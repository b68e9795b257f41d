package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/sdvagent/pkg/storage"
)

func newReportsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect stored reports",
		Long: `Inspect reports kept by the configured store. Only a persistent store
(storage.type: postgres) keeps reports across runs.`,
	}
	cmd.AddCommand(newReportsListCommand(a), newReportsShowCommand(a), newReportsDeleteCommand(a))
	return cmd
}

func newReportsListCommand(a *app) *cobra.Command {
	var opts storage.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openRequiredStore(cmd, a)
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.ListReports(cmd.Context(), opts)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVEHICLE\tLANGUAGE\tMODEL\tCREATED")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.VehicleID, r.Language, r.Model, r.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&opts.VehicleID, "vehicle", "", "Only reports for this vehicle")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of reports")
	return cmd
}

func newReportsShowCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRequiredStore(cmd, a)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), r.Content)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	return cmd
}

func newReportsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRequiredStore(cmd, a)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.DeleteReport(cmd.Context(), args[0])
		},
	}
}

func openRequiredStore(cmd *cobra.Command, a *app) (storage.ReportStore, error) {
	store, err := openStore(cmd.Context(), a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("storage is disabled")
	}
	return store, nil
}
