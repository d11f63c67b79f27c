package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newReindexCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <entity> [entity...]",
		Short: "Rebuild the indexes of the named entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(a *app) error {
				rebuilt, err := a.svc.Reindex(cmd.Context(), args)
				for _, name := range rebuilt {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return err
			})
		},
	}
}

func newDescribeCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "List the registered entities with their row counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(a *app) error {
				summaries, err := a.svc.Describe(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(summaries)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ENTITY\tATTRIBUTES\tROWS")
				for _, s := range summaries {
					fmt.Fprintf(w, "%s\t%d\t%d\n", s.Name, s.Attributes, s.Rows)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "history [--since YYYY-MM-DD]",
		Short: "Print the archived import records as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var from time.Time
			if since != "" {
				var err error
				if from, err = time.Parse("2006-01-02", since); err != nil {
					return fmt.Errorf("--since: %w", err)
				}
			}
			return withApp(cmd, root, func(a *app) error {
				records, err := a.svc.History(cmd.Context(), from)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, r := range records {
					if err := enc.Encode(r); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only records started on or after this day")
	return cmd
}
