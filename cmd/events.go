// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejiriaustin/resource-monitor/clients"
	"github.com/tejiriaustin/resource-monitor/config"
)

var (
	eventsPath  string
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List journaled change events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := eventsPath
		if path != "" {
			resolved, err := resolvePath(path)
			if err != nil {
				return err
			}
			path = resolved
		}

		events, err := clients.NewClient(config.GetConfig()).GetChangeEvents(path, eventsLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch events: %w", err)
		}

		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDETECTED\tKIND\tPATH")
		for _, event := range events {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", event.ID, event.DetectedAt.Local().Format(time.RFC3339), event.Kind, event.Path)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsPath, "path", "", "only list events for this resource")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 0, "maximum number of events (server default when 0)")
	rootCmd.AddCommand(eventsCmd)
}
