// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tejiriaustin/resource-monitor/clients"
	"github.com/tejiriaustin/resource-monitor/config"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Manage the resources tracked by a running daemon",
}

var resourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		resources, err := clients.NewClient(config.GetConfig()).ListResources()
		if err != nil {
			return fmt.Errorf("failed to list resources: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tLENGTH\tDIGEST")
		for _, resource := range resources {
			fmt.Fprintf(w, "%s\t%d\t%s\n", resource.Path, resource.Length, resource.Digest)
		}
		return w.Flush()
	},
}

var resourcesAddCmd = &cobra.Command{
	Use:   "add [path...]",
	Short: "Start tracking one or more resources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := clients.NewClient(config.GetConfig())

		var failed int
		for _, arg := range args {
			path, err := resolvePath(arg)
			if err != nil {
				return err
			}

			resource, err := client.TrackResource(path)
			if err != nil {
				log.Errorw("Failed to track resource", "path", path, "error", err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tracking %s (%d bytes)\n", resource.Path, resource.Length)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d resources could not be tracked", failed, len(args))
		}
		return nil
	},
}

var resourcesRemoveCmd = &cobra.Command{
	Use:   "remove [path...]",
	Short: "Stop tracking one or more resources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := clients.NewClient(config.GetConfig())

		var failed int
		for _, arg := range args {
			path, err := resolvePath(arg)
			if err != nil {
				return err
			}

			if err := client.UntrackResource(path); err != nil {
				log.Errorw("Failed to untrack resource", "path", path, "error", err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Untracked %s\n", path)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d resources could not be untracked", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
	resourcesCmd.AddCommand(resourcesListCmd)
	resourcesCmd.AddCommand(resourcesAddCmd)
	resourcesCmd.AddCommand(resourcesRemoveCmd)
}
