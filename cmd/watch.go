// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejiriaustin/resource-monitor/config"
	"github.com/tejiriaustin/resource-monitor/daemon"
	"github.com/tejiriaustin/resource-monitor/models"
	"github.com/tejiriaustin/resource-monitor/monitoring"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [path...]",
	Short: "Watch resources in the foreground and print every change",
	Long: `Watch polls the given paths, together with the configured resources,
and prints one line per change until interrupted. Nothing is journaled.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (defaults to the configured interval)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	base := config.GetConfig()
	cfg := &config.Config{
		Interval:       base.Interval,
		Resources:      append(append([]string{}, base.Resources...), args...),
		HashAlgorithm:  base.HashAlgorithm,
		UntrackDeleted: base.UntrackDeleted,
	}
	if cmd.Flags().Changed("interval") {
		cfg.Interval = watchInterval
	}

	if len(cfg.Resources) == 0 {
		return fmt.Errorf("no resources to watch")
	}

	tracker, err := daemon.NewFileTracker(cfg, log, nil)
	if err != nil {
		return err
	}
	tracker.Monitor().AddListener(printEvents(cmd.OutOrStdout()))

	if tracker.TrackConfigured() == 0 {
		return fmt.Errorf("none of the %d resources could be tracked", len(cfg.Resources))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tracker.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return tracker.Stop(shutdownCtx)
}

func printEvents(w io.Writer) monitoring.Listener {
	return monitoring.ListenerFunc(func(event models.ChangeEvent) error {
		_, err := fmt.Fprintf(w, "%s\t%-16s\t%s\n", event.DetectedAt.Local().Format(time.RFC3339), event.Kind, event.Path)
		return err
	})
}

