// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejiriaustin/resource-monitor/clients"
	"github.com/tejiriaustin/resource-monitor/config"
	"github.com/tejiriaustin/resource-monitor/daemon"
	"github.com/tejiriaustin/resource-monitor/db"
	"github.com/tejiriaustin/resource-monitor/logger"
	"github.com/tejiriaustin/resource-monitor/server"
)

var serviceCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Resource Change Monitor daemon",
	Run:   startDaemonService,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
}

func startDaemonService(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()
	log.Infow("Starting Resource Change Monitor daemon", "config", cfg.ConfigPath)

	if err := cfg.WritePidFile(os.Getpid()); err != nil {
		log.Errorw("Failed to write PID file", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cfg.RemovePidFile(); err != nil {
			log.Errorw("Failed to remove PID file", "error", err)
		}
	}()

	dbClient, err := db.NewClient(cfg.DatabasePath)
	if err != nil {
		log.Errorw("Failed to open event journal", "path", cfg.DatabasePath, "error", err)
		return
	}
	defer dbClient.Close()

	if err := dbClient.CreateChangeEventsTable(); err != nil {
		log.Errorw("Failed to prepare event journal", "error", err)
		return
	}

	tracker, err := daemon.NewFileTracker(cfg, log, dbClient)
	if err != nil {
		log.Errorw("Failed to create file tracker", "error", err)
		return
	}

	d, err := daemon.New(cfg, log, tracker, newExtension(cfg, log, tracker, dbClient))
	if err != nil {
		log.Errorw("Failed to create daemon", "error", err)
		return
	}

	if vpr.ConfigFileUsed() != "" {
		config.WatchConfig(vpr, validate, log, tracker.ApplyConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg      sync.WaitGroup
		errChan = make(chan error, 2)
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		h := server.NewHandler(log, cfg.ControlRatePerMinute, cfg.ControlBurst).SetupHandler(tracker.Monitor(), dbClient)
		if err := server.New(cfg, log).Start(ctx, h); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		if err := d.StartDaemon(ctx); err != nil {
			errChan <- fmt.Errorf("daemon error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Errorw("Error in daemon service", "error", err)
	case sig := <-sigChan:
		log.Infow("Shutdown signal received", "signal", sig.String())
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All goroutines finished")
	case <-time.After(10 * time.Second):
		log.Warn("Shutdown timed out")
	}

	log.Info("Daemon service stopped")
}

// newExtension returns the osquery extension when it is enabled. A nil
// *OsQueryExtension must not reach the daemon as a non-nil interface.
func newExtension(cfg *config.Config, log *logger.Logger, tracker *daemon.FileTracker, dbClient db.Repository) daemon.Extension {
	if !cfg.OsqueryExtension {
		return nil
	}

	extension, err := clients.NewOsQueryExtension(cfg.OsquerySocket, tracker.Monitor(), dbClient, clients.WithLogger(log.Named("osquery")))
	if err != nil {
		log.Errorw("Osquery extension disabled", "socket", cfg.OsquerySocket, "error", err)
		return nil
	}
	return extension
}

func stopDaemon(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()
	switch runtime.GOOS {
	case "darwin", "linux":
		stopUnixDaemon(cfg, log)
	case "windows":
		stopWindowsDaemon(cfg, log)
	default:
		log.Errorw("Unsupported operating system", "os", runtime.GOOS)
		os.Exit(1)
	}
}

func stopUnixDaemon(cfg *config.Config, log *logger.Logger) {
	pid, err := cfg.ReadPidFile()
	if err != nil {
		log.Errorw("Failed to read PID file", "error", err)
		os.Exit(1)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		log.Errorw("Failed to find process", "pid", pid, "error", err)
		if err := cfg.RemovePidFile(); err != nil {
			log.Errorw("Failed to remove PID file", "error", err)
		}
		os.Exit(1)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		log.Warnw("Failed to stop daemon using SIGTERM", "pid", pid, "error", err)

		if err := process.Kill(); err != nil {
			log.Errorw("Failed to stop daemon using SIGKILL", "pid", pid, "error", err)
			os.Exit(1)
		}
		log.Infow("Daemon stopped using SIGKILL", "pid", pid)

		// a killed daemon cannot clean up after itself
		if err := cfg.RemovePidFile(); err != nil {
			log.Errorw("Failed to remove PID file", "error", err)
		}
		return
	}

	log.Infow("Daemon stopped using SIGTERM", "pid", pid)
}

func stopWindowsDaemon(cfg *config.Config, log *logger.Logger) {
	pid, err := cfg.ReadPidFile()
	if err != nil {
		log.Errorw("Failed to read PID file", "error", err)
		os.Exit(1)
	}

	cmd := exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid))
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Errorw("Failed to stop daemon", "pid", pid, "error", err, "output", string(output))
		os.Exit(1)
	}
	log.Infow("Daemon stopped successfully", "pid", pid, "output", string(output))

	if err := cfg.RemovePidFile(); err != nil {
		log.Errorw("Failed to remove PID file", "error", err)
	}
}
