package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tejiriaustin/resource-monitor/config"
	"github.com/tejiriaustin/resource-monitor/logger"
)

const shutdownTimeout = 5 * time.Second

type (
	Daemon struct {
		cfg         *config.Config
		logger      *logger.Logger
		fileTracker *FileTracker
		extension   Extension
	}

	// Extension is an optional component run alongside the tracker for the
	// lifetime of the daemon, such as the osquery table extension.
	Extension interface {
		Run(ctx context.Context) error
	}
)

func newDaemon() *Daemon {
	return &Daemon{}
}

func New(cfg *config.Config, log *logger.Logger, fileTracker *FileTracker, extension Extension) (*Daemon, error) {
	if fileTracker == nil {
		return nil, errors.New("file tracker is required")
	}

	d := newDaemon()
	d.cfg = cfg
	d.logger = log.Named("daemon")
	d.fileTracker = fileTracker
	d.extension = extension

	return d, nil
}

// StartDaemon runs the tracker, and the extension if any, until ctx is
// cancelled, then stops the poll loop cooperatively.
func (daemon *Daemon) StartDaemon(ctx context.Context) error {
	tracked := daemon.fileTracker.TrackConfigured()
	daemon.logger.Infow("Configured resources registered", "tracked", tracked, "configured", len(daemon.cfg.Resources))

	if err := daemon.fileTracker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file tracker: %w", err)
	}

	extensionErr := make(chan error, 1)
	if daemon.extension != nil {
		go func() {
			extensionErr <- daemon.extension.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-extensionErr:
		// the extension is optional; losing it never stops the poll loop
		if err != nil {
			daemon.logger.Errorw("Extension stopped", "error", err)
		}
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := daemon.fileTracker.Stop(shutdownCtx); err != nil {
		return err
	}

	daemon.logger.Info("Daemon stopped")
	return nil
}
