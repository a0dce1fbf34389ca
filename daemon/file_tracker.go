package daemon

import (
	"context"
	"fmt"

	"github.com/tejiriaustin/resource-monitor/config"
	"github.com/tejiriaustin/resource-monitor/db"
	"github.com/tejiriaustin/resource-monitor/logger"
	"github.com/tejiriaustin/resource-monitor/models"
	"github.com/tejiriaustin/resource-monitor/monitoring"
)

// FileTracker wires a ChangeMonitor to the event journal and the log, and
// optionally untracks resources once they are reported deleted.
type FileTracker struct {
	config   *config.Config
	logger   *logger.Logger
	monitor  *monitoring.ChangeMonitor
	dbClient db.Repository
}

func NewFileTracker(cfg *config.Config, log *logger.Logger, dbClient db.Repository, opts ...monitoring.Option) (*FileTracker, error) {
	ft := &FileTracker{
		config:   cfg,
		logger:   log.Named("tracker"),
		dbClient: dbClient,
	}

	options := append([]monitoring.Option{
		monitoring.WithInterval(cfg.Interval),
		monitoring.WithHashAlgorithm(cfg.HashAlgorithm),
		monitoring.WithLogger(ft.logger),
	}, opts...)

	monitor, err := monitoring.New(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create change monitor: %w", err)
	}
	ft.monitor = monitor

	if dbClient != nil {
		monitor.AddListener(monitoring.ListenerFunc(ft.recordEvent))
	}
	monitor.AddListener(monitoring.ListenerFunc(ft.logEvent))
	if cfg.UntrackDeleted {
		monitor.AddListener(monitoring.ListenerFunc(ft.untrackDeleted))
	}

	return ft, nil
}

func (ft *FileTracker) Monitor() *monitoring.ChangeMonitor {
	return ft.monitor
}

// TrackConfigured registers every configured resource. A path that cannot be
// registered is logged and skipped; the number tracked is returned.
func (ft *FileTracker) TrackConfigured() int {
	tracked := 0
	for _, path := range ft.config.Resources {
		resource, err := ft.monitor.AddResource(path)
		if err != nil {
			ft.logger.Warnw("Failed to track resource", "path", path, "error", err)
			continue
		}
		ft.logger.Infow("Tracking resource", "path", resource.Path, "length", resource.Length)
		tracked++
	}
	return tracked
}

func (ft *FileTracker) Start(ctx context.Context) error {
	ft.logger.Infow("Starting resource tracking", "resources", len(ft.monitor.Resources()), "interval", ft.monitor.Interval().String())
	return ft.monitor.Start(ctx)
}

func (ft *FileTracker) Stop(ctx context.Context) error {
	ft.logger.Info("Stopping resource tracking")
	return ft.monitor.Stop(ctx)
}

func (ft *FileTracker) ApplyConfig(cfg *config.Config) {
	if cfg.Interval != ft.monitor.Interval() {
		if err := ft.monitor.SetInterval(cfg.Interval); err != nil {
			ft.logger.Errorw("Failed to apply interval", "error", err)
			return
		}
		ft.logger.Infow("Poll interval changed", "interval", cfg.Interval.String())
	}
}

func (ft *FileTracker) recordEvent(event models.ChangeEvent) error {
	if _, err := ft.dbClient.InsertChangeEvent(event); err != nil {
		return fmt.Errorf("error inserting event into database: %w", err)
	}
	return nil
}

func (ft *FileTracker) logEvent(event models.ChangeEvent) error {
	ft.logger.Infow("Resource changed", "kind", event.Kind.String(), "path", event.Path)
	return nil
}

func (ft *FileTracker) untrackDeleted(event models.ChangeEvent) error {
	if event.Kind != models.Deleted {
		return nil
	}
	if ft.monitor.RemoveResource(event.Path) {
		ft.logger.Infow("Untracked deleted resource", "path", event.Path)
	}
	return nil
}
