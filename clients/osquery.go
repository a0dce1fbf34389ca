package clients

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/osquery/osquery-go"
	"github.com/osquery/osquery-go/plugin/table"

	"github.com/tejiriaustin/resource-monitor/db"
	"github.com/tejiriaustin/resource-monitor/logger"
	"github.com/tejiriaustin/resource-monitor/models"
	"github.com/tejiriaustin/resource-monitor/monitoring"
)

const (
	ExtensionName          = "resource_monitor"
	TrackedResourcesTable  = "tracked_resources"
	ResourceChangesTable   = "resource_changes"
	defaultExtensionLimit  = 1000
	defaultShutdownTimeout = 5 * time.Second
)

type (
	ExtensionServer interface {
		RegisterPlugin(plugins ...osquery.OsqueryPlugin)
		Run() error
		Shutdown(ctx context.Context) error
	}

	// OsQueryExtension exposes the tracked resources and the change journal
	// to osquery as two read-only tables.
	OsQueryExtension struct {
		socketPath string
		timeout    time.Duration
		server     ExtensionServer
		tracker    monitoring.Tracker
		dbClient   db.Repository
		logger     *logger.Logger
	}

	Option func(e *OsQueryExtension) error
)

func WithExtensionServer(server ExtensionServer) Option {
	return func(e *OsQueryExtension) error {
		e.server = server
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(e *OsQueryExtension) error {
		e.timeout = timeout
		return nil
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(e *OsQueryExtension) error {
		e.logger = log
		return nil
	}
}

func NewOsQueryExtension(socketPath string, tracker monitoring.Tracker, dbClient db.Repository, opts ...Option) (*OsQueryExtension, error) {
	e := &OsQueryExtension{
		socketPath: socketPath,
		timeout:    10 * time.Second,
		tracker:    tracker,
		dbClient:   dbClient,
		logger:     logger.NewNop(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.server == nil {
		server, err := osquery.NewExtensionManagerServer(ExtensionName, socketPath, osquery.ServerTimeout(e.timeout))
		if err != nil {
			return nil, fmt.Errorf("failed to create osquery extension server: %w", err)
		}
		e.server = server
	}

	return e, nil
}

func (e *OsQueryExtension) Plugins() []osquery.OsqueryPlugin {
	return []osquery.OsqueryPlugin{
		table.NewPlugin(TrackedResourcesTable, []table.ColumnDefinition{
			table.TextColumn("path"),
			table.BigIntColumn("length"),
			table.TextColumn("digest"),
		}, e.generateTrackedResources),
		table.NewPlugin(ResourceChangesTable, []table.ColumnDefinition{
			table.BigIntColumn("id"),
			table.TextColumn("path"),
			table.TextColumn("kind"),
			table.TextColumn("detected_at"),
		}, e.generateResourceChanges),
	}
}

// Run registers the tables and serves osquery until ctx is cancelled.
func (e *OsQueryExtension) Run(ctx context.Context) error {
	e.server.RegisterPlugin(e.Plugins()...)

	finished := make(chan struct{})
	defer close(finished)

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := e.server.Shutdown(shutdownCtx); err != nil {
				e.logger.Errorw("Failed to shut down osquery extension", "error", err)
			}
		case <-finished:
		}
	}()

	e.logger.Infow("Serving osquery extension", "socket", e.socketPath)
	if err := e.server.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func (e *OsQueryExtension) generateTrackedResources(ctx context.Context, queryContext table.QueryContext) ([]map[string]string, error) {
	resources := e.tracker.Resources()

	results := make([]map[string]string, 0, len(resources))
	for _, resource := range resources {
		results = append(results, map[string]string{
			"path":   resource.Path,
			"length": strconv.FormatInt(resource.Length, 10),
			"digest": resource.Digest,
		})
	}
	return results, nil
}

func (e *OsQueryExtension) generateResourceChanges(ctx context.Context, queryContext table.QueryContext) ([]map[string]string, error) {
	if e.dbClient == nil {
		return []map[string]string{}, nil
	}

	var (
		events []models.ChangeEvent
		err    error
	)
	if path, ok := equalityConstraint(queryContext, "path"); ok {
		events, err = e.dbClient.GetChangeEventsByPath(path, defaultExtensionLimit)
	} else {
		events, err = e.dbClient.GetChangeEvents(defaultExtensionLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read change events: %w", err)
	}

	results := make([]map[string]string, 0, len(events))
	for _, event := range events {
		results = append(results, map[string]string{
			"id":          strconv.FormatInt(event.ID, 10),
			"path":        event.Path,
			"kind":        event.Kind.String(),
			"detected_at": event.DetectedAt.UTC().Format(time.RFC3339),
		})
	}
	return results, nil
}

func equalityConstraint(queryContext table.QueryContext, column string) (string, bool) {
	constraints, ok := queryContext.Constraints[column]
	if !ok {
		return "", false
	}
	for _, constraint := range constraints.Constraints {
		if constraint.Operator == table.OperatorEquals {
			return constraint.Expression, true
		}
	}
	return "", false
}
