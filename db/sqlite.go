package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tejiriaustin/resource-monitor/models"
)

const DefaultLimit = 100

type Client struct {
	db *sql.DB
}

var _ Repository = (*Client)(nil)

func NewClient(dbPath string) (*Client, error) {
	database, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// sqlite serialises writers; one connection also keeps ":memory:" databases shared
	database.SetMaxOpenConns(1)

	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	return &Client{db: database}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) CreateChangeEventsTable() error {
	query := `CREATE TABLE IF NOT EXISTS change_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        path TEXT NOT NULL,
        kind TEXT NOT NULL,
        detected_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS change_events_path ON change_events (path)`
	_, err := c.db.Exec(query)
	return err
}

func (c *Client) InsertChangeEvent(event models.ChangeEvent) (int64, error) {
	query := `INSERT INTO change_events (path, kind, detected_at) VALUES (?, ?, ?)`
	result, err := c.db.Exec(query, event.Path, event.Kind.String(), event.DetectedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("error inserting change event: %w", err)
	}
	return result.LastInsertId()
}

func (c *Client) GetChangeEvents(limit int) ([]models.ChangeEvent, error) {
	return c.queryChangeEvents(
		`SELECT id, path, kind, detected_at FROM change_events ORDER BY id DESC LIMIT ?`,
		normalizeLimit(limit),
	)
}

func (c *Client) GetChangeEventsByPath(path string, limit int) ([]models.ChangeEvent, error) {
	return c.queryChangeEvents(
		`SELECT id, path, kind, detected_at FROM change_events WHERE path = ? ORDER BY id DESC LIMIT ?`,
		path, normalizeLimit(limit),
	)
}

func (c *Client) queryChangeEvents(query string, args ...interface{}) (events []models.ChangeEvent, err error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer closeInto(rows, &err)

	events = make([]models.ChangeEvent, 0)

	for rows.Next() {
		var (
			event models.ChangeEvent
			kind  string
		)

		err := rows.Scan(&event.ID, &event.Path, &kind, &event.DetectedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		event.Kind, err = models.ParseEventKind(kind)
		if err != nil {
			return nil, fmt.Errorf("error parsing event kind: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// closeInto closes c and joins a close failure into *err.
func closeInto(c io.Closer, err *error) {
	if closeErr := c.Close(); closeErr != nil {
		*err = errors.Join(*err, fmt.Errorf("failed to close rows: %w", closeErr))
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
