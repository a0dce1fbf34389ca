package db

import "github.com/tejiriaustin/resource-monitor/models"

type Repository interface {
	Close() error
	CreateChangeEventsTable() error
	InsertChangeEvent(event models.ChangeEvent) (int64, error)
	GetChangeEvents(limit int) ([]models.ChangeEvent, error)
	GetChangeEventsByPath(path string, limit int) ([]models.ChangeEvent, error)
}
