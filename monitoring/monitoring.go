package monitoring

import (
	"errors"

	"github.com/tejiriaustin/resource-monitor/models"
)

var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrListenerPanic  = errors.New("listener panicked")
)

type (
	// Listener receives change events synchronously from the poll loop. A
	// returned error is reported to the monitor's error handler and does not
	// stop delivery to the remaining listeners.
	Listener interface {
		Handle(event models.ChangeEvent) error
	}

	ListenerFunc func(event models.ChangeEvent) error

	ErrorHandler func(path string, err error)

	Tracker interface {
		AddResource(path string) (models.TrackedResource, error)
		RemoveResource(path string) bool
		Resources() []models.TrackedResource
	}

	Stats struct {
		Passes           uint64 `json:"passes"`
		EventsDispatched uint64 `json:"events_dispatched"`
		Errors           uint64 `json:"errors"`
		ListenerFailures uint64 `json:"listener_failures"`
		Resources        int    `json:"resources"`
		Listeners        int    `json:"listeners"`
	}
)

func (f ListenerFunc) Handle(event models.ChangeEvent) error {
	return f(event)
}
