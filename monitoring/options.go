package monitoring

import (
	"fmt"
	"time"

	"github.com/tejiriaustin/resource-monitor/checksum"
	"github.com/tejiriaustin/resource-monitor/logger"
)

const DefaultInterval = 500 * time.Millisecond

type Option func(m *ChangeMonitor) error

func WithInterval(interval time.Duration) Option {
	return func(m *ChangeMonitor) error {
		if interval < 0 {
			return fmt.Errorf("invalid interval %s: must not be negative", interval)
		}
		m.interval.Store(int64(interval))
		return nil
	}
}

func WithHasher(hasher checksum.Hasher) Option {
	return func(m *ChangeMonitor) error {
		if hasher == nil {
			return fmt.Errorf("hasher must not be nil")
		}
		m.hasher = hasher
		return nil
	}
}

func WithHashAlgorithm(algorithm string) Option {
	return func(m *ChangeMonitor) error {
		hasher, err := checksum.New(algorithm)
		if err != nil {
			return err
		}
		m.hasher = hasher
		return nil
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(m *ChangeMonitor) error {
		if log != nil {
			m.logger = log
		}
		return nil
	}
}

// WithErrorHandler replaces the default sink, which logs, for errors raised
// while polling or dispatching.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(m *ChangeMonitor) error {
		m.onError = handler
		return nil
	}
}

// WithResources registers the given paths once all other options are applied.
func WithResources(paths ...string) Option {
	return func(m *ChangeMonitor) error {
		m.initialPaths = append(m.initialPaths, paths...)
		return nil
	}
}
