package monitoring

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tejiriaustin/resource-monitor/checksum"
	"github.com/tejiriaustin/resource-monitor/logger"
	"github.com/tejiriaustin/resource-monitor/models"
)

// ChangeMonitor polls tracked resources and notifies listeners of size,
// contents and existence changes.
//
// The resource set and the listener list are guarded by one RWMutex. The poll
// loop copies them before use and never holds the lock while reading files or
// calling listeners, so listeners may call back into the monitor.
type ChangeMonitor struct {
	hasher       checksum.Hasher
	logger       *logger.Logger
	onError      ErrorHandler
	initialPaths []string

	mutex     sync.RWMutex
	resources []models.TrackedResource
	index     map[string]int
	aliases   map[string]string
	listeners []Listener

	interval atomic.Int64
	running  atomic.Bool

	lifecycle sync.Mutex
	done      chan struct{}

	passes           atomic.Uint64
	eventsDispatched atomic.Uint64
	checkErrors      atomic.Uint64
	listenerFailures atomic.Uint64
}

var _ Tracker = (*ChangeMonitor)(nil)

type observation struct {
	kind     models.EventKind
	resource models.TrackedResource
}

func New(opts ...Option) (*ChangeMonitor, error) {
	m := &ChangeMonitor{
		logger:  logger.NewNop(),
		index:   make(map[string]int),
		aliases: make(map[string]string),
	}
	m.interval.Store(int64(DefaultInterval))

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if m.hasher == nil {
		hasher, err := checksum.New(checksum.DefaultAlgorithm)
		if err != nil {
			return nil, err
		}
		m.hasher = hasher
	}

	for _, path := range m.initialPaths {
		if _, err := m.AddResource(path); err != nil {
			return nil, fmt.Errorf("failed to track %s: %w", path, err)
		}
	}
	m.initialPaths = nil

	return m, nil
}

// Canonicalize resolves path to an absolute, symlink-free form.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &checksum.IOError{Op: "resolve", Path: path, Err: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &checksum.IOError{Op: "resolve", Path: path, Err: err}
	}
	return resolved, nil
}

// AddResource canonicalizes path, reads it once to record the baseline length
// and digest, and starts tracking it. Tracking an already tracked path
// refreshes its baseline.
func (m *ChangeMonitor) AddResource(path string) (models.TrackedResource, error) {
	canonical, err := Canonicalize(path)
	if err != nil {
		return models.TrackedResource{}, err
	}

	sum, err := m.hasher.Digest(canonical)
	if err != nil {
		return models.TrackedResource{}, err
	}

	resource := models.TrackedResource{
		Path:   canonical,
		Length: sum.Length,
		Digest: sum.Hex,
	}
	m.AddTrackedResource(resource)

	// remember the spelling the caller used, so the resource can still be
	// untracked by it once a symlink target is gone
	if abs, err := filepath.Abs(path); err == nil && abs != canonical {
		m.mutex.Lock()
		if _, ok := m.index[canonical]; ok {
			m.aliases[abs] = canonical
		}
		m.mutex.Unlock()
	}

	m.logger.Debugw("Tracking resource", "path", canonical, "length", sum.Length)
	return resource, nil
}

// AddTrackedResource tracks a pre-built record without touching the
// filesystem. The caller supplies a consistent length and digest.
func (m *ChangeMonitor) AddTrackedResource(resource models.TrackedResource) {
	resource.Path = filepath.Clean(resource.Path)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.aliases, resource.Path)
	if i, ok := m.index[resource.Path]; ok {
		m.resources[i] = resource
		return
	}
	m.index[resource.Path] = len(m.resources)
	m.resources = append(m.resources, resource)
}

// RemoveResource stops tracking path. The registered spelling, the absolute
// form and the canonical form are all accepted.
func (m *ChangeMonitor) RemoveResource(path string) bool {
	candidates := []string{filepath.Clean(path)}
	if abs, err := filepath.Abs(path); err == nil {
		candidates = append(candidates, abs)
	}
	if canonical, err := Canonicalize(path); err == nil {
		candidates = append(candidates, canonical)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, candidate := range candidates {
		if target, ok := m.aliases[candidate]; ok {
			candidate = target
		}
		i, ok := m.index[candidate]
		if !ok {
			continue
		}
		m.resources = append(m.resources[:i], m.resources[i+1:]...)
		delete(m.index, candidate)
		for j := i; j < len(m.resources); j++ {
			m.index[m.resources[j].Path] = j
		}
		for alias, target := range m.aliases {
			if target == candidate {
				delete(m.aliases, alias)
			}
		}
		return true
	}
	return false
}

func (m *ChangeMonitor) Resources() []models.TrackedResource {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	resources := make([]models.TrackedResource, len(m.resources))
	copy(resources, m.resources)
	return resources
}

func (m *ChangeMonitor) Resource(path string) (models.TrackedResource, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	i, ok := m.index[filepath.Clean(path)]
	if !ok {
		return models.TrackedResource{}, false
	}
	return m.resources[i], true
}

func (m *ChangeMonitor) AddListener(listener Listener) {
	if listener == nil {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.listeners = append(m.listeners, listener)
}

// RemoveListener removes the first registration identical to listener.
// Listeners of non-comparable types, such as a bare ListenerFunc, never match.
func (m *ChangeMonitor) RemoveListener(listener Listener) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, registered := range m.listeners {
		if sameListener(registered, listener) {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (m *ChangeMonitor) Listeners() []Listener {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	return listeners
}

func sameListener(a, b Listener) (same bool) {
	if a == nil || b == nil {
		return false
	}
	typ := reflect.TypeOf(a)
	if typ != reflect.TypeOf(b) || !typ.Comparable() {
		return false
	}
	// a struct listener holding a func in an interface field still panics on ==
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func (m *ChangeMonitor) Interval() time.Duration {
	return time.Duration(m.interval.Load())
}

// SetInterval changes the poll period. It applies from the next sleep.
func (m *ChangeMonitor) SetInterval(interval time.Duration) error {
	if interval < 0 {
		return fmt.Errorf("invalid interval %s: must not be negative", interval)
	}
	m.interval.Store(int64(interval))
	return nil
}

// Start launches the poll loop in a goroutine owned by the monitor. The loop
// runs until RequestStop is called or ctx is cancelled.
func (m *ChangeMonitor) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.done != nil {
		select {
		case <-m.done:
		default:
			return ErrAlreadyRunning
		}
	}

	done := make(chan struct{})
	m.done = done
	m.running.Store(true)

	go m.run(ctx, done)

	m.logger.Infow("Resource monitor started", "interval", m.Interval().String(), "resources", len(m.Resources()))
	return nil
}

// RequestStop asks the poll loop to exit. The loop checks the flag before
// each pass, so a pass already in progress always completes.
func (m *ChangeMonitor) RequestStop() {
	m.running.Store(false)
}

func (m *ChangeMonitor) IsRunning() bool {
	return m.running.Load()
}

// Done returns a channel closed when the poll loop has exited. It is nil if
// the monitor was never started.
func (m *ChangeMonitor) Done() <-chan struct{} {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.done
}

func (m *ChangeMonitor) Wait() {
	if done := m.Done(); done != nil {
		<-done
	}
}

// Stop requests a stop and waits for the loop to exit or ctx to expire.
func (m *ChangeMonitor) Stop(ctx context.Context) error {
	m.RequestStop()

	done := m.Done()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		m.logger.Infow("Resource monitor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for poll loop to stop: %w", ctx.Err())
	}
}

func (m *ChangeMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.running.Store(false)

	for m.running.Load() && ctx.Err() == nil {
		m.CheckResources()

		if !m.sleep(ctx) {
			return
		}
	}
}

func (m *ChangeMonitor) sleep(ctx context.Context) bool {
	interval := m.Interval()
	if interval <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// CheckResources runs one pass over the tracked resources in insertion order
// and returns the events it dispatched. Each resource yields at most one
// event, and its listeners are all notified before the next resource is
// examined.
func (m *ChangeMonitor) CheckResources() []models.ChangeEvent {
	defer m.passes.Add(1)

	var events []models.ChangeEvent
	for _, resource := range m.Resources() {
		obs, err := m.classify(resource)
		if err != nil {
			m.reportError(resource.Path, err)
			continue
		}
		if obs.kind == 0 {
			continue
		}
		if obs.kind != models.Deleted {
			m.update(obs.resource)
		}

		event := models.NewChangeEvent(obs.kind, resource.Path)
		m.notifyListeners(event)
		events = append(events, event)
	}
	return events
}

// classify decides which change, if any, happened to resource. Precedence is
// deleted, then size, then contents. A length mismatch is reported as a size
// change without comparing digests. A path that no longer names a regular
// file, or whose parent is no longer a directory, counts as deleted.
func (m *ChangeMonitor) classify(resource models.TrackedResource) (observation, error) {
	info, err := os.Stat(resource.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return observation{kind: models.Deleted, resource: resource}, nil
		}
		return observation{}, &checksum.IOError{Op: "stat", Path: resource.Path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return observation{kind: models.Deleted, resource: resource}, nil
	}

	sum, err := m.hasher.Digest(resource.Path)
	if err != nil {
		return observation{}, err
	}

	current := models.TrackedResource{
		Path:   resource.Path,
		Length: sum.Length,
		Digest: sum.Hex,
	}

	switch {
	case info.Size() != resource.Length, sum.Length != resource.Length:
		return observation{kind: models.SizeChanged, resource: current}, nil
	case sum.Hex != resource.Digest:
		return observation{kind: models.ContentsChanged, resource: current}, nil
	}
	return observation{}, nil
}

func (m *ChangeMonitor) update(resource models.TrackedResource) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// skip resources untracked while the pass was running
	if i, ok := m.index[resource.Path]; ok {
		m.resources[i] = resource
	}
}

func (m *ChangeMonitor) notifyListeners(event models.ChangeEvent) {
	for _, listener := range m.Listeners() {
		if err := dispatch(listener, event); err != nil {
			m.listenerFailures.Add(1)
			m.reportError(event.Path, err)
		}
	}
	m.eventsDispatched.Add(1)
}

func dispatch(listener Listener, event models.ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w handling %s: %v", ErrListenerPanic, event.Kind, r)
		}
	}()

	if err := listener.Handle(event); err != nil {
		return fmt.Errorf("listener failed handling %s: %w", event.Kind, err)
	}
	return nil
}

func (m *ChangeMonitor) reportError(path string, err error) {
	m.checkErrors.Add(1)

	if m.onError != nil {
		m.onError(path, err)
		return
	}
	m.logger.Errorw("Resource check failed", "path", path, "error", err)
}

func (m *ChangeMonitor) Stats() Stats {
	m.mutex.RLock()
	resources, listeners := len(m.resources), len(m.listeners)
	m.mutex.RUnlock()

	return Stats{
		Passes:           m.passes.Load(),
		EventsDispatched: m.eventsDispatched.Load(),
		Errors:           m.checkErrors.Load(),
		ListenerFailures: m.listenerFailures.Load(),
		Resources:        resources,
		Listeners:        listeners,
	}
}
