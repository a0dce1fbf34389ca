package models

import (
	"fmt"
	"time"
)

type EventKind int

const (
	SizeChanged EventKind = iota + 1
	ContentsChanged
	Deleted
)

var eventKindNames = map[EventKind]string{
	SizeChanged:     "size_changed",
	ContentsChanged: "contents_changed",
	Deleted:         "deleted",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

func ParseEventKind(s string) (EventKind, error) {
	for kind, name := range eventKindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	kind, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// TrackedResource is the cached baseline for one monitored path. Length and
// Digest always come from the same observation.
type TrackedResource struct {
	Path   string `json:"path"`
	Length int64  `json:"length"`
	Digest string `json:"digest"`
}

type ChangeEvent struct {
	ID         int64     `json:"id,omitempty"`
	Kind       EventKind `json:"kind"`
	Path       string    `json:"path"`
	DetectedAt time.Time `json:"detected_at"`
}

func NewChangeEvent(kind EventKind, path string) ChangeEvent {
	return ChangeEvent{
		Kind:       kind,
		Path:       path,
		DetectedAt: time.Now().UTC(),
	}
}
