package port

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Snapshot is one observed state of a store key. Exists is false when
// the notification reports a removal.
type Snapshot struct {
	Path   string
	Data   json.RawMessage
	Exists bool
}

func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return ErrNotFound
	}
	return json.Unmarshal(s.Data, v)
}

// RealtimeStore is the externally hosted shared store coordinating the
// two sides of a call and carrying chat, presence and notification
// state. Keys are slash-separated paths. Subscribe watches a path and
// everything under it; delivery order relative to concurrent local
// mutations is not guaranteed, so consumers must treat snapshots that
// no longer match their local state as no-ops.
type RealtimeStore interface {
	Set(ctx context.Context, path string, value any) error
	// Update merges the given fields into the object at path; absent
	// objects are created.
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (Snapshot, error)
	// Increment atomically adds delta to a numeric field of the object
	// at path, treating a missing field as zero.
	Increment(ctx context.Context, path, field string, delta int64) error
	// List returns the direct children of a path prefix, keyed by the
	// child path component.
	List(ctx context.Context, prefix string) (map[string]json.RawMessage, error)
	// Subscribe returns a snapshot stream for path and its subtree plus
	// a cancel function releasing the subscription. The channel closes
	// after cancel.
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error)
}
