package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/caic-labs/caic/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Store implements port.RealtimeStore in process: a path-keyed document
// map with change fan-out to subscribers. It stands in for the hosted
// realtime database; the websocket bridge exposes the same semantics to
// remote clients.
type Store struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
	subs map[*subscriber]struct{}
}

type subscriber struct {
	path string
	ch   chan port.Snapshot
	once sync.Once
}

func NewStore() *Store {
	return &Store{
		data: make(map[string]json.RawMessage),
		subs: make(map[*subscriber]struct{}),
	}
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value at %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = raw
	s.notifyLocked(path, raw, true)
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := make(map[string]any)
	if raw, ok := s.data[path]; ok {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("existing value at %s is not an object: %w", path, err)
		}
	}
	for k, v := range fields {
		obj[k] = v
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode merged value at %s: %w", path, err)
	}
	s.data[path] = raw
	s.notifyLocked(path, raw, true)
	return nil
}

func (s *Store) Increment(ctx context.Context, path, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := make(map[string]any)
	if raw, ok := s.data[path]; ok {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("existing value at %s is not an object: %w", path, err)
		}
	}
	var current int64
	if v, ok := obj[field]; ok {
		num, ok := v.(float64)
		if !ok {
			return fmt.Errorf("field %s at %s is not numeric", field, path)
		}
		current = int64(num)
	}
	obj[field] = current + delta

	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode merged value at %s: %w", path, err)
	}
	s.data[path] = raw
	s.notifyLocked(path, raw, true)
	return nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[path]; !ok {
		return nil
	}
	delete(s.data, path)
	s.notifyLocked(path, nil, false)
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (port.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[path]
	if !ok {
		return port.Snapshot{Path: path}, port.ErrNotFound
	}
	return port.Snapshot{Path: path, Data: cloneRaw(raw), Exists: true}, nil
}

func (s *Store) List(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := make(map[string]json.RawMessage)
	for path, raw := range s.data {
		rest, ok := strings.CutPrefix(path, prefix+"/")
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		children[rest] = cloneRaw(raw)
	}
	return children, nil
}

// Subscribe watches path and its subtree. The returned cancel releases
// the subscription and closes the channel; dropping snapshots on a full
// channel is preferred over blocking a writer.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan port.Snapshot, func(), error) {
	sub := &subscriber{
		path: path,
		ch:   make(chan port.Snapshot, 32),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

func (s *Store) notifyLocked(path string, raw json.RawMessage, exists bool) {
	snap := port.Snapshot{Path: path, Data: cloneRaw(raw), Exists: exists}
	for sub := range s.subs {
		if path != sub.path && !strings.HasPrefix(path, sub.path+"/") {
			continue
		}
		select {
		case sub.ch <- snap:
		default:
			log.Warn().Str("path", sub.path).Msg("Subscriber channel full, dropping snapshot")
		}
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
