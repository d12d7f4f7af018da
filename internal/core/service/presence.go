package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/port"
	"github.com/rs/zerolog/log"
)

const chatUsersPath = "ChatUsers/Users"

func profileKey(id domain.ChatID) string {
	return chatUsersPath + "/" + id.String()
}

func decodeRaw(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// PresenceService maintains the per-user profile mirror in the realtime
// store, including the online/offline status peers watch.
type PresenceService struct {
	store port.RealtimeStore
}

func NewPresenceService(store port.RealtimeStore) *PresenceService {
	return &PresenceService{store: store}
}

// Publish writes the full profile record, done once at registration.
func (s *PresenceService) Publish(ctx context.Context, profile domain.ChatProfile) error {
	if err := s.store.Set(ctx, profileKey(profile.UID), profile); err != nil {
		return fmt.Errorf("publish chat profile: %w", err)
	}
	return nil
}

func (s *PresenceService) SetOnline(ctx context.Context, id domain.ChatID) error {
	return s.setStatus(ctx, id, domain.PresenceOnline)
}

func (s *PresenceService) SetOffline(ctx context.Context, id domain.ChatID) error {
	return s.setStatus(ctx, id, domain.PresenceOffline)
}

func (s *PresenceService) setStatus(ctx context.Context, id domain.ChatID, status domain.PresenceStatus) error {
	err := s.store.Update(ctx, profileKey(id), map[string]any{"status": string(status)})
	if err != nil {
		return fmt.Errorf("set presence %s: %w", status, err)
	}
	log.Debug().Str("uid", id.String()).Str("status", string(status)).Msg("Presence updated")
	return nil
}

// Profile resolves a peer's realtime profile.
func (s *PresenceService) Profile(ctx context.Context, id domain.ChatID) (domain.ChatProfile, error) {
	snap, err := s.store.Get(ctx, profileKey(id))
	if err != nil {
		return domain.ChatProfile{}, fmt.Errorf("read chat profile: %w", err)
	}
	var profile domain.ChatProfile
	if err := snap.Decode(&profile); err != nil {
		return domain.ChatProfile{}, fmt.Errorf("decode chat profile: %w", err)
	}
	return profile, nil
}

// Watch streams profile snapshots for a peer, presence flips included.
func (s *PresenceService) Watch(ctx context.Context, id domain.ChatID) (<-chan port.Snapshot, func(), error) {
	return s.store.Subscribe(ctx, profileKey(id))
}
