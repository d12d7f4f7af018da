package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/port"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const notificationsPath = "Notifications"

func notificationsKey(id domain.ChatID) string {
	return notificationsPath + "/" + id.String()
}

// NotificationService keeps per-user feeds in the realtime store.
type NotificationService struct {
	store port.RealtimeStore
	now   func() time.Time
}

func NewNotificationService(store port.RealtimeStore) *NotificationService {
	return &NotificationService{store: store, now: time.Now}
}

// Push appends an entry to the target's feed and returns its id.
func (s *NotificationService) Push(ctx context.Context, to domain.ChatID, n domain.Notification) (string, error) {
	id := uuid.New().String()
	n.ID = id
	if n.TimestampMS == 0 {
		n.TimestampMS = s.now().UnixMilli()
	}
	if err := s.store.Set(ctx, notificationsKey(to)+"/"+id, n); err != nil {
		return "", fmt.Errorf("push notification: %w", err)
	}
	return id, nil
}

// Feed returns the user's notifications, most recent first, plus the
// unread count.
func (s *NotificationService) Feed(ctx context.Context, owner domain.ChatID) ([]domain.Notification, int, error) {
	children, err := s.store.List(ctx, notificationsKey(owner))
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	feed := make([]domain.Notification, 0, len(children))
	unread := 0
	for key, raw := range children {
		var n domain.Notification
		if err := decodeRaw(raw, &n); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Undecodable notification, skipping")
			continue
		}
		if !n.IsRead {
			unread++
		}
		feed = append(feed, n)
	}
	sort.Slice(feed, func(i, j int) bool { return feed[i].TimestampMS > feed[j].TimestampMS })
	return feed, unread, nil
}

// MarkAllRead flips every unread entry on the owner's feed.
func (s *NotificationService) MarkAllRead(ctx context.Context, owner domain.ChatID) error {
	feed, unread, err := s.Feed(ctx, owner)
	if err != nil {
		return err
	}
	if unread == 0 {
		return nil
	}
	for _, n := range feed {
		if n.IsRead {
			continue
		}
		key := notificationsKey(owner) + "/" + n.ID
		if err := s.store.Update(ctx, key, map[string]any{"isRead": true}); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
	}
	return nil
}

// Subscribe streams feed snapshots for the owner.
func (s *NotificationService) Subscribe(ctx context.Context, owner domain.ChatID) (<-chan port.Snapshot, func(), error) {
	return s.store.Subscribe(ctx, notificationsKey(owner))
}
