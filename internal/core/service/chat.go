package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/port"
	"github.com/rs/zerolog/log"
)

const (
	chatsPath    = "Chats"
	chatListPath = "Chatlist"
)

func chatRoomKey(room string) string {
	return chatsPath + "/" + room
}

func chatListKey(owner, peer domain.ChatID) string {
	return chatListPath + "/" + owner.String() + "/" + peer.String()
}

// ChatService stores 1:1 messages in the realtime store and keeps both
// participants' chat lists in sync: the sender's entry is rewritten,
// the receiver's is merged with an unread-count increment.
type ChatService struct {
	store port.RealtimeStore
	now   func() time.Time
}

func NewChatService(store port.RealtimeStore) *ChatService {
	return &ChatService{store: store, now: time.Now}
}

func (s *ChatService) SendText(ctx context.Context, sender domain.Account, peer domain.ChatProfile, body string) error {
	msg, err := domain.NewTextMessage(sender.ChatID, peer.UID, body)
	if err != nil {
		return err
	}
	return s.deliver(ctx, sender, peer, msg, body)
}

// SendImage attaches an already uploaded image by URL; body is the
// optional caption.
func (s *ChatService) SendImage(ctx context.Context, sender domain.Account, peer domain.ChatProfile, url, fileName, caption string) error {
	msg, err := domain.NewImageMessage(sender.ChatID, peer.UID, url, fileName, caption)
	if err != nil {
		return err
	}
	preview := "Image"
	if caption != "" {
		preview = "Image (" + caption + ")"
	}
	return s.deliver(ctx, sender, peer, msg, preview)
}

func (s *ChatService) deliver(ctx context.Context, sender domain.Account, peer domain.ChatProfile, msg domain.Message, preview string) error {
	now := s.now().UnixMilli()
	msg.TimestampMS = now
	room := domain.ChatRoomID(sender.ChatID, peer.UID)

	msgKey := chatRoomKey(room) + "/" + domain.NewMessageID().String()
	if err := s.store.Set(ctx, msgKey, msg); err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	senderEntry := domain.ChatSummary{
		PeerID:      peer.UID,
		PeerName:    peer.Username,
		LastMessage: preview,
		TimestampMS: now,
	}
	if err := s.store.Set(ctx, chatListKey(sender.ChatID, peer.UID), senderEntry); err != nil {
		return fmt.Errorf("update sender chat list: %w", err)
	}

	receiverFields := map[string]any{
		"uid":         sender.ChatID.String(),
		"username":    sender.Username,
		"email":       sender.Email,
		"lastMessage": preview,
		"timestamp":   now,
	}
	if err := s.store.Update(ctx, chatListKey(peer.UID, sender.ChatID), receiverFields); err != nil {
		return fmt.Errorf("update receiver chat list: %w", err)
	}
	if err := s.store.Increment(ctx, chatListKey(peer.UID, sender.ChatID), "unreadCount", 1); err != nil {
		return fmt.Errorf("bump unread count: %w", err)
	}

	log.Debug().Str("room", room).Str("type", string(msg.Type)).Msg("Message delivered")
	return nil
}

// History returns the conversation between the two participants,
// oldest first.
func (s *ChatService) History(ctx context.Context, a, b domain.ChatID) ([]domain.Message, error) {
	room := domain.ChatRoomID(a, b)
	children, err := s.store.List(ctx, chatRoomKey(room))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(children))
	for key, raw := range children {
		var msg domain.Message
		if err := decodeRaw(raw, &msg); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Undecodable stored message, skipping")
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].TimestampMS < msgs[j].TimestampMS })
	return msgs, nil
}

// Subscribe streams message snapshots for the conversation.
func (s *ChatService) Subscribe(ctx context.Context, a, b domain.ChatID) (<-chan port.Snapshot, func(), error) {
	room := domain.ChatRoomID(a, b)
	return s.store.Subscribe(ctx, chatRoomKey(room))
}

// MarkRead clears the unread counter on the owner's chat list entry.
func (s *ChatService) MarkRead(ctx context.Context, owner, peer domain.ChatID) error {
	return s.store.Update(ctx, chatListKey(owner, peer), map[string]any{"unreadCount": 0})
}

// ChatList returns the owner's conversations, most recent first.
func (s *ChatService) ChatList(ctx context.Context, owner domain.ChatID) ([]domain.ChatSummary, error) {
	children, err := s.store.List(ctx, chatListPath+"/"+owner.String())
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	entries := make([]domain.ChatSummary, 0, len(children))
	for key, raw := range children {
		var entry domain.ChatSummary
		if err := decodeRaw(raw, &entry); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Undecodable chat list entry, skipping")
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TimestampMS > entries[j].TimestampMS })
	return entries, nil
}
