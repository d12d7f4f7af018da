package service

import (
	"context"
	"testing"
	"time"

	"github.com/caic-labs/caic/internal/adapter/driven/store/memory"
	"github.com/caic-labs/caic/internal/core/domain"
)

func chatFixtures() (domain.Account, domain.ChatProfile) {
	sender := domain.Account{
		ID:       domain.NewAccountID(),
		Username: "alice",
		Email:    "alice@example.com",
		ChatID:   domain.ChatID("aaa"),
	}
	peer := domain.ChatProfile{
		Username:  "bob",
		Email:     "bob@example.com",
		UID:       domain.ChatID("bbb"),
		AccountID: domain.NewAccountID(),
		Status:    domain.PresenceOnline,
	}
	return sender, peer
}

func TestSendTextUpdatesBothChatLists(t *testing.T) {
	store := memory.NewStore()
	svc := NewChatService(store)
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	ctx := context.Background()
	sender, peer := chatFixtures()

	if err := svc.SendText(ctx, sender, peer, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := svc.SendText(ctx, sender, peer, "there"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Sender side: entry rewritten, no unread counter.
	snap, err := store.Get(ctx, chatListKey(sender.ChatID, peer.UID))
	if err != nil {
		t.Fatalf("sender chat list: %v", err)
	}
	var senderEntry domain.ChatSummary
	if err := snap.Decode(&senderEntry); err != nil {
		t.Fatal(err)
	}
	if senderEntry.LastMessage != "there" || senderEntry.PeerName != "bob" {
		t.Errorf("sender entry: %+v", senderEntry)
	}
	if senderEntry.UnreadCount != 0 {
		t.Errorf("sender unread: got %d", senderEntry.UnreadCount)
	}

	// Receiver side: merged entry with the unread counter bumped once
	// per message.
	snap, err = store.Get(ctx, chatListKey(peer.UID, sender.ChatID))
	if err != nil {
		t.Fatalf("receiver chat list: %v", err)
	}
	var receiverEntry domain.ChatSummary
	if err := snap.Decode(&receiverEntry); err != nil {
		t.Fatal(err)
	}
	if receiverEntry.UnreadCount != 2 {
		t.Errorf("receiver unread: got %d, want 2", receiverEntry.UnreadCount)
	}
	if receiverEntry.PeerID != sender.ChatID || receiverEntry.PeerName != "alice" {
		t.Errorf("receiver entry: %+v", receiverEntry)
	}

	if err := svc.MarkRead(ctx, peer.UID, sender.ChatID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	snap, _ = store.Get(ctx, chatListKey(peer.UID, sender.ChatID))
	if err := snap.Decode(&receiverEntry); err != nil {
		t.Fatal(err)
	}
	if receiverEntry.UnreadCount != 0 {
		t.Errorf("unread after mark read: got %d", receiverEntry.UnreadCount)
	}
}

func TestHistoryOrderedOldestFirst(t *testing.T) {
	store := memory.NewStore()
	svc := NewChatService(store)
	ctx := context.Background()
	sender, peer := chatFixtures()

	ts := time.Unix(1_700_000_000, 0)
	for _, body := range []string{"one", "two", "three"} {
		svc.now = func() time.Time { return ts }
		if err := svc.SendText(ctx, sender, peer, body); err != nil {
			t.Fatalf("send %q: %v", body, err)
		}
		ts = ts.Add(time.Second)
	}

	msgs, err := svc.History(ctx, peer.UID, sender.ChatID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Body != "one" || msgs[2].Body != "three" {
		t.Errorf("order: %q .. %q", msgs[0].Body, msgs[2].Body)
	}
}

func TestSendImageCarriesMediaAndPreview(t *testing.T) {
	store := memory.NewStore()
	svc := NewChatService(store)
	ctx := context.Background()
	sender, peer := chatFixtures()

	err := svc.SendImage(ctx, sender, peer, "http://host/uploads/1-cat.png", "cat.png", "look")
	if err != nil {
		t.Fatalf("send image: %v", err)
	}
	if err := svc.SendText(ctx, sender, peer, ""); err == nil {
		t.Error("empty text message must be rejected")
	}
	if err := svc.SendImage(ctx, sender, peer, "", "x", ""); err == nil {
		t.Error("image without url must be rejected")
	}

	msgs, err := svc.History(ctx, sender.ChatID, peer.UID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Type != domain.MessageImage || msg.MediaURL == "" || msg.FileName != "cat.png" {
		t.Errorf("image message: %+v", msg)
	}

	snap, _ := store.Get(ctx, chatListKey(sender.ChatID, peer.UID))
	var entry domain.ChatSummary
	if err := snap.Decode(&entry); err != nil {
		t.Fatal(err)
	}
	if entry.LastMessage != "Image (look)" {
		t.Errorf("preview: got %q", entry.LastMessage)
	}
}

func TestSubscribeStreamsNewMessages(t *testing.T) {
	store := memory.NewStore()
	svc := NewChatService(store)
	ctx := context.Background()
	sender, peer := chatFixtures()

	snaps, cancel, err := svc.Subscribe(ctx, peer.UID, sender.ChatID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := svc.SendText(ctx, sender, peer, "ping"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case snap := <-snaps:
		var msg domain.Message
		if err := snap.Decode(&msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Body != "ping" {
			t.Errorf("body: got %q", msg.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot received")
	}
}
