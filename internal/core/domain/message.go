package domain

import (
	"errors"
	"sort"
	"strings"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

// Message is one chat message as stored under Chats/{room}/{id}.
type Message struct {
	Body        string      `json:"message"`
	SenderID    ChatID      `json:"sender"`
	ReceiverID  ChatID      `json:"receiver"`
	TimestampMS int64       `json:"timestamp"`
	Type        MessageType `json:"messageType"`
	MediaURL    string      `json:"mediaUrl,omitempty"`
	FileName    string      `json:"fileName,omitempty"`
}

func NewTextMessage(sender, receiver ChatID, body string) (Message, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, errors.New("message body cannot be empty")
	}
	return Message{
		Body:       body,
		SenderID:   sender,
		ReceiverID: receiver,
		Type:       MessageText,
	}, nil
}

// NewImageMessage carries an uploaded image by URL; the body is an
// optional caption.
func NewImageMessage(sender, receiver ChatID, url, fileName, caption string) (Message, error) {
	if url == "" {
		return Message{}, errors.New("image message requires a media url")
	}
	return Message{
		Body:       caption,
		SenderID:   sender,
		ReceiverID: receiver,
		Type:       MessageImage,
		MediaURL:   url,
		FileName:   fileName,
	}, nil
}

// ChatRoomID derives the shared room key for a participant pair. Both
// sides must compute the same key, so the pair is sorted.
func ChatRoomID(a, b ChatID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return ids[0] + "-" + ids[1]
}

// ChatSummary is one entry in a user's chat list: who the conversation
// is with and what arrived last.
type ChatSummary struct {
	PeerID      ChatID `json:"uid"`
	PeerName    string `json:"username"`
	PeerEmail   string `json:"email,omitempty"`
	LastMessage string `json:"lastMessage"`
	TimestampMS int64  `json:"timestamp"`
	UnreadCount int64  `json:"unreadCount,omitempty"`
}
