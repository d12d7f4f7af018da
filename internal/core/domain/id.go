package domain

import (
	"github.com/google/uuid"
)

// AccountID is the durable directory identifier used for call history
// and long-term identity.
type AccountID uuid.UUID

// ChatID is the transport-layer identity that keys the realtime store.
// It is distinct from AccountID on purpose: history entries outlive
// transport identities.
type ChatID string

func NewAccountID() AccountID {
	return AccountID(uuid.New())
}

func (id AccountID) String() string {
	return uuid.UUID(id).String()
}

func (id AccountID) IsZero() bool {
	return uuid.UUID(id) == uuid.UUID{}
}

func (id AccountID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = AccountID(parsed)
	return nil
}

func ParseAccountID(s string) (AccountID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(id), nil
}

func NewChatID() ChatID {
	return ChatID(uuid.New().String())
}

func (id ChatID) String() string {
	return string(id)
}

// NewRoomName generates a globally unique media-room token. A fresh one
// is minted per call attempt.
func NewRoomName() string {
	return "caic-chat-" + uuid.New().String()
}

type MessageID string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func (id MessageID) String() string {
	return string(id)
}
