package domain

type NotificationKind string

const (
	NotifyMessage    NotificationKind = "message"
	NotifyMissedCall NotificationKind = "missed_call"
)

// Notification is one entry in a user's feed under Notifications/{uid}.
type Notification struct {
	ID          string           `json:"id,omitempty"`
	Kind        NotificationKind `json:"kind"`
	FromID      ChatID           `json:"from"`
	FromName    string           `json:"fromName"`
	Body        string           `json:"body"`
	TimestampMS int64            `json:"timestamp"`
	IsRead      bool             `json:"isRead"`
}
