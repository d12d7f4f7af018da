package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters long")
)

// Account is the durable directory record behind a participant.
type Account struct {
	ID        AccountID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ChatID    ChatID    `json:"uid"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAccountRequest carries registration input before hashing.
type NewAccountRequest struct {
	Username string
	Email    string
	Password string
}

func (r *NewAccountRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return ErrUsernameRequired
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if !emailPattern.MatchString(r.Email) {
		return ErrInvalidEmail
	}
	if len(r.Password) < 6 {
		return ErrPasswordTooShort
	}
	return nil
}

// ChatProfile is the realtime-store mirror of an account, published
// under ChatUsers/Users/{uid} so peers can resolve names and presence
// without touching the directory.
type ChatProfile struct {
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	UID       ChatID         `json:"uid"`
	AccountID AccountID      `json:"accountId"`
	Status    PresenceStatus `json:"status"`
}
