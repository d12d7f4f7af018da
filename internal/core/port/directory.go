package port

import (
	"context"
	"errors"

	"github.com/caic-labs/caic/internal/core/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email is already registered")
	ErrUsernameTaken   = errors.New("username is taken")
	ErrBadCredentials  = errors.New("invalid email or password")
)

// AccountDirectory resolves participants to durable accounts and
// display names.
type AccountDirectory interface {
	Create(ctx context.Context, req domain.NewAccountRequest) (domain.Account, error)
	Authenticate(ctx context.Context, email, password string) (domain.Account, error)
	ResolveChatID(ctx context.Context, id domain.ChatID) (domain.Account, error)
	ResolveAccount(ctx context.Context, id domain.AccountID) (domain.Account, error)
	UpdateProfile(ctx context.Context, id domain.AccountID, username, email string) (domain.Account, error)
}

// HistoryLog is the append-only record of terminated calls. Append is
// idempotent per attempt: a second terminal write for the same
// AttemptID is dropped, which is what keeps the two sides of a
// withdrawn call from double-logging it.
type HistoryLog interface {
	Append(ctx context.Context, entry domain.CallHistoryEntry) error
	ByParticipant(ctx context.Context, id domain.AccountID) ([]domain.CallHistoryEntry, error)
}
