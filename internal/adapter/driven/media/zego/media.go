package zego

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/port"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidToken = errors.New("room token is missing or malformed")
	ErrSessionEnded = errors.New("room session already ended")
)

// Transport implements port.MediaTransport. Media itself flows through
// the hosted SDK on the client; this side only vouches for the token
// and tracks the open session handle.
type Transport struct{}

func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) JoinRoom(ctx context.Context, token, room string, identity domain.ChatID, displayName string) (port.RoomSession, error) {
	if !strings.HasPrefix(token, tokenPrefix) {
		return nil, ErrInvalidToken
	}
	if room == "" {
		return nil, ErrMissingRoom
	}
	log.Info().Str("room", room).Str("uid", identity.String()).Str("name", displayName).Msg("Media room joined")
	return &session{room: room, identity: identity}, nil
}

type session struct {
	room     string
	identity domain.ChatID

	mu   sync.Mutex
	done bool
}

func (s *session) Room() string {
	return s.room
}

func (s *session) Leave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSessionEnded
	}
	s.done = true
	log.Info().Str("room", s.room).Str("uid", s.identity.String()).Msg("Media room left")
	return nil
}
