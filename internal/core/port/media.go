package port

import (
	"context"
	"time"

	"github.com/caic-labs/caic/internal/core/domain"
)

// RoomSession is a live media session handle, opaque beyond leaving.
type RoomSession interface {
	Room() string
	Leave() error
}

// MediaTransport establishes the actual audio/video session; everything
// past join/leave belongs to the SDK.
type MediaTransport interface {
	JoinRoom(ctx context.Context, token, room string, identity domain.ChatID, displayName string) (RoomSession, error)
}

// TokenIssuer produces the opaque credential the media transport
// consumes at room-join time.
type TokenIssuer interface {
	RoomToken(userID, roomID string, validity time.Duration) (string, error)
}
