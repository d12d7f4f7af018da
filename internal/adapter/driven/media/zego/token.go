// Package zego adapts the video-conferencing SDK: token04 credential
// issuance and the room session handle the coordinator holds while a
// call is live.
package zego

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

const tokenPrefix = "04"

var (
	ErrBadSecret    = errors.New("server secret must be exactly 32 bytes")
	ErrMissingUser  = errors.New("user id is required")
	ErrMissingRoom  = errors.New("room id is required")
	ErrMissingAppID = errors.New("app id is required")
)

// tokenClaims is the plaintext encrypted into a token04 credential.
// Field names are fixed by the scheme.
type tokenClaims struct {
	AppID   uint32 `json:"app_id"`
	UserID  string `json:"user_id"`
	Nonce   string `json:"nonce"`
	CTime   int64  `json:"ctime"`
	Expire  int64  `json:"expire"`
	Payload string `json:"payload"`
}

// tokenEnvelope is the outer structure carried after the "04" marker.
type tokenEnvelope struct {
	Ver     string `json:"ver"`
	IV      string `json:"iv"`
	Content string `json:"content"`
}

// roomPayload grants login to a single room without publish rights;
// the SDK reads privilege key "1" as login and "2" as publish.
type roomPayload struct {
	RoomID       string         `json:"room_id"`
	Privilege    map[string]int `json:"privilege"`
	StreamIDList []string       `json:"stream_id_list"`
}

// TokenIssuer produces token04 credentials: JSON claims encrypted with
// AES-256-GCM under the shared server secret, wrapped base64 with a
// version envelope. Stateless aside from randomness and the clock,
// both injectable for tests.
type TokenIssuer struct {
	appID  uint32
	secret []byte
	now    func() time.Time
	rand   io.Reader
}

type TokenOption func(*TokenIssuer)

func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) { t.now = now }
}

func WithTokenRand(r io.Reader) TokenOption {
	return func(t *TokenIssuer) { t.rand = r }
}

func NewTokenIssuer(appID uint32, secret string, opts ...TokenOption) (*TokenIssuer, error) {
	if appID == 0 {
		return nil, ErrMissingAppID
	}
	if len(secret) != 32 {
		return nil, ErrBadSecret
	}
	t := &TokenIssuer{
		appID:  appID,
		secret: []byte(secret),
		now:    time.Now,
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RoomToken issues a credential admitting userID into roomID for the
// given validity window.
func (t *TokenIssuer) RoomToken(userID, roomID string, validity time.Duration) (string, error) {
	if userID == "" {
		return "", ErrMissingUser
	}
	if roomID == "" {
		return "", ErrMissingRoom
	}

	payload, err := json.Marshal(roomPayload{
		RoomID:    roomID,
		Privilege: map[string]int{"1": 1, "2": 0},
	})
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}

	nonce, err := t.randomNonce()
	if err != nil {
		return "", err
	}
	now := t.now().Unix()
	claims := tokenClaims{
		AppID:   t.appID,
		UserID:  userID,
		Nonce:   nonce,
		CTime:   now,
		Expire:  now + int64(validity/time.Second),
		Payload: string(payload),
	}
	plaintext, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode token claims: %w", err)
	}

	block, err := aes.NewCipher(t.secret)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(t.rand, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)

	envelope, err := json.Marshal(tokenEnvelope{
		Ver:     "1",
		IV:      base64.StdEncoding.EncodeToString(iv),
		Content: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", fmt.Errorf("encode token envelope: %w", err)
	}
	return tokenPrefix + base64.StdEncoding.EncodeToString(envelope), nil
}

func (t *TokenIssuer) randomNonce() (string, error) {
	var buf [8]byte
	if _, err := io.ReadFull(t.rand, buf[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(buf[:]), 10), nil
}
