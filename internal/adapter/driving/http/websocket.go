package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/port"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsCommand struct {
	Op     string          `json:"op"`
	Path   string          `json:"path"`
	Value  json.RawMessage `json:"value,omitempty"`
	Fields map[string]any  `json:"fields,omitempty"`
}

type wsEvent struct {
	Event   string          `json:"event"`
	Path    string          `json:"path,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Exists  bool            `json:"exists"`
	Message string          `json:"message,omitempty"`
}

// wsClient is one connected realtime client with its open
// subscriptions. Writes are serialized; gorilla allows one concurrent
// writer only.
type wsClient struct {
	conn    *websocket.Conn
	account domain.Account

	writeMu sync.Mutex
	subs    map[string]func()
}

func (c *wsClient) writeEvent(ev wsEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(ev)
}

func (c *wsClient) closeSubs() {
	for path, cancel := range c.subs {
		cancel()
		delete(c.subs, path)
	}
}

// ServeWS bridges the realtime store to a websocket client: the client
// issues set/update/remove/get/subscribe commands and receives snapshot
// events. The connection doubles as the presence signal; going online
// on connect, offline when the socket drops, which is also what turns a
// crashed caller into a dangling record the counterpart has to clear.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	account, _ := accountFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &wsClient{
		conn:    conn,
		account: account,
		subs:    make(map[string]func()),
	}

	l := log.With().Str("uid", account.ChatID.String()).Logger()
	l.Info().Msg("Realtime client connected")

	if err := h.presence.SetOnline(r.Context(), account.ChatID); err != nil {
		l.Error().Err(err).Msg("Failed to set presence online")
	}
	defer func() {
		client.closeSubs()
		if err := h.presence.SetOffline(r.Context(), account.ChatID); err != nil {
			l.Error().Err(err).Msg("Failed to set presence offline")
		}
		conn.Close()
		l.Info().Msg("Realtime client disconnected")
	}()

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}
		if err := h.dispatch(r, client, cmd); err != nil {
			if writeErr := client.writeEvent(wsEvent{Event: "error", Path: cmd.Path, Message: err.Error()}); writeErr != nil {
				break
			}
		}
	}
}

func (h *Handler) dispatch(r *http.Request, client *wsClient, cmd wsCommand) error {
	ctx := r.Context()
	switch cmd.Op {
	case "set":
		return h.store.Set(ctx, cmd.Path, cmd.Value)
	case "update":
		return h.store.Update(ctx, cmd.Path, cmd.Fields)
	case "remove":
		return h.store.Remove(ctx, cmd.Path)
	case "get":
		snap, err := h.store.Get(ctx, cmd.Path)
		if err != nil && !errors.Is(err, port.ErrNotFound) {
			return err
		}
		return client.writeEvent(wsEvent{Event: "snapshot", Path: snap.Path, Data: snap.Data, Exists: snap.Exists})
	case "subscribe":
		if _, ok := client.subs[cmd.Path]; ok {
			return nil
		}
		snaps, cancel, err := h.store.Subscribe(ctx, cmd.Path)
		if err != nil {
			return err
		}
		client.subs[cmd.Path] = cancel
		go func() {
			for snap := range snaps {
				ev := wsEvent{Event: "snapshot", Path: snap.Path, Data: snap.Data, Exists: snap.Exists}
				if err := client.writeEvent(ev); err != nil {
					return
				}
			}
		}()
		return nil
	case "unsubscribe":
		if cancel, ok := client.subs[cmd.Path]; ok {
			cancel()
			delete(client.subs, cmd.Path)
		}
		return nil
	default:
		return errors.New("unknown op " + cmd.Op)
	}
}
