package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caic-labs/caic/internal/adapter/driven/media/zego"
	"github.com/caic-labs/caic/internal/adapter/driven/persistence/bolt"
	"github.com/caic-labs/caic/internal/adapter/driven/store/memory"
	"github.com/caic-labs/caic/internal/config"
	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/service"
	"github.com/gorilla/websocket"
)

type testServer struct {
	srv   *httptest.Server
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tmp := t.TempDir()
	db, err := bolt.Open(filepath.Join(tmp, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.UploadDir = filepath.Join(tmp, "uploads")
	cfg.ZegoAppID = 42
	cfg.ZegoSecret = "0123456789abcdef0123456789abcdef"

	tokens, err := zego.NewTokenIssuer(cfg.ZegoAppID, cfg.ZegoSecret)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	store := memory.NewStore()
	h := NewHandler(Deps{
		Directory:     bolt.NewDirectory(db),
		History:       bolt.NewHistoryStore(db),
		Store:         store,
		Tokens:        tokens,
		Presence:      service.NewPresenceService(store),
		Chat:          service.NewChatService(store),
		Notifications: service.NewNotificationService(store),
		Config:        cfg,
	})

	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store}
}

func (ts *testServer) postJSON(t *testing.T, path string, body any, cookie *http.Cookie) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (ts *testServer) get(t *testing.T, path string, cookie *http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (ts *testServer) registerAndLogin(t *testing.T, username, email string) (domain.Account, *http.Cookie) {
	t.Helper()
	resp := ts.postJSON(t, "/api/auth/register", registerRequest{
		Username: username,
		Email:    email,
		Password: "secret1",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.postJSON(t, "/api/auth/login", loginRequest{Email: email, Password: "secret1"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	account := decodeBody[domain.Account](t, resp)

	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			return account, c
		}
	}
	t.Fatal("no session cookie set at login")
	return domain.Account{}, nil
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	account, cookie := ts.registerAndLogin(t, "alice", "alice@example.com")
	if account.Username != "alice" {
		t.Errorf("account: %+v", account)
	}

	// Registration publishes the realtime profile mirror offline.
	snap, err := ts.store.Get(t.Context(), "ChatUsers/Users/"+account.ChatID.String())
	if err != nil {
		t.Fatalf("profile mirror missing: %v", err)
	}
	var profile domain.ChatProfile
	if err := snap.Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if profile.Status != domain.PresenceOffline || profile.Username != "alice" {
		t.Errorf("profile mirror: %+v", profile)
	}

	resp := ts.get(t, "/api/auth/profile", cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile: status %d", resp.StatusCode)
	}
	got := decodeBody[domain.Account](t, resp)
	if got.ID != account.ID {
		t.Errorf("profile returned wrong account")
	}

	resp = ts.get(t, "/api/auth/profile", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated profile: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.postJSON(t, "/api/auth/login", loginRequest{Email: "alice@example.com", Password: "wrong"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password login: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.postJSON(t, "/api/auth/register", registerRequest{Username: "alice", Email: "other@example.com", Password: "secret1"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate username: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCallLogAndQuery(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceCookie := ts.registerAndLogin(t, "alice", "alice@example.com")
	bob, _ := ts.registerAndLogin(t, "bob", "bob@example.com")

	start := time.Unix(1_700_000_000, 0).UTC()
	end := start.Add(42 * time.Second)
	resp := ts.postJSON(t, "/api/calls/log", logCallRequest{
		AttemptID:    "caic-chat-r1",
		Participants: []string{alice.ID.String(), bob.ID.String()},
		Initiator:    alice.ID.String(),
		CallType:     "video",
		Status:       "completed",
		StartTime:    &start,
		EndTime:      &end,
		Duration:     42,
	}, aliceCookie)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("log call: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Missing fields are rejected up front.
	resp = ts.postJSON(t, "/api/calls/log", logCallRequest{AttemptID: "x"}, aliceCookie)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("incomplete log: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.get(t, "/api/calls", aliceCookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query calls: status %d", resp.StatusCode)
	}
	entries := decodeBody[[]callHistoryView](t, resp)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != "completed" || entry.Duration != 42 {
		t.Errorf("entry: %+v", entry)
	}
	if entry.Initiator.Username != "alice" {
		t.Errorf("initiator not resolved: %+v", entry.Initiator)
	}
	names := []string{entry.Participants[0].Username, entry.Participants[1].Username}
	if !(names[0] == "alice" && names[1] == "bob") {
		t.Errorf("participants not resolved: %v", names)
	}
}

func TestRoomTokenEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, cookie := ts.registerAndLogin(t, "alice", "alice@example.com")

	resp := ts.postJSON(t, "/api/zego/token", roomTokenRequest{UserID: "u1", RoomID: "caic-chat-r"}, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token: status %d", resp.StatusCode)
	}
	body := decodeBody[roomTokenResponse](t, resp)
	if !body.Success || !strings.HasPrefix(body.KitToken, "04") {
		t.Errorf("token response: %+v", body)
	}

	resp = ts.postJSON(t, "/api/zego/token", roomTokenRequest{UserID: "u1"}, cookie)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing room: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func multipartUpload(t *testing.T, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="cat.png"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(part, "not-really-a-png")
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)
	_, cookie := ts.registerAndLogin(t, "alice", "alice@example.com")

	body, contentType := multipartUpload(t, "image/png")
	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}
	out := decodeBody[map[string]string](t, resp)
	if !strings.Contains(out["filePath"], "/uploads/") || !strings.HasSuffix(out["filePath"], "-cat.png") {
		t.Errorf("file path: %q", out["filePath"])
	}

	// The stored file must be served back.
	parts := strings.SplitN(out["filePath"], "/uploads/", 2)
	resp = ts.get(t, "/uploads/"+parts[1], nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("serve upload: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	body, contentType = multipartUpload(t, "application/pdf")
	req, _ = http.NewRequest(http.MethodPost, ts.srv.URL+"/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	resp, err = ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("pdf upload: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWebsocketBridge(t *testing.T) {
	ts := newTestServer(t)
	account, cookie := ts.registerAndLogin(t, "alice", "alice@example.com")

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Cookie", cookie.String())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	// Connecting flips presence online.
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := ts.store.Get(t.Context(), "ChatUsers/Users/"+account.ChatID.String())
		if err == nil {
			var profile domain.ChatProfile
			if err := snap.Decode(&profile); err == nil && profile.Status == domain.PresenceOnline {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("presence never flipped online")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.WriteJSON(wsCommand{Op: "subscribe", Path: "Chats/room1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := conn.WriteJSON(wsCommand{Op: "set", Path: "Chats/room1/m1", Value: json.RawMessage(`{"message":"hi"}`)}); err != nil {
		t.Fatalf("set: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Event != "snapshot" || ev.Path != "Chats/room1/m1" || !ev.Exists {
		t.Errorf("event: %+v", ev)
	}

	// Unknown ops come back as error events, not closed sockets.
	if err := conn.WriteJSON(wsCommand{Op: "bogus"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if ev.Event != "error" {
		t.Errorf("expected error event, got %+v", ev)
	}
}

func TestWSRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("unauthenticated ws dial must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 handshake response, got %+v", resp)
	}
}
