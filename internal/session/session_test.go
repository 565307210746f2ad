package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

func quiet() logpkg.Logger { return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})) }

var tokens = AuthFunc(func(_ context.Context, token string) (int64, error) {
	switch token {
	case "alice":
		return 1, nil
	case "bob":
		return 2, nil
	}
	return 0, ErrUnauthenticated
})

func newServer(t *testing.T, opts Options) (*Registry, string) {
	t.Helper()
	r := NewRegistry(tokens, opts, quiet())
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		r.Close()
		srv.Close()
	})
	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readMsg(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m map[string]any
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func login(t *testing.T, c *websocket.Conn, token string) map[string]any {
	t.Helper()
	if err := c.WriteJSON(map[string]string{"type": TypeAuth, "token": token}); err != nil {
		t.Fatalf("write: %v", err)
	}
	return readMsg(t, c)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAuthAndPush(t *testing.T) {
	r, url := newServer(t, Options{})
	c := dial(t, url)

	if got := login(t, c, "alice"); got["type"] != TypeAuthOK || got["message"] != "连接成功" {
		t.Fatalf("auth reply %v", got)
	}
	if !r.IsOnline(1) || r.OnlineCount() != 1 {
		t.Fatalf("alice should be online")
	}
	if got := login(t, c, "alice"); got["type"] != TypeAuthOK || got["message"] != "已认证" {
		t.Fatalf("second auth reply %v", got)
	}

	if !r.SendNotification(1, "hello", "body") {
		t.Fatalf("push not queued")
	}
	got := readMsg(t, c)
	if got["type"] != TypeNotification || got["title"] != "hello" || got["content"] != "body" {
		t.Fatalf("notification %v", got)
	}
	if _, ok := got["timestamp"].(float64); !ok {
		t.Fatalf("missing timestamp: %v", got)
	}
	if r.SendToUser(99, map[string]string{"type": "X"}) {
		t.Fatalf("push to offline user reported success")
	}
}

func TestPingPongAndUnauthenticatedMessages(t *testing.T) {
	_, url := newServer(t, Options{})
	c := dial(t, url)

	c.WriteJSON(map[string]string{"type": TypePing})
	if got := readMsg(t, c); got["type"] != TypePong {
		t.Fatalf("want PONG, got %v", got)
	}
	c.WriteJSON(map[string]string{"type": "REGISTER"})
	if got := readMsg(t, c); got["type"] != TypeError {
		t.Fatalf("want ERROR, got %v", got)
	}
}

func TestAuthFailureCloses(t *testing.T) {
	r, url := newServer(t, Options{})
	c := dial(t, url)

	if got := login(t, c, "mallory"); got["type"] != TypeAuthFailed {
		t.Fatalf("want AUTH_FAILED, got %v", got)
	}
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("want policy violation close, got %v", err)
	}
	if r.OnlineCount() != 0 {
		t.Fatalf("failed auth must not register a session")
	}
}

func TestAuthTimeout(t *testing.T) {
	_, url := newServer(t, Options{AuthTimeout: 50 * time.Millisecond})
	c := dial(t, url)
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("want policy violation close, got %v", err)
	}
}

func TestNewSessionReplacesOld(t *testing.T) {
	r, url := newServer(t, Options{})
	first := dial(t, url)
	login(t, first, "alice")
	second := dial(t, url)
	login(t, second, "alice")

	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := first.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("old session: want normal close, got %v", err)
	}
	if r.OnlineCount() != 1 {
		t.Fatalf("online = %d, want 1", r.OnlineCount())
	}
	r.SendForceLogout(1, "elsewhere")
	if got := readMsg(t, second); got["type"] != TypeForceLogout || got["reason"] != "elsewhere" {
		t.Fatalf("force logout %v", got)
	}
}

func TestBroadcastAndRemovalOnClose(t *testing.T) {
	r, url := newServer(t, Options{})
	a := dial(t, url)
	login(t, a, "alice")
	b := dial(t, url)
	login(t, b, "bob")
	anon := dial(t, url)
	_ = anon

	if n := r.Broadcast(map[string]any{"type": TypeAnnouncement, "title": "t"}); n != 2 {
		t.Fatalf("broadcast reached %d, want 2", n)
	}
	if got := readMsg(t, a); got["type"] != TypeAnnouncement {
		t.Fatalf("alice got %v", got)
	}
	if got := readMsg(t, b); got["type"] != TypeAnnouncement {
		t.Fatalf("bob got %v", got)
	}

	b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	b.Close()
	waitFor(t, func() bool { return !r.IsOnline(2) })
	if !r.IsOnline(1) {
		t.Fatalf("alice should still be online")
	}
}
