// Package session keeps the live websocket sessions of authenticated users
// and pushes messages to them. Pushes are best-effort: an offline user is a
// silent no-op.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 60 * time.Second
	sendBuffer   = 32
)

// Message types exchanged with clients.
const (
	TypeAuth         = "AUTH"
	TypeAuthOK       = "AUTH_OK"
	TypeAuthFailed   = "AUTH_FAILED"
	TypePing         = "PING"
	TypePong         = "PONG"
	TypeError        = "ERROR"
	TypeNotification = "NOTIFICATION"
	TypeAnnouncement = "ANNOUNCEMENT"
	TypeForceLogout  = "FORCE_LOGOUT"
)

// ErrUnauthenticated is returned by authenticators for bad tokens.
var ErrUnauthenticated = errors.New("session: unauthenticated")

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (int64, error)
}

// AuthFunc adapts a function to Authenticator.
type AuthFunc func(ctx context.Context, token string) (int64, error)

func (f AuthFunc) Authenticate(ctx context.Context, token string) (int64, error) { return f(ctx, token) }

// Options tunes a Registry.
type Options struct {
	// AuthTimeout closes connections that have not authenticated in time.
	// Default 5s.
	AuthTimeout time.Duration
}

// Registry maps user ids to their single live session. It is created once
// at process start and injected where pushes are needed.
type Registry struct {
	auth        Authenticator
	authTimeout time.Duration
	logger      logpkg.Logger
	upgrader    websocket.Upgrader

	mu       sync.RWMutex
	sessions map[int64]*conn
	conns    map[*conn]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry(auth Authenticator, opts Options, logger logpkg.Logger) *Registry {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Registry{
		auth:        auth,
		authTimeout: opts.AuthTimeout,
		logger:      logger.With(logpkg.Component("session")),
		upgrader: websocket.Upgrader{
			// the gateway enforces origin policy
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[int64]*conn),
		conns:    make(map[*conn]struct{}),
	}
}

type conn struct {
	wc     *websocket.Conn
	send   chan []byte
	quit   chan struct{}
	once   sync.Once
	code   atomic.Int32
	userID atomic.Int64
}

func (c *conn) close(code int) {
	c.once.Do(func() {
		c.code.Store(int32(code))
		close(c.quit)
	})
}

func (c *conn) enqueue(b []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// ServeHTTP upgrades the request and runs the session until it closes.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	wc, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", logpkg.Err(err))
		return
	}
	c := &conn{wc: wc, send: make(chan []byte, sendBuffer), quit: make(chan struct{})}
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()

	timer := time.AfterFunc(r.authTimeout, func() {
		if c.userID.Load() == 0 {
			c.close(websocket.ClosePolicyViolation)
		}
	})
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.write(c)
	}()
	r.read(req.Context(), c)
	c.close(websocket.CloseNormalClosure)
	<-done
	r.remove(c)
}

func (r *Registry) read(ctx context.Context, c *conn) {
	for {
		op, data, err := c.wc.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				r.logger.Debug("websocket read ended", logpkg.Err(err))
			}
			return
		}
		if op != websocket.TextMessage {
			continue
		}
		var msg struct {
			Type  string `json:"type"`
			Token string `json:"token"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Debug("bad client message", logpkg.Err(err))
			continue
		}
		switch msg.Type {
		case TypeAuth:
			r.authenticate(ctx, c, msg.Token)
		case TypePing:
			r.reply(c, map[string]any{"type": TypePong, "timestamp": time.Now().UnixMilli()})
		default:
			if c.userID.Load() == 0 {
				r.reply(c, map[string]any{"type": TypeError, "message": "请先发送 AUTH 消息"})
			}
		}
	}
}

func (r *Registry) authenticate(ctx context.Context, c *conn, token string) {
	if c.userID.Load() != 0 {
		r.reply(c, map[string]any{"type": TypeAuthOK, "message": "已认证"})
		return
	}
	var uid int64
	err := ErrUnauthenticated
	if token != "" && r.auth != nil {
		uid, err = r.auth.Authenticate(ctx, token)
	}
	if err != nil || uid == 0 {
		r.reply(c, map[string]any{"type": TypeAuthFailed, "message": "身份认证失败"})
		c.close(websocket.ClosePolicyViolation)
		return
	}
	c.userID.Store(uid)
	r.mu.Lock()
	old := r.sessions[uid]
	r.sessions[uid] = c
	r.mu.Unlock()
	if old != nil && old != c {
		old.close(websocket.CloseNormalClosure)
	}
	r.logger.Info("session authenticated", logpkg.Int64("user_id", uid))
	r.reply(c, map[string]any{"type": TypeAuthOK, "message": "连接成功"})
}

func (r *Registry) reply(c *conn, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(b)
}

// write owns all writes to the connection. On quit it flushes queued
// messages, sends a close frame and closes the socket.
func (r *Registry) write(c *conn) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	defer c.wc.Close()
	for {
		select {
		case b := <-c.send:
			if err := r.writeText(c, b); err != nil {
				c.close(websocket.CloseAbnormalClosure)
				return
			}
		case <-t.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseAbnormalClosure)
				return
			}
		case <-c.quit:
		drain:
			for {
				select {
				case b := <-c.send:
					if r.writeText(c, b) != nil {
						return
					}
				default:
					break drain
				}
			}
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(int(c.code.Load()), ""))
			return
		}
	}
}

func (r *Registry) writeText(c *conn, b []byte) error {
	c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.wc.WriteMessage(websocket.TextMessage, b)
}

func (r *Registry) remove(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
	if uid := c.userID.Load(); uid != 0 && r.sessions[uid] == c {
		delete(r.sessions, uid)
		r.logger.Info("session closed", logpkg.Int64("user_id", uid))
	}
}

// SendToUser pushes msg to the user's session. It reports whether the
// message was queued; offline users yield false.
func (r *Registry) SendToUser(userID int64, msg any) bool {
	r.mu.RLock()
	c := r.sessions[userID]
	r.mu.RUnlock()
	if c == nil {
		return false
	}
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encode push", logpkg.Err(err))
		return false
	}
	if !c.enqueue(b) {
		r.logger.Warn("push dropped", logpkg.Int64("user_id", userID))
		return false
	}
	return true
}

// Broadcast pushes msg to every authenticated session and returns how many
// accepted it.
func (r *Registry) Broadcast(msg any) int {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encode broadcast", logpkg.Err(err))
		return 0
	}
	r.mu.RLock()
	targets := make([]*conn, 0, len(r.sessions))
	for _, c := range r.sessions {
		targets = append(targets, c)
	}
	r.mu.RUnlock()
	n := 0
	for _, c := range targets {
		if c.enqueue(b) {
			n++
		}
	}
	return n
}

// SendNotification pushes a NOTIFICATION message.
func (r *Registry) SendNotification(userID int64, title, content string) bool {
	return r.SendToUser(userID, map[string]any{
		"type":      TypeNotification,
		"title":     title,
		"content":   content,
		"timestamp": time.Now().UnixMilli(),
	})
}

// SendForceLogout tells the user's client to log out.
func (r *Registry) SendForceLogout(userID int64, reason string) bool {
	return r.SendToUser(userID, map[string]any{
		"type":      TypeForceLogout,
		"reason":    reason,
		"timestamp": time.Now().UnixMilli(),
	})
}

// IsOnline reports whether the user has a live session.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// OnlineCount returns the number of authenticated sessions.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close closes every connection, authenticated or not.
func (r *Registry) Close() {
	r.mu.RLock()
	all := make([]*conn, 0, len(r.conns))
	for c := range r.conns {
		all = append(all, c)
	}
	r.mu.RUnlock()
	for _, c := range all {
		c.close(websocket.CloseGoingAway)
	}
}
