package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/config"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/runtime"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/store"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

func newServer(t *testing.T) (*Server, *runtime.Runtime, *store.Memory) {
	t.Helper()
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text", Output: "null"})
	mem := store.NewMemory()
	cfg := cfgpkg.Default()
	cfg.Services = nil
	rt, err := runtime.Open(context.Background(), runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfg, Logger: logger, Store: mem})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return New(rt, logger), rt, mem
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealthHandler(t *testing.T) {
	s, _, _ := newServer(t)
	w, body := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status %d body %v", w.Code, body)
	}
	if svcs, ok := body["services"].([]any); !ok || len(svcs) != 0 {
		t.Fatalf("services %v", body["services"])
	}
	if body["subscriptions"] != float64(0) || body["inFlight"] != float64(0) {
		t.Fatalf("dispatch counters %v", body)
	}
}

func TestConsumersHandler(t *testing.T) {
	s, rt, _ := newServer(t)
	ctx := context.Background()
	if _, err := rt.Consumers().Register(ctx, "group:user-service", "user-service:1", map[string]string{"host": "a"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	w, body := do(t, s, http.MethodGet, "/v1/events/consumers?service=user-service", "")
	if w.Code != http.StatusOK || body["group"] != "group:user-service" {
		t.Fatalf("status %d %v", w.Code, body)
	}
	items := body["consumers"].([]any)
	if len(items) != 1 {
		t.Fatalf("consumers %v", items)
	}
	m := items[0].(map[string]any)
	if m["id"] != "user-service:1" || m["active"] != true {
		t.Fatalf("consumer %v", m)
	}
	w, body = do(t, s, http.MethodGet, "/v1/events/consumers?group=group:nobody", "")
	if w.Code != http.StatusOK || len(body["consumers"].([]any)) != 0 {
		t.Fatalf("empty group %d %v", w.Code, body)
	}
	if w, _ := do(t, s, http.MethodGet, "/v1/events/consumers", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("missing group status %d", w.Code)
	}
}

func TestReadOnlyEndpointsOnUnknownStream(t *testing.T) {
	s, rt, _ := newServer(t)
	for _, path := range []string{
		"/v1/events/pending?stream=stream:edu:nope&group=g",
		"/v1/events/dlq?stream=stream:edu:nope",
	} {
		if w, body := do(t, s, http.MethodGet, path, ""); w.Code >= 500 {
			t.Fatalf("%s: status %d %v", path, w.Code, body)
		}
	}
	streams, err := rt.Logs().Streams()
	if err != nil || len(streams) != 0 {
		t.Fatalf("read-only lookups must not create streams: %v %v", streams, err)
	}
}

func TestPublishHandler(t *testing.T) {
	s, rt, _ := newServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"type":"COURSE_ENROLLED","source":"course-service","data":{"studentId":1,"courseId":2}}`, http.StatusAccepted},
		{"unknown type", `{"type":"NOPE","data":{}}`, http.StatusBadRequest},
		{"data not object", `{"type":"COURSE_ENROLLED","data":[1]}`, http.StatusBadRequest},
		{"missing data", `{"type":"COURSE_ENROLLED"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w, body := do(t, s, http.MethodPost, "/v1/events/publish", tt.body); w.Code != tt.want {
				t.Fatalf("status %d, want %d (%v)", w.Code, tt.want, body)
			}
		})
	}
	l, _ := rt.Logs().Log(events.StreamKeyFor(events.CourseEnrolled))
	entries, _ := l.Range(0, 0)
	if len(entries) != 1 || entries[0].Fields["source"] != "course-service" {
		t.Fatalf("entries %+v", entries)
	}
}

func TestPendingHandler(t *testing.T) {
	s, rt, _ := newServer(t)
	ctx := context.Background()
	stream := events.StreamKeyFor(events.ChapterCompleted)
	rt.Publisher().Publish(ctx, events.ChapterCompleted, events.ServiceProgress, events.ChapterCompletedPayload{StudentID: 1, ChapterID: 2})
	l, _ := rt.Logs().Log(stream)
	if err := l.CreateGroup(ctx, "group:homework-service", true); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := l.ReadGroup(ctx, "group:homework-service", "homework-service:1", 10); err != nil {
		t.Fatalf("read group: %v", err)
	}

	w, body := do(t, s, http.MethodGet, "/v1/events/pending?type=CHAPTER_COMPLETED&service=homework-service", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d %v", w.Code, body)
	}
	items := body["pending"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["consumer"] != "homework-service:1" {
		t.Fatalf("pending %v", items)
	}
	if w, _ := do(t, s, http.MethodGet, "/v1/events/pending?type=CHAPTER_COMPLETED&group=group:nobody", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown group status %d", w.Code)
	}
	if w, _ := do(t, s, http.MethodGet, "/v1/events/pending", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("missing params status %d", w.Code)
	}
	w, body = do(t, s, http.MethodGet, "/v1/events/streams", "")
	if w.Code != http.StatusOK || len(body["streams"].([]any)) != 1 {
		t.Fatalf("streams %d %v", w.Code, body)
	}
}

func TestAnnouncementGoesThroughOutbox(t *testing.T) {
	s, rt, mem := newServer(t)
	w, body := do(t, s, http.MethodPost, "/v1/announcements", `{"title":"停课通知","content":"明天停课"}`)
	if w.Code != http.StatusCreated || body["eventId"] == "" {
		t.Fatalf("status %d %v", w.Code, body)
	}
	pending, _ := mem.ListPendingOutbox(context.Background(), 0)
	if len(pending) != 1 || pending[0].EventType != string(events.AnnouncementPublished) {
		t.Fatalf("outbox %+v", pending)
	}
	if n, err := rt.Relay().RunOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("relay: %d %v", n, err)
	}
	l, _ := rt.Logs().Log(events.StreamKeyFor(events.AnnouncementPublished))
	entries, _ := l.Range(0, 0)
	if len(entries) != 1 || entries[0].Fields["id"] != body["eventId"] {
		t.Fatalf("entries %+v", entries)
	}
	env, _ := events.ParseEnvelope(entries[0].Fields)
	p, err := env.Payload()
	if err != nil || p.(events.AnnouncementPayload).Title != "停课通知" || p.(events.AnnouncementPayload).TargetAudience != "ALL" {
		t.Fatalf("payload %+v %v", p, err)
	}
	if w, _ := do(t, s, http.MethodPost, "/v1/announcements", `{"content":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing title status %d", w.Code)
	}
}

func TestNotificationsAndSessions(t *testing.T) {
	s, rt, _ := newServer(t)
	if _, err := rt.Notifier().Send(context.Background(), 4, "t", "c", store.KindSystem, 0); err != nil {
		t.Fatalf("send: %v", err)
	}
	w, body := do(t, s, http.MethodGet, "/v1/users/4/notifications", "")
	if w.Code != http.StatusOK || len(body["notifications"].([]any)) != 1 {
		t.Fatalf("list %d %v", w.Code, body)
	}
	w, body = do(t, s, http.MethodGet, "/v1/users/5/notifications", "")
	if w.Code != http.StatusOK || len(body["notifications"].([]any)) != 0 {
		t.Fatalf("empty list %d %v", w.Code, body)
	}
	if w, _ := do(t, s, http.MethodGet, "/v1/users/abc/notifications", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status %d", w.Code)
	}
	w, body = do(t, s, http.MethodGet, "/v1/users/4/online", "")
	if w.Code != http.StatusOK || body["online"] != false {
		t.Fatalf("online %d %v", w.Code, body)
	}
	w, body = do(t, s, http.MethodPost, "/v1/users/4/force-logout", `{}`)
	if w.Code != http.StatusOK || body["delivered"] != false {
		t.Fatalf("force logout %d %v", w.Code, body)
	}
}

func TestTailSSE(t *testing.T) {
	s, rt, _ := newServer(t)
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		rt.Publisher().Publish(ctx, events.CourseDropped, events.ServiceCourse, events.EnrollmentPayload{StudentID: events.ID(i)})
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/v1/events/tail?type=COURSE_DROPPED&from=earliest&limit=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(buf.String(), "event:entry"); got != 2 {
		t.Fatalf("got %d entries:\n%s", got, buf.String())
	}
}
