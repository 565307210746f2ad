package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	grpcserver "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/server/grpc"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	"github.com/spf13/cobra"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// fakeAPI records the last request and answers the event endpoints.
type fakeAPI struct {
	lastPath  string
	lastQuery string
	lastBody  map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastPath, f.lastQuery = r.URL.Path, r.URL.RawQuery
	f.lastBody = nil
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/events/publish":
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"recordId":"42","stream":%q}`, events.StreamKeyFor(events.Name(f.lastBody["type"].(string))))
	case "/v1/events/pending":
		if r.URL.Query().Get("group") == "group:missing" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"Group not found"}`)
			return
		}
		fmt.Fprint(w, `{"pending":[{"id":"3","consumer":"user-service:1","deliveries":2,"idleMs":1500}]}`)
	case "/v1/events/streams":
		fmt.Fprint(w, `{"streams":[{"stream":"stream:edu:chapter","lastId":"9","groups":[{"name":"group:homework-service","pending":1}]}]}`)
	case "/v1/events/dlq":
		fmt.Fprint(w, `{"entries":[{"id":"1","timeMs":5,"fields":{"type":"CHAPTER_COMPLETED","error":"boom"}}]}`)
	case "/v1/events/tail":
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:entry\ndata:{\"id\":\"1\",\"timeMs\":1,\"fields\":{\"type\":\"COURSE_ENROLLED\"}}\n\n")
		fmt.Fprint(w, ": keepalive\n\nevent:heartbeat\ndata:{}\n\n")
		// The last frame ends without a blank line.
		fmt.Fprint(w, "event:entry\ndata:{\"id\":\"2\",\"timeMs\":2,\"fields\":{\"type\":\"COURSE_DROPPED\"}}\n")
	case "/v1/announcements":
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"announcement":{"id":11,"title":"t","content":"c","targetAudience":"ALL"},"eventId":"evt-1"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func startAPI(t *testing.T) (*fakeAPI, BaseURLFunc) {
	t.Helper()
	f := &fakeAPI{}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, func() string { return ts.URL }
}

func TestPublish(t *testing.T) {
	api, base := startAPI(t)
	tests := []struct {
		name    string
		args    []string
		wantErr string
		wantOut string
	}{
		{"ok", []string{"--type", "CHAPTER_COMPLETED", "--data", `{"studentId":1,"chapterId":2}`}, "", "published 42 to " + events.StreamKeyFor(events.ChapterCompleted)},
		{"unknown type", []string{"--type", "NOPE"}, "unknown event type", ""},
		{"array payload", []string{"--type", "CHAPTER_COMPLETED", "--data", `[1]`}, "JSON object", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, newEventsPublishCommand(base), tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Fatalf("output %q, want %q", out, tt.wantOut)
			}
		})
	}
	if api.lastBody["source"] != "cli" {
		t.Fatalf("source not sent: %v", api.lastBody)
	}
}

func TestPublishDataFile(t *testing.T) {
	api, base := startAPI(t)
	path := filepath.Join(t.TempDir(), "p.json")
	if err := os.WriteFile(path, []byte(`{"studentId":5,"chapterId":6}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, newEventsPublishCommand(base), "--type", "CHAPTER_COMPLETED", "--data", "@"+path); err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, _ := api.lastBody["data"].(map[string]any)
	if data["studentId"] != float64(5) {
		t.Fatalf("data = %v", api.lastBody["data"])
	}
}

func TestPending(t *testing.T) {
	api, base := startAPI(t)
	if _, err := run(t, newEventsPendingCommand(base), "--service", "user-service"); err == nil {
		t.Fatalf("expected error without stream")
	}
	out, err := run(t, newEventsPendingCommand(base), "--type", "HOMEWORK_SUBMITTED", "--service", "user-service")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "user-service:1") || !strings.Contains(out, "1500") {
		t.Fatalf("unexpected output: %s", out)
	}
	if !strings.Contains(api.lastQuery, "service=user-service") || !strings.Contains(api.lastQuery, "type=HOMEWORK_SUBMITTED") {
		t.Fatalf("query = %s", api.lastQuery)
	}
	_, err = run(t, newEventsPendingCommand(base), "--stream", "s", "--group", "group:missing")
	if err == nil || !strings.Contains(err.Error(), "Group not found") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestStreamsAndDLQ(t *testing.T) {
	_, base := startAPI(t)
	out, err := run(t, newEventsStreamsCommand(base))
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	if !strings.Contains(out, "group:homework-service") {
		t.Fatalf("streams output: %s", out)
	}
	out, err = run(t, newEventsDLQCommand(base), "--type", "CHAPTER_COMPLETED")
	if err != nil {
		t.Fatalf("dlq: %v", err)
	}
	if !strings.Contains(out, `"error":"boom"`) {
		t.Fatalf("dlq output: %s", out)
	}
}

func TestTail(t *testing.T) {
	api, base := startAPI(t)
	out, err := run(t, newEventsTailCommand(base), "--type", "COURSE_ENROLLED", "--from", "earliest")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "COURSE_DROPPED") {
		t.Fatalf("tail output: %q", out)
	}
	if !strings.Contains(api.lastQuery, "from=earliest") {
		t.Fatalf("query = %s", api.lastQuery)
	}
	if _, err := run(t, newEventsTailCommand(base), "--type", "COURSE_ENROLLED", "--from", "middle"); err == nil {
		t.Fatalf("expected invalid --from error")
	}
}

func TestAnnounce(t *testing.T) {
	api, base := startAPI(t)
	if _, err := run(t, NewAnnounceCommand(base)); err == nil {
		t.Fatalf("expected error without title")
	}
	out, err := run(t, NewAnnounceCommand(base), "--title", "t", "--content", "c")
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	if !strings.Contains(out, "announcement 11 queued as event evt-1") {
		t.Fatalf("announce output: %s", out)
	}
	if _, sent := api.lastBody["targetAudience"]; sent {
		t.Fatalf("empty audience should be omitted: %v", api.lastBody)
	}
}

func TestGroupsEnsure(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, NewGroupsCommand(), "ensure", "--service", "user-service,homework-service", "--data-dir", dir)
	if err != nil {
		t.Fatalf("ensure: %v\n%s", err, out)
	}
	want := len(subscriptionsFor("user-service")) + len(subscriptionsFor("homework-service"))
	if got := strings.Count(out, ": ready"); got != want {
		t.Fatalf("ready lines = %d, want %d\n%s", got, want, out)
	}
	// Running again is a no-op.
	if _, err := run(t, NewGroupsCommand(), "ensure", "--service", "user-service", "--data-dir", dir); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(dir, "store")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	l, err := eventlog.NewStore(db).Log(events.StreamKeyFor(events.HomeworkSubmitted))
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	groups, err := l.Groups()
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != events.GroupName("user-service") {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestHealth(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go func() { _ = gs.Serve(l) }()
	defer gs.Stop()

	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	out, err := run(t, NewHealthCommand(), "--addr", l.Addr().String())
	if err != nil || !strings.Contains(out, "status: SERVING") {
		t.Fatalf("health: %v %s", err, out)
	}

	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	t.Setenv("EDU_GRPC", l.Addr().String())
	if _, err := run(t, NewHealthCommand()); err == nil {
		t.Fatalf("expected error for NOT_SERVING")
	}
}
