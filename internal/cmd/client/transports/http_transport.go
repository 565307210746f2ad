package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-contrib/sse"
)

// HTTPTransport implements EventsTransport over the server's HTTP API.
type HTTPTransport struct {
	base func() string
	hc   *http.Client
}

// NewHTTPTransport returns a transport resolving the API root through base on
// every call. A nil client means http.DefaultClient.
func NewHTTPTransport(base func() string, hc *http.Client) *HTTPTransport {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPTransport{base: base, hc: hc}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := strings.TrimRight(t.base(), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(b, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(b))
	}
	return &APIError{Status: resp.StatusCode, Message: e.Error}
}

// Publish posts one event. data must be a JSON object.
func (t *HTTPTransport) Publish(ctx context.Context, eventType, source string, data []byte) (PublishResult, error) {
	var out PublishResult
	body := map[string]any{"type": eventType, "data": json.RawMessage(data)}
	if source != "" {
		body["source"] = source
	}
	err := t.do(ctx, http.MethodPost, "/v1/events/publish", nil, body, &out)
	return out, err
}

func (t *HTTPTransport) Streams(ctx context.Context) ([]StreamInfo, error) {
	var out struct {
		Streams []StreamInfo `json:"streams"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/events/streams", nil, nil, &out)
	return out.Streams, err
}

func (t *HTTPTransport) Pending(ctx context.Context, req PendingRequest) ([]PendingItem, error) {
	q := url.Values{}
	setIf(q, "stream", req.Stream)
	setIf(q, "type", req.Type)
	setIf(q, "group", req.Group)
	setIf(q, "service", req.Service)
	var out struct {
		Pending []PendingItem `json:"pending"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/events/pending", q, nil, &out)
	return out.Pending, err
}

func (t *HTTPTransport) DeadLetters(ctx context.Context, stream, eventType string, limit int) ([]Entry, error) {
	q := url.Values{}
	setIf(q, "stream", stream)
	setIf(q, "type", eventType)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Entries []Entry `json:"entries"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/events/dlq", q, nil, &out)
	return out.Entries, err
}

func (t *HTTPTransport) Announce(ctx context.Context, a Announcement) (AnnounceResult, error) {
	var out AnnounceResult
	err := t.do(ctx, http.MethodPost, "/v1/announcements", nil, a, &out)
	return out, err
}

// Tail reads the server-sent event stream and calls onEntry for every
// "entry" event until the server ends the stream, ctx is done or onEntry
// fails.
func (t *HTTPTransport) Tail(ctx context.Context, req TailRequest, onEntry func(Entry) error) error {
	q := url.Values{}
	setIf(q, "stream", req.Stream)
	setIf(q, "type", req.Type)
	setIf(q, "from", req.From)
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	u := strings.TrimRight(t.base(), "/") + "/v1/events/tail?" + q.Encode()
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	hreq.Header.Set("Accept", "text/event-stream")
	resp, err := t.hc.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	// Frames are split on blank lines so each one can be handed to the
	// decoder as soon as it arrives; sse.Decode itself reads to EOF.
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var frame bytes.Buffer
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) > 0 {
			frame.Write(line)
			frame.WriteByte('\n')
			continue
		}
		if err := dispatchFrame(&frame, onEntry); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return dispatchFrame(&frame, onEntry)
}

func dispatchFrame(frame *bytes.Buffer, onEntry func(Entry) error) error {
	if frame.Len() == 0 {
		return nil
	}
	defer frame.Reset()
	evs, err := sse.Decode(frame)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		data, _ := ev.Data.(string)
		if ev.Event != "entry" || data == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		if err := onEntry(e); err != nil {
			return err
		}
	}
	return nil
}

func setIf(q url.Values, k, v string) {
	if v != "" {
		q.Set(k, v)
	}
}
