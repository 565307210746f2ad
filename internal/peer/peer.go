// Package peer holds the synchronous HTTP clients for neighbouring services.
// Every call has a fallback: callers treat an error as "unknown" and carry
// on.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
)

// DefaultTimeout bounds each peer call.
const DefaultTimeout = 3 * time.Second

// ErrUnavailable wraps transport and status failures.
var ErrUnavailable = errors.New("peer: unavailable")

// result is the response wrapper used by the platform's services.
type result struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (r result) ok() bool { return r.Code == 0 || r.Code == http.StatusOK }

type client struct {
	base string
	http *http.Client
}

func newClient(base string, hc *http.Client) client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return client{base: strings.TrimRight(base, "/"), http: hc}
}

func (c client) get(ctx context.Context, path string, header http.Header) (result, error) {
	var res result
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return res, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return res, fmt.Errorf("%w: GET %s: %s", ErrUnavailable, path, resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return res, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return res, nil
}

// CourseClient looks up courses in the course service.
type CourseClient struct {
	c client
}

// NewCourseClient returns a client for the course service at base. A nil hc
// uses a client with DefaultTimeout.
func NewCourseClient(base string, hc *http.Client) *CourseClient {
	return &CourseClient{c: newClient(base, hc)}
}

// TeacherOf returns the teacher of courseID. A course without a teacher
// yields 0 and no error.
func (cc *CourseClient) TeacherOf(ctx context.Context, courseID int64) (int64, error) {
	res, err := cc.c.get(ctx, fmt.Sprintf("/api/courses/%d", courseID), nil)
	if err != nil {
		return 0, err
	}
	if !res.ok() {
		return 0, fmt.Errorf("%w: course %d: %s", ErrUnavailable, courseID, res.Message)
	}
	var course struct {
		TeacherID events.ID `json:"teacherId"`
	}
	if len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, &course); err != nil {
			return 0, fmt.Errorf("%w: course %d: %v", ErrUnavailable, courseID, err)
		}
	}
	return int64(course.TeacherID), nil
}
