package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/dispatch"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/runtime"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// EventsController exposes publishing and inspection of the event streams.
type EventsController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// NewEventsController creates a new events controller.
func NewEventsController(rt *runtime.Runtime, logger logpkg.Logger) *EventsController {
	return &EventsController{rt: rt, logger: logger}
}

// RegisterRoutes registers event routes.
func (c *EventsController) RegisterRoutes(g gin.IRouter) {
	g.POST("/v1/events/publish", c.handlePublish)
	g.GET("/v1/events/streams", c.handleStreams)
	g.GET("/v1/events/pending", c.handlePending)
	g.GET("/v1/events/dlq", c.handleDLQ)
	g.GET("/v1/events/tail", c.handleTailSSE)
	g.GET("/v1/events/consumers", c.handleConsumers)
}

type publishReq struct {
	Type   string          `json:"type" binding:"required"`
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data" binding:"required"`
}

// handlePublish appends an event. 202 with the record id on success, 400 for
// an unknown type or a payload that is not an object, 500 when the append
// fails.
func (c *EventsController) handlePublish(ctx *gin.Context) {
	var req publishReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		writeError(ctx, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := events.Name(req.Type)
	if _, ok := events.Lookup(name); !ok {
		writeError(ctx, http.StatusBadRequest, "Unknown event type")
		return
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(req.Data, &obj) != nil || obj == nil {
		writeError(ctx, http.StatusBadRequest, "data must be a JSON object")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	id, ok := c.rt.Publisher().Publish(ctx.Request.Context(), name, req.Source, req.Data)
	if !ok {
		writeError(ctx, http.StatusInternalServerError, "Failed to publish event")
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"recordId": id, "stream": events.StreamKeyFor(name)})
}

// streamParam resolves ?stream= or, failing that, ?type= to a stream key.
func streamParam(ctx *gin.Context) string {
	if s := ctx.Query("stream"); s != "" {
		return s
	}
	return events.StreamKeyFor(events.Name(ctx.Query("type")))
}

func (c *EventsController) handleStreams(ctx *gin.Context) {
	names, err := c.rt.Logs().Streams()
	if err != nil {
		writeError(ctx, http.StatusInternalServerError, "Failed to list streams")
		return
	}
	type streamInfo struct {
		Stream string               `json:"stream"`
		LastID string               `json:"lastId"`
		Groups []eventlog.GroupInfo `json:"groups"`
	}
	out := make([]streamInfo, 0, len(names))
	for _, n := range names {
		l, err := c.rt.Logs().Peek(n)
		if err != nil {
			continue
		}
		groups, err := l.Groups()
		if err != nil {
			writeError(ctx, http.StatusInternalServerError, "Failed to list groups")
			return
		}
		out = append(out, streamInfo{Stream: n, LastID: l.LastID().String(), Groups: groups})
	}
	ctx.JSON(http.StatusOK, gin.H{"streams": out})
}

// handlePending lists a group's unacknowledged entries.
// Query params: stream or type, group or service.
func (c *EventsController) handlePending(ctx *gin.Context) {
	stream := streamParam(ctx)
	group := ctx.Query("group")
	if group == "" && ctx.Query("service") != "" {
		group = events.GroupName(ctx.Query("service"))
	}
	if stream == "" || group == "" {
		writeError(ctx, http.StatusBadRequest, "stream and group are required")
		return
	}
	l, err := c.rt.Logs().Peek(stream)
	if err != nil {
		writeError(ctx, http.StatusBadRequest, "Invalid stream")
		return
	}
	pending, err := l.Pending(group)
	switch {
	case errors.Is(err, eventlog.ErrNoGroup):
		writeError(ctx, http.StatusNotFound, "Group not found")
		return
	case err != nil:
		writeError(ctx, http.StatusInternalServerError, "Failed to list pending entries")
		return
	}
	now := time.Now().UnixMilli()
	items := make([]gin.H, 0, len(pending))
	for _, p := range pending {
		items = append(items, gin.H{
			"id":         p.ID.String(),
			"consumer":   p.Consumer,
			"deliveries": p.Deliveries,
			"idleMs":     p.Idle(now).Milliseconds(),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"stream": stream, "group": group, "pending": items})
}

// handleConsumers lists the registered members of a group with their
// liveness. Query params: group or service.
func (c *EventsController) handleConsumers(ctx *gin.Context) {
	group := ctx.Query("group")
	if group == "" && ctx.Query("service") != "" {
		group = events.GroupName(ctx.Query("service"))
	}
	if group == "" {
		writeError(ctx, http.StatusBadRequest, "group is required")
		return
	}
	reg := c.rt.Consumers()
	list, err := reg.List(group)
	if err != nil {
		writeError(ctx, http.StatusInternalServerError, "Failed to list consumers")
		return
	}
	items := make([]gin.H, 0, len(list))
	for _, m := range list {
		items = append(items, gin.H{
			"id":              m.ID,
			"registeredMs":    m.RegisteredMs,
			"lastHeartbeatMs": m.LastHeartbeat,
			"expiresAtMs":     m.ExpiresAtMs,
			"active":          reg.IsActive(group, m.ID),
			"metadata":        m.Metadata,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"group": group, "consumers": items})
}

type entryJSON struct {
	ID     string            `json:"id"`
	TimeMs int64             `json:"timeMs"`
	Fields map[string]string `json:"fields"`
}

func toEntryJSON(e eventlog.Entry) entryJSON {
	return entryJSON{ID: e.ID.String(), TimeMs: e.TimeMs, Fields: e.Fields}
}

// handleDLQ lists dead-lettered entries of a stream.
func (c *EventsController) handleDLQ(ctx *gin.Context) {
	stream := streamParam(ctx)
	if stream == "" {
		writeError(ctx, http.StatusBadRequest, "stream is required")
		return
	}
	l, err := c.rt.Logs().Peek(stream + dispatch.DeadLetterSuffix)
	if err != nil {
		writeError(ctx, http.StatusBadRequest, "Invalid stream")
		return
	}
	entries, err := l.Range(0, parseLimit(ctx.Query("limit"), 100, 1000))
	if err != nil {
		writeError(ctx, http.StatusInternalServerError, "Failed to read dead letters")
		return
	}
	items := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryJSON(e))
	}
	ctx.JSON(http.StatusOK, gin.H{"stream": l.Stream(), "entries": items})
}

// handleTailSSE streams entries of a stream as server-sent events without
// touching any reader group.
// Query params: stream or type, from=latest|earliest, limit.
func (c *EventsController) handleTailSSE(ctx *gin.Context) {
	stream := streamParam(ctx)
	if stream == "" {
		writeError(ctx, http.StatusBadRequest, "stream is required")
		return
	}
	// Catalog streams get the shared handle so a tail opened before the
	// first publish is woken by it. Other names poll.
	open := c.rt.Logs().Peek
	if catalogStream(stream) {
		open = c.rt.Logs().Log
	}
	l, err := open(stream)
	if err != nil {
		writeError(ctx, http.StatusBadRequest, "Invalid stream")
		return
	}
	limit := parseLimit(ctx.Query("limit"), 0, 1<<30)
	var after eventlog.ID
	if ctx.Query("from") != "earliest" {
		after = l.LastID()
	}
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")

	sent := 0
	rctx := ctx.Request.Context()
	ctx.Stream(func(w io.Writer) bool {
		entries, err := l.Range(after, 100)
		if err != nil {
			c.logger.Warn("tail read failed", logpkg.Str("stream", stream), logpkg.Err(err))
			return false
		}
		for _, e := range entries {
			ctx.SSEvent("entry", toEntryJSON(e))
			after = e.ID
			sent++
			if limit > 0 && sent >= limit {
				return false
			}
		}
		if len(entries) == 0 {
			l.WaitForAppend(rctx, 15*time.Second)
		}
		return rctx.Err() == nil
	})
}

func catalogStream(stream string) bool {
	for _, d := range events.All() {
		if d.StreamKey() == stream {
			return true
		}
	}
	return false
}
