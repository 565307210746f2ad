package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/outbox"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/runtime"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/store"
)

// NotificationsController serves user notifications, announcements and
// session controls.
type NotificationsController struct {
	rt *runtime.Runtime
}

// NewNotificationsController creates a new notifications controller.
func NewNotificationsController(rt *runtime.Runtime) *NotificationsController {
	return &NotificationsController{rt: rt}
}

// RegisterRoutes registers notification routes.
func (c *NotificationsController) RegisterRoutes(g gin.IRouter) {
	g.GET("/v1/users/:id/notifications", c.handleList)
	g.GET("/v1/users/:id/online", c.handleOnline)
	g.POST("/v1/users/:id/force-logout", c.handleForceLogout)
	g.POST("/v1/announcements", c.handleAnnounce)
}

func userID(ctx *gin.Context) (int64, bool) {
	id, ok := parseInt64(ctx.Param("id"))
	if !ok {
		writeError(ctx, http.StatusBadRequest, "Invalid user id")
	}
	return id, ok
}

func (c *NotificationsController) handleList(ctx *gin.Context) {
	id, ok := userID(ctx)
	if !ok {
		return
	}
	list, err := c.rt.Store().ListNotifications(ctx.Request.Context(), id, parseLimit(ctx.Query("limit"), 50, 500))
	if err != nil {
		writeError(ctx, http.StatusInternalServerError, "Failed to list notifications")
		return
	}
	if list == nil {
		list = []store.Notification{}
	}
	ctx.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (c *NotificationsController) handleOnline(ctx *gin.Context) {
	id, ok := userID(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"userId": id, "online": c.rt.Sessions().IsOnline(id)})
}

type forceLogoutReq struct {
	Reason string `json:"reason"`
}

func (c *NotificationsController) handleForceLogout(ctx *gin.Context) {
	id, ok := userID(ctx)
	if !ok {
		return
	}
	var req forceLogoutReq
	_ = ctx.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "您的账号已被管理员强制下线"
	}
	ctx.JSON(http.StatusOK, gin.H{"delivered": c.rt.Sessions().SendForceLogout(id, req.Reason)})
}

type announceReq struct {
	Title          string `json:"title" binding:"required"`
	Content        string `json:"content"`
	TargetAudience string `json:"targetAudience"`
}

// handleAnnounce stores the announcement and enqueues its event in one
// transaction. The relay publishes it shortly after.
func (c *NotificationsController) handleAnnounce(ctx *gin.Context) {
	var req announceReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		writeError(ctx, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TargetAudience == "" {
		req.TargetAudience = "ALL"
	}
	a := &store.Announcement{Title: req.Title, Content: req.Content, TargetAudience: req.TargetAudience}
	var env events.Envelope
	rctx := ctx.Request.Context()
	err := c.rt.Store().WithTx(rctx, func(tx store.Tx) error {
		if err := tx.InsertAnnouncement(rctx, a); err != nil {
			return err
		}
		var err error
		env, err = outbox.Enqueue(rctx, tx, events.AnnouncementPublished, events.ServiceUser, events.AnnouncementPayload{
			AnnouncementID: events.ID(a.ID),
			Title:          a.Title,
			Content:        a.Content,
			TargetAudience: a.TargetAudience,
		})
		return err
	})
	if err != nil {
		writeError(ctx, http.StatusInternalServerError, "Failed to publish announcement")
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"announcement": a, "eventId": env.ID})
}
