package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/runtime"
)

// GeneralController serves health, the event catalog and the websocket
// endpoint.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes.
func (c *GeneralController) RegisterRoutes(g gin.IRouter) {
	g.GET("/v1/healthz", c.handleHealth)
	g.GET("/v1/catalog", c.handleCatalog)
	ws := gin.WrapH(c.rt.Sessions())
	g.GET("/ws", ws)
	g.GET("/ws/notification", ws)
}

// handleHealth returns 200 {"status":"ok"} when storage responds and 503
// otherwise. The body also reports the enabled services, the number of
// bootstrapped subscriptions and entries being handled right now.
func (c *GeneralController) handleHealth(ctx *gin.Context) {
	if err := c.rt.CheckHealth(ctx.Request.Context()); err != nil {
		writeError(ctx, http.StatusServiceUnavailable, "not_serving")
		return
	}
	services := c.rt.Config().Services
	if services == nil {
		services = []string{}
	}
	ctr := c.rt.Container()
	ctx.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"online":        c.rt.Sessions().OnlineCount(),
		"services":      services,
		"subscriptions": len(ctr.Active()),
		"inFlight":      ctr.InFlight(),
	})
}

func (c *GeneralController) handleCatalog(ctx *gin.Context) {
	type item struct {
		events.Descriptor
		Stream string   `json:"stream"`
		Groups []string `json:"groups"`
	}
	var out []item
	for _, d := range events.All() {
		groups := make([]string, 0, len(d.Consumers))
		for _, s := range d.Consumers {
			groups = append(groups, events.GroupName(s))
		}
		out = append(out, item{Descriptor: d, Stream: d.StreamKey(), Groups: groups})
	}
	ctx.JSON(http.StatusOK, gin.H{"events": out})
}
