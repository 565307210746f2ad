package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/runtime"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general       *GeneralController
	events        *EventsController
	notifications *NotificationsController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general:       NewGeneralController(rt),
		events:        NewEventsController(rt, logger),
		notifications: NewNotificationsController(rt),
	}
}

// RegisterAllRoutes registers all controller routes on r.
func (r *ControllerRegistry) RegisterAllRoutes(g gin.IRouter) {
	r.general.RegisterRoutes(g)
	r.events.RegisterRoutes(g)
	r.notifications.RegisterRoutes(g)
}
