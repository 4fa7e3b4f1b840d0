package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/auth"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
	auth     *auth.Validator
}

func NewRoutes(provider *handlers.Provider, authValidator *auth.Validator) *Routes {
	return &Routes{
		handlers: provider,
		auth:     authValidator,
	}
}

// Register attaches all v1 routes under the /v1 prefix plus unversioned
// aliases for clients that predate it.
func (r *Routes) Register(router gin.IRouter) {
	r.register(router.Group("/v1"))
	r.register(router.Group("/"))
}

func (r *Routes) register(group *gin.RouterGroup) {
	media := group.Group("/media")

	// Delivery stays reachable anonymously; the access gate decides per
	// asset whether an identity is required.
	media.GET("/:file_id", r.auth.Identify(), r.handlers.Media.Fetch)

	authed := media.Group("", r.auth.Middleware())
	authed.POST("", r.handlers.Media.Ingest)
	authed.GET("", r.handlers.Media.List)
	authed.POST("/:file_id/gate", r.handlers.Media.ToggleGate)
	authed.POST("/migrate", r.handlers.Migration.Start)
	authed.GET("/migrate/:job_id", r.handlers.Migration.Get)
	authed.GET("/migrate/:job_id/progress", r.handlers.Migration.Progress)
}
