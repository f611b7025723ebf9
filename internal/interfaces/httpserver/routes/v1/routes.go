package v1

import (
	"github.com/gin-gonic/gin"

	"collab-server/services/groupchat-api/internal/interfaces/httpserver/handlers"
)

// Routes holds the v1 route configuration.
type Routes struct {
	handlers *handlers.Provider
}

// NewRoutes creates a new v1 routes instance.
func NewRoutes(handlerProvider *handlers.Provider) *Routes {
	return &Routes{
		handlers: handlerProvider,
	}
}

// Register registers all v1 routes on the engine. The socket route
// authenticates its own handshake; every other route goes through
// authMiddleware when it is provided.
func (r *Routes) Register(engine *gin.Engine, authMiddleware gin.HandlerFunc) {
	v1 := engine.Group("/v1")
	v1.GET("/socket", r.handlers.Socket.Serve)

	api := v1.Group("")
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}
	RegisterGroupRoutes(api, r.handlers.Group)
	RegisterMessageRoutes(api, r.handlers.Message)
}
