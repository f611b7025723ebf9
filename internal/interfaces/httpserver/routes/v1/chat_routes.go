package v1

import (
	"github.com/gin-gonic/gin"

	"collab-server/services/groupchat-api/internal/interfaces/httpserver/handlers"
)

// RegisterGroupRoutes registers the group and membership routes.
func RegisterGroupRoutes(router gin.IRoutes, handler *handlers.GroupHandler) {
	router.GET("/groups", handler.List)
	router.POST("/groups", handler.Create)
	router.GET("/groups/:groupId/members", handler.ListMembers)
	router.POST("/groups/:groupId/members", handler.AddMember)

	// Project acceptance hook
	router.POST("/projects/:projectId/group", handler.ProvisionProjectGroup)
}

// RegisterMessageRoutes registers the stateless message routes.
func RegisterMessageRoutes(router gin.IRoutes, handler *handlers.MessageHandler) {
	router.GET("/groups/:groupId/messages", handler.List)
	router.POST("/groups/:groupId/messages", handler.Send)
}
