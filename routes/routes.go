package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ChatHub/pkg/logger"
	"ChatHub/pkg/services"

	chatRoutes "ChatHub/routes/chat"
	convRoutes "ChatHub/routes/conversation"
	websocketRoutes "ChatHub/routes/websocket"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Conversations *services.ConversationService
	Proxy         *services.ChatProxy
	CORSOrigins   []string
	Log           *logger.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "chat backend running"})
	})

	convRoutes.Register(&r.RouterGroup, d.Conversations)
	chatRoutes.Register(&r.RouterGroup, d.Proxy, d.Log)
	websocketRoutes.Register(&r.RouterGroup, d.Proxy, d.CORSOrigins, d.Log)
}
