package chat

import (
	"github.com/gin-gonic/gin"

	"ChatHub/controllers"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/services"
)

func Register(g *gin.RouterGroup, proxy *services.ChatProxy, log *logger.Logger) {
	g.POST("/chat", controllers.Chat(proxy, log))
	g.GET("/health", controllers.Health(proxy))
}
