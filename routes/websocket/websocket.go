package websocket

import (
	"github.com/gin-gonic/gin"

	"ChatHub/controllers"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/services"
)

func Register(g *gin.RouterGroup, proxy *services.ChatProxy, origins []string, log *logger.Logger) {
	g.GET("/ws/chat", controllers.ChatWS(proxy, controllers.NewUpgrader(origins), log))
}
