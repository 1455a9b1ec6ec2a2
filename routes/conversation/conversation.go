package conversation

import (
	"github.com/gin-gonic/gin"

	"ChatHub/controllers"
	"ChatHub/pkg/services"
)

// Register registers conversation routes. The collection paths also answer
// with a trailing slash, which older clients send.
func Register(g *gin.RouterGroup, convs *services.ConversationService) {
	for _, p := range []string{"/conversations", "/conversations/"} {
		g.POST(p, controllers.CreateConversation(convs))
		g.GET(p, controllers.ListConversations(convs))
	}
	g.GET("/conversations/:conversation_id", controllers.GetConversation(convs))
	g.DELETE("/conversations/:conversation_id", controllers.DeleteConversation(convs))
	g.POST("/conversations/:conversation_id/messages", controllers.AddMessage(convs))
	g.GET("/conversations/:conversation_id/messages", controllers.ListMessages(convs))
}
