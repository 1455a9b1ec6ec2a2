package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ChatHub/middleware"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/services"
)

type chatRequest struct {
	Messages []services.ChatMessage `json:"messages"`
}

// Chat streams a generated reply as server-sent events. Configuration and
// input problems are answered with a plain JSON error before the stream
// opens; anything after that arrives as a terminal [ERROR] frame.
func Chat(proxy *services.ChatProxy, log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "chat")
	return func(c *gin.Context) {
		var body chatRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, badRequest("invalid request body"))
			return
		}
		history, err := proxy.Prepare(body.Messages)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no") // nginx buffering off
		c.Status(http.StatusOK)
		c.Writer.Flush()

		state := proxy.Stream(c.Request.Context(), history, func(f services.Frame) error {
			if _, err := io.WriteString(c.Writer, f.Encode()); err != nil {
				return err
			}
			c.Writer.Flush()
			return nil
		})
		log.Info("chat stream finished",
			"requestId", c.GetString(middleware.RequestIDKey),
			"provider", proxy.Provider(),
			"turns", len(body.Messages),
			"state", state.String(),
		)
	}
}

func Health(proxy *services.ChatProxy) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "model": proxy.Model()})
	}
}
