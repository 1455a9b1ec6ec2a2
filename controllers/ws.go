package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ChatHub/middleware"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/services"
)

const (
	wsStartTimeout = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 1 << 20 // 1MB
)

type wsStartPayload struct {
	Type     string                 `json:"type"`
	Messages []services.ChatMessage `json:"messages"`
}

// NewUpgrader accepts same-host clients, clients without an Origin header,
// and the configured CORS origins. A "*" entry allows any origin.
func NewUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin) {
				return true
			}
			return strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://") == r.Host
		},
	}
}

// ChatWS streams a generated reply over a WebSocket.
// Client protocol (JSON messages):
//
//	-> {type: "start", messages: [{role, content}, ...]}
//	<- {type: "delta", data: string}
//	<- {type: "done", ok: true}
//	<- {type: "error", error: string}
//	-> {type: "stop"}   cancels; answered with {type: "done", ok: true, stopped: true}
func ChatWS(proxy *services.ChatProxy, upgrader *websocket.Upgrader, log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "ws")
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("upgrade failed", "error", err)
			return
		}
		defer conn.Close()
		log := log.With("requestId", c.GetString(middleware.RequestIDKey))

		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsStartTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debug("no start message", "error", err)
			return
		}
		write := func(v any) error {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return conn.WriteJSON(v)
		}

		var start wsStartPayload
		if err := json.Unmarshal(raw, &start); err != nil || strings.ToLower(start.Type) != "start" {
			_ = write(gin.H{"type": "error", "error": "invalid start payload"})
			return
		}
		history, err := proxy.Prepare(start.Messages)
		if err != nil {
			_ = write(gin.H{"type": "error", "error": err.Error()})
			return
		}
		// A generation may outlast any read deadline; the client only
		// speaks again to stop.
		_ = conn.SetReadDeadline(time.Time{})

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		var (
			stopOnce sync.Once
			stopped  = make(chan struct{})
		)
		go func() {
			defer cancel()
			for {
				mt, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
					continue
				}
				var obj struct {
					Type string `json:"type"`
				}
				_ = json.Unmarshal(msg, &obj)
				if strings.ToLower(strings.TrimSpace(obj.Type)) == "stop" {
					stopOnce.Do(func() { close(stopped) })
					return
				}
			}
		}()

		state := proxy.Stream(ctx, history, func(f services.Frame) error {
			switch f.Kind {
			case services.FrameData:
				return write(gin.H{"type": "delta", "data": f.Text})
			case services.FrameError:
				return write(gin.H{"type": "error", "error": f.Text})
			default:
				return write(gin.H{"type": "done", "ok": true})
			}
		})

		select {
		case <-stopped:
			if state == services.StateCancelled {
				_ = write(gin.H{"type": "done", "ok": true, "stopped": true})
			}
		default:
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		log.Info("ws stream finished", "provider", proxy.Provider(), "state", state.String())
	}
}
