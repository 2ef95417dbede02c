package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/server/websocket"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
)

type WebSocketHandler struct {
	hub      *websocket.WsHub
	upgrader gorillaws.Upgrader
	cfg      config.WebSocketConfig
	logger   zerolog.Logger
}

func NewWebSocketHandler(hub *websocket.WsHub, cfg config.WebSocketConfig, logger zerolog.Logger) *WebSocketHandler {
	upgrader := gorillaws.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}
	if !cfg.CheckOrigin {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &WebSocketHandler{
		hub:      hub,
		upgrader: upgrader,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleConnection upgrades the request and subscribes the caller to live
// settlement and withdrawal updates for their user ID.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "user_id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Err(err).Str("user_id", userID).Msg("WebSocket upgrade failed")
		return
	}

	client := &websocket.WsClient{UserID: userID, Conn: conn}
	h.hub.Register <- client

	go h.keepAlive(client)
	go h.readLoop(client)
}

func (h *WebSocketHandler) keepAlive(client *websocket.WsClient) {
	period := h.cfg.PingPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for range ticker.C {
		if err := client.Conn.WriteMessage(gorillaws.PingMessage, nil); err != nil {
			return
		}
	}
}

// readLoop drains incoming frames so control messages are processed and
// the hub learns about disconnects.
func (h *WebSocketHandler) readLoop(client *websocket.WsClient) {
	defer func() {
		h.hub.Unregister <- client
	}()
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
