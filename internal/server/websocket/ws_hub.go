package websocket

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type WsHub struct {
	Clients    map[string]map[*websocket.Conn]bool
	Broadcast  chan WsMessage
	Register   chan *WsClient
	Unregister chan *WsClient
	Logger     zerolog.Logger
}

type WsClient struct {
	UserID string
	Conn   *websocket.Conn
}

type WsMessage struct {
	Type       string                   `json:"type"`
	Settlement *domain.SettlementRecord `json:"settlement,omitempty"`
	Withdrawal *domain.Withdrawal       `json:"withdrawal,omitempty"`
}

func NewWsHub(logger zerolog.Logger) *WsHub {
	hub := &WsHub{
		Clients:    make(map[string]map[*websocket.Conn]bool),
		Broadcast:  make(chan WsMessage, 100),
		Register:   make(chan *WsClient, 100),
		Unregister: make(chan *WsClient, 100),
		Logger:     logger,
	}
	return hub
}

// BroadcastSettlement implements interfaces.Broadcaster. Pushes are
// non-blocking: a saturated hub drops updates rather than stalling
// settlement.
func (h *WsHub) BroadcastSettlement(record *domain.SettlementRecord) {
	select {
	case h.Broadcast <- WsMessage{Type: "settlement", Settlement: record}:
	default:
		h.Logger.Warn().Str("settlement_id", record.ID).Msg("WebSocket broadcast queue full, update dropped")
	}
}

func (h *WsHub) BroadcastWithdrawal(withdrawal *domain.Withdrawal) {
	select {
	case h.Broadcast <- WsMessage{Type: "withdrawal", Withdrawal: withdrawal}:
	default:
		h.Logger.Warn().Str("withdrawal_id", withdrawal.ID).Msg("WebSocket broadcast queue full, update dropped")
	}
}

func (h *WsHub) Run() {
	for {
		select {
		case client := <-h.Register:
			if h.Clients[client.UserID] == nil {
				h.Clients[client.UserID] = make(map[*websocket.Conn]bool)
			}
			h.Clients[client.UserID][client.Conn] = true
			h.Logger.Info().
				Str("user_id", client.UserID).
				Int("connection_count", len(h.Clients[client.UserID])).
				Msg("WebSocket client registered")

		case client := <-h.Unregister:
			if clients, ok := h.Clients[client.UserID]; ok {
				delete(clients, client.Conn)
				if len(clients) == 0 {
					delete(h.Clients, client.UserID)
				}
				client.Conn.Close()
			}

		case message := <-h.Broadcast:
			h.deliver(message)
		}
	}
}

func (h *WsHub) deliver(message WsMessage) {
	var userID string
	switch {
	case message.Settlement != nil:
		userID = message.Settlement.UserID
	case message.Withdrawal != nil:
		userID = message.Withdrawal.UserID
	default:
		return
	}

	clients, ok := h.Clients[userID]
	if !ok {
		return
	}
	for conn := range clients {
		if err := conn.WriteJSON(message); err != nil {
			h.Logger.Warn().Err(err).Str("user_id", userID).Msg("WebSocket write failed, dropping client")
			conn.Close()
			delete(clients, conn)
		}
	}
	if len(clients) == 0 {
		delete(h.Clients, userID)
	}
}
