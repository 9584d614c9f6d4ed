package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/middleware"
	"github.com/Dosada05/arena-tournaments/tourney"
	"github.com/Dosada05/arena-tournaments/users"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is not restricted; deployments front this with their own
	// origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub      *brackets.Hub
	manager  *tourney.Manager
	registry *users.Registry
	logger   *slog.Logger
}

func NewWebSocketHandler(hub *brackets.Hub, manager *tourney.Manager, registry *users.Registry, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{hub: hub, manager: manager, registry: registry, logger: logger}
}

// ServeWs attaches the caller to a tournament room's push stream. If the room
// has a running tournament its current state is replayed to the new
// connection.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	identity, err := middleware.GetIdentityFromContext(r.Context())
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	user := h.registry.GetExact(identity.UserID)
	if user == nil {
		http.Error(w, "unknown account, request a new token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "room", roomID, "error", err)
		return
	}
	h.registry.SetConnected(user.ID, true)

	client := &brackets.Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Room:   roomID,
		UserID: user.ID,
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	if t, err := h.manager.Get(roomID); err == nil {
		if err := t.Resync(user); err != nil {
			h.logger.Error("resync on attach failed", "room", roomID, "user", user.ID, "error", err)
		}
	}
}
