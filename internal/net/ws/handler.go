package ws

import (
	"errors"
	"log"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"coinrush/internal/telemetry"
	"coinrush/server"
)

type HandlerConfig struct {
	Logger telemetry.Logger
}

// Handler upgrades requests and serves each socket as a hub connection.
type Handler struct {
	hub      *server.Hub
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	if err := h.hub.Serve(r.Context(), NewConn(conn)); err != nil {
		if errors.Is(err, server.ErrHubFull) {
			h.logger.Printf("[ws] refused %s: %v", r.RemoteAddr, err)
			return
		}
		h.logger.Printf("[ws] connection %s ended: %v", r.RemoteAddr, err)
	}
}

func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	h.Handle(w, r)
}
