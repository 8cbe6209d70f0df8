package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/mux"

	"coinrush/internal/net/ws"
	"coinrush/internal/telemetry"
	"coinrush/logging"
	"coinrush/server"
)

type HTTPHandlerConfig struct {
	SessionID string
	Logger    telemetry.Logger
	Counters  *telemetry.Counters
	// Events, if set, reports the event router's delivery counts.
	Events func() logging.RouterStats
}

type diagnosticsResponse struct {
	Status     string               `json:"status"`
	SessionID  string               `json:"sessionId"`
	ServerTime int64                `json:"serverTime"`
	Hub        server.Diagnostics   `json:"hub"`
	Telemetry  map[string]uint64    `json:"telemetry"`
	Events     *logging.RouterStats `json:"events,omitempty"`
}

// NewHTTPHandler routes the operator endpoints and the websocket gateway.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := diagnosticsResponse{
			Status:     "ok",
			SessionID:  cfg.SessionID,
			ServerTime: time.Now().UnixMilli(),
			Hub:        hub.Diagnostics(),
			Telemetry:  cfg.Counters.Snapshot(),
		}
		if cfg.Events != nil {
			stats := cfg.Events()
			payload.Events = &stats
		}
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Printf("[http] encode diagnostics: %v", err)
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}).Methods(nethttp.MethodGet)

	router.Handle("/ws", ws.NewHandler(hub, ws.HandlerConfig{Logger: logger}))

	return router
}

func httpError(w nethttp.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
