package ws

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"coinrush/internal/proto"
	"coinrush/internal/sim"
	"coinrush/server"
)

func newHub(t *testing.T, cfg server.Config) *server.Hub {
	t.Helper()
	session := sim.NewSession(sim.DefaultConfig(), sim.Deps{Rand: rand.New(rand.NewSource(1))})
	hub := server.NewHub(session, cfg, server.Deps{})
	t.Cleanup(hub.Close)
	return hub
}

func websocketURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse server url: %v", err)
	}
	u.Scheme = "ws"
	return u.String()
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Fatalf("expected binary message, got %d", messageType)
	}
	return payload
}

func TestGatewaySendsStartGameAndAcceptsInput(t *testing.T) {
	hub := newHub(t, server.DefaultConfig())
	srv := httptest.NewServer(http.HandlerFunc(NewHandler(hub, HandlerConfig{}).Handle))
	t.Cleanup(srv.Close)

	first := dial(t, srv)
	start, err := proto.DecodeStartGame(readFrame(t, first))
	if err != nil {
		t.Fatalf("decode start game: %v", err)
	}
	if start.PlayerID != 1 {
		t.Fatalf("expected id 1, got %d", start.PlayerID)
	}
	second := dial(t, srv)
	if _, err := proto.DecodeStartGame(readFrame(t, second)); err != nil {
		t.Fatalf("decode second start game: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !hub.Session().Running() {
		if time.Now().After(deadline) {
			t.Fatalf("session did not start")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// Split one input frame across two websocket messages.
	frame := proto.EncodeInput(proto.ClientInput{DX: -1, Seq: 1, Timestamp: 5})
	if err := first.WriteMessage(websocket.BinaryMessage, frame[:5]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := first.WriteMessage(websocket.BinaryMessage, frame[5:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	for {
		hub.Session().Step(context.Background())
		if p, _ := hub.Session().Player(1); p.LastProcessedInputSeq == 1 {
			if p.Position.X >= sim.SpawnX {
				t.Fatalf("expected player to move left, got %+v", p.Position)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("input never applied")
		}
		time.Sleep(2 * time.Millisecond)
	}

	hub.Broadcast()
	gs, err := proto.DecodeGameState(readFrame(t, second))
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(gs.Players) != 2 {
		t.Fatalf("expected two players in state, got %d", len(gs.Players))
	}
}

func TestGatewayClosesRefusedConnections(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.MaxPlayers = 1
	hub := newHub(t, cfg)
	srv := httptest.NewServer(NewHandler(hub, HandlerConfig{}))
	t.Cleanup(srv.Close)

	first := dial(t, srv)
	readFrame(t, first)

	second := dial(t, srv)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatalf("expected refused connection to be closed")
	}
	if hub.ConnectionCount() != 1 {
		t.Fatalf("expected one connection, got %d", hub.ConnectionCount())
	}
}
