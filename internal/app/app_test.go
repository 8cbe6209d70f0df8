package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdnet "net"
	"net/http"
	"sync"
	"testing"
	"time"

	"coinrush/internal/config"
	"coinrush/internal/proto"
	"coinrush/internal/telemetry"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestRunServesGameAndDiagnostics(t *testing.T) {
	cfg := config.DefaultServer()
	cfg.ListenHost = "127.0.0.1"
	cfg.Port = 0
	cfg.DiagnosticsAddr = "127.0.0.1:0"

	type addrs struct{ game, diag stdnet.Addr }
	ready := make(chan addrs, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	out := &lockedBuffer{}
	go func() {
		done <- Run(ctx, cfg, Options{
			Logger: telemetry.LoggerFunc(func(string, ...any) {}),
			Stdout: out,
			Ready:  func(game, diag stdnet.Addr) { ready <- addrs{game, diag} },
		})
	}()

	var a addrs
	select {
	case a = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("server never became ready")
	}

	conn, err := stdnet.Dial("tcp", a.game.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, proto.HeaderSize+4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read start game: %v", err)
	}
	if start, err := proto.DecodeStartGame(buf); err != nil || start.PlayerID != 1 {
		t.Fatalf("unexpected start game %+v err=%v", start, err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/diagnostics", a.diag))
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	var payload struct {
		SessionID string `json:"sessionId"`
		Hub       struct {
			Connections int `json:"connections"`
		} `json:"hub"`
		Events *struct {
			Sinks []struct {
				Name string `json:"name"`
			} `json:"sinks"`
		} `json:"events"`
	}
	err = json.NewDecoder(resp.Body).Decode(&payload)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if payload.SessionID == "" || payload.Hub.Connections != 1 {
		t.Fatalf("unexpected diagnostics %+v", payload)
	}
	if payload.Events == nil || len(payload.Events.Sinks) != 1 || payload.Events.Sinks[0].Name != "console" {
		t.Fatalf("expected router stats for the console sink, got %+v", payload.Events)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}

	out.mu.Lock()
	logged := out.buf.String()
	out.mu.Unlock()
	if !bytes.Contains([]byte(logged), []byte("lifecycle.player_joined")) {
		t.Fatalf("expected join event on the console, got %q", logged)
	}
}

func TestRunRejectsUnknownLogLevel(t *testing.T) {
	cfg := config.DefaultServer()
	cfg.LogLevel = "loud"
	if err := Run(context.Background(), cfg, Options{}); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}
