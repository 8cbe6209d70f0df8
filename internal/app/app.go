package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	stdnet "net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinrush/internal/config"
	servernet "coinrush/internal/net"
	"coinrush/internal/sim"
	"coinrush/internal/telemetry"
	"coinrush/logging"
	loggingSinks "coinrush/logging/sinks"
	"coinrush/server"
)

const shutdownTimeout = 5 * time.Second

// Options carries process-level collaborators. The zero value logs to stdout.
type Options struct {
	Logger telemetry.Logger
	Stdout io.Writer
	// Ready, if set, receives the bound game and diagnostics addresses. The
	// diagnostics address is nil when diagnostics are disabled.
	Ready func(game, diagnostics stdnet.Addr)
}

// Run serves one session until ctx is cancelled or a listener fails.
func Run(ctx context.Context, cfg config.Server, opts Options) error {
	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	sessionID := uuid.NewString()
	severity, err := logging.ParseSeverity(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	logConfig := logging.DefaultConfig()
	logConfig.MinimumSeverity = severity
	logConfig.Fields = map[string]any{"session": sessionID}
	sinks := []logging.NamedSink{{Name: "console", Sink: loggingSinks.NewConsole(stdout)}}
	if cfg.LogJSONPath != "" {
		file, err := os.OpenFile(cfg.LogJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		sinks = append(sinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(file, time.Second)})
	}
	router := logging.NewRouter(logging.SystemClock{}, logConfig, sinks)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	counters := telemetry.NewCounters()

	simCfg := sim.DefaultConfig()
	simCfg.TickInterval = cfg.TickInterval
	simCfg.CoinInterval = cfg.CoinInterval
	simCfg.StartThreshold = cfg.StartThreshold
	session := sim.NewSession(simCfg, sim.Deps{
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   counters,
	})

	hubCfg := server.DefaultConfig()
	hubCfg.MaxPlayers = cfg.MaxPlayers
	hubCfg.BroadcastInterval = cfg.BroadcastInterval
	hubCfg.Latency = cfg.Latency
	hub := server.NewHub(session, hubCfg, server.Deps{
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   counters,
	})

	ln, err := stdnet.Listen("tcp", stdnet.JoinHostPort(cfg.ListenHost, strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	var httpServer *http.Server
	var diagLn stdnet.Listener
	if cfg.DiagnosticsAddr != "" {
		diagLn, err = stdnet.Listen("tcp", cfg.DiagnosticsAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("listen diagnostics: %w", err)
		}
		httpServer = &http.Server{
			Handler: servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
				SessionID: sessionID,
				Logger:    telemetryLogger,
				Counters:  counters,
				Events:    router.Stats,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := servernet.ServeTCP(ctx, ln, hub, telemetryLogger); err != nil {
			errs <- fmt.Errorf("game listener: %w", err)
		}
	}()

	var diagAddr stdnet.Addr
	if httpServer != nil {
		diagAddr = diagLn.Addr()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpServer.Serve(diagLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("diagnostics server: %w", err)
			}
		}()
	}

	telemetryLogger.Printf("session %s listening on %s", sessionID, ln.Addr())
	if diagAddr != nil {
		telemetryLogger.Printf("diagnostics listening on %s", diagAddr)
	}
	if opts.Ready != nil {
		opts.Ready(ln.Addr(), diagAddr)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}
	cancel()

	if httpServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			telemetryLogger.Printf("diagnostics shutdown: %v", err)
		}
		stop()
	}
	wg.Wait()
	return runErr
}
