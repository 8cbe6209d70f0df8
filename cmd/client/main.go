package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsf/termbox-go"

	"coinrush/internal/client"
	"coinrush/internal/config"
	"coinrush/internal/telemetry"
	"coinrush/internal/termui"
	"coinrush/logging"
	loggingSinks "coinrush/logging/sinks"
)

const frameInterval = time.Second / 60

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("%v", err)
	}
	cfg, err := config.LoadClient(os.Args[1:], nil)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg config.Client) error {
	// The terminal belongs to termbox, so diagnostics go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if cfg.LogPath != "" {
		file, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer file.Close()
		logOut = file
	}
	logger := telemetry.WrapLogger(log.New(logOut, "", log.LstdFlags))
	router := logging.NewRouter(logging.SystemClock{}, logging.DefaultConfig(), []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsole(logOut)},
	})
	defer router.Close(context.Background())

	clientCfg := client.DefaultConfig()
	clientCfg.Latency = cfg.Latency
	c := client.New(clientCfg, client.Deps{
		Publisher: router,
		Logger:    logger,
		Metrics:   telemetry.NewCounters(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx, cfg.Host, cfg.Port); err != nil {
		// Keep running so the player sees the disconnected notice.
		logger.Printf("%v", err)
	}
	defer c.Close()

	if err := termbox.Init(); err != nil {
		return err
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc)

	var keys termui.Keyboard
	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			ev := termbox.PollEvent()
			if ev.Type == termbox.EventInterrupt || ev.Type == termbox.EventError {
				return
			}
			if keys.Handle(ev, time.Now()) {
				return
			}
		}
	}()

	screen := termui.NewScreen(nil)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			termbox.Interrupt()
			<-quit
			return nil
		case <-quit:
			return nil
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now

			if dx, dy := keys.Direction(now); dx != 0 || dy != 0 {
				c.ApplyLocalInput(dx, dy, dt)
				c.SendInput(dx, dy)
			}
			c.UpdateInterpolation(dt)

			termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
			c.Render(screen)
			termbox.Flush()
		}
	}
}
