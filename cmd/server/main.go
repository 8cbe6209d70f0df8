package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"coinrush/internal/app"
	"coinrush/internal/config"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("%v", err)
	}
	cfg, err := config.LoadServer(os.Args[1:], nil)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, app.Options{}); err != nil {
		log.Fatalf("%v", err)
	}
}
