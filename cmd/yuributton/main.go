package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"yuributton/internal/app"
	"yuributton/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(config.Load())
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Stopped with error: %v", err)
	}
}
