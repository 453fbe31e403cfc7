package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pokeguess/duel/internal/config"
	"github.com/pokeguess/duel/internal/server"
)

func main() {
	var c server.Config
	if err := config.Load(os.Getenv("CONFIG_PATH"), &c); err != nil {
		slog.Error("main: load config failed", "error", err)
		os.Exit(1)
	}

	s, err := server.Init(c)
	if err != nil {
		slog.Error("main: init server failed", "error", err)
		os.Exit(1)
	}

	go s.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()
	<-ctx.Done()

	s.Shutdown()
}
