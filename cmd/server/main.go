// cmd/server/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"net/http"
	_ "net/http/pprof"

	"github.com/SinaHo/community-gate-bot/internal/config"
	"github.com/SinaHo/community-gate-bot/internal/logger"
	"github.com/SinaHo/community-gate-bot/internal/server"
)

func main() {
	configDir := "internal/config"
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		configDir = dir
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.FromConfig(cfg.Logging)
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	defer log.Sync()
	sugar := log.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.NewAppServer(ctx, cfg, log)
	if err != nil {
		sugar.Fatalf("failed to initialize server: %v", err)
	}

	if cfg.Server.PprofAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.Server.PprofAddr, nil); err != nil {
				sugar.Warnw("pprof server stopped", "error", err)
			}
		}()
	}

	// Run returns once SIGINT/SIGTERM cancels ctx
	if err := app.Run(ctx); err != nil {
		sugar.Errorw("server run error", "error", err)
	} else {
		sugar.Info("Received shutdown signal")
	}
	app.GracefulStop()
	sugar.Info("Server stopped")
}
