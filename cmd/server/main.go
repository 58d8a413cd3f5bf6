package main // Entry point package

import (
	"context"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/iliyamo/fitback/internal/config"
	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/server"
)

func main() {
	cfg := config.Load() // Load environment config
	log := logging.New(os.Stdout, cfg.Env)
	ctx := context.Background()

	app, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := app.Start(); err != nil {
			log.Error(ctx, "server stopped", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"fitback": func(ctx context.Context) error {
			log.Info(ctx, "graceful shutdown initiated")
			return app.Shutdown(ctx)
		},
	})
	code := <-wait
	log.Info(ctx, "exited", "code", code)
	os.Exit(code)
}
