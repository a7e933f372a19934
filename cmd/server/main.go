package main

import (
	"log/slog"
	"net/http"

	"github.com/dropbeam/dropbeam/internal/app"
	"github.com/dropbeam/dropbeam/internal/config"
	"github.com/dropbeam/dropbeam/internal/logger"
	"github.com/dropbeam/dropbeam/internal/routes"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	app, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		panic(err)
	}
	defer func() {
		closeErr := app.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	err = app.Sweeper.Start()
	if err != nil {
		slog.Error("failed to start sweeper", "error", err)
		panic(err)
	}

	handler := routes.SetupRoutes(app)
	slog.Info("server starting", cfg.Sanitized()...)

	err = http.ListenAndServe(":"+cfg.Port, handler)
	if err != nil {
		slog.Error("server failed", "error", err)
		panic(err)
	}
}
