package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"oxbobot/config"
	"oxbobot/pkg/api"
	"oxbobot/pkg/bot"
	"oxbobot/pkg/logger"
	"oxbobot/pkg/media"
	"oxbobot/service"
	"oxbobot/storage/backend"
)

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Logger
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", logger.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Storage
	stg, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", logger.String("driver", cfg.StorageDriver), logger.Error(err))
		os.Exit(1)
	}
	defer stg.Close()

	// 4. Initialize Bot; it is also the notifier of the workflow
	b, err := bot.New(&cfg, log)
	if err != nil {
		log.Error("failed to initialize bot", logger.Error(err))
		os.Exit(1)
	}

	svc := service.New(stg, b, service.Secrets{User: cfg.UserPassword, Admin: cfg.AdminPassword}, log)
	router := bot.NewRouter(svc.Approval(), media.NewCameraStore(cfg.CameraDir), media.NewLogReader(cfg.LogFile), log)
	b.Route(router)

	// 5. Optional status API
	if cfg.APIEnabled {
		go func() {
			if err := api.RunServer(ctx, cfg.APIAddr, stg, log); err != nil {
				log.Error("status api stopped", logger.Error(err))
			}
		}()
	}

	// 6. Tell subscribers we are back
	if cfg.WakeMessage != "" {
		sent, err := svc.Approval().Broadcast(ctx, cfg.WakeMessage, "", false)
		if err != nil {
			log.Warning("wake-up broadcast failed", logger.Error(err))
		} else {
			log.Info("wake-up broadcast sent", logger.Int("recipients", sent))
		}
	}

	// 7. Run until SIGINT/SIGTERM
	b.Start(ctx)
	log.Info("shutting down")
}
