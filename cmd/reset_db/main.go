package main

import (
	"context"
	"os"

	"oxbobot/config"
	"oxbobot/pkg/logger"
	"oxbobot/pkg/models"
	"oxbobot/storage"
	"oxbobot/storage/backend"
)

// reset_db removes every user and puts the policy back to its defaults.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)
	ctx := context.Background()

	stg, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", logger.Error(err))
		os.Exit(1)
	}
	defer stg.Close()

	removed, err := reset(ctx, stg)
	if err != nil {
		log.Error("failed to reset storage", logger.Error(err))
		stg.Close()
		os.Exit(1)
	}
	log.Info("storage reset", logger.Int("users_removed", removed))
}

func reset(ctx context.Context, stg storage.IStorage) (int, error) {
	users, err := stg.User().List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, u := range users {
		ok, err := stg.User().Remove(ctx, u.Username)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	def := models.DefaultPolicy()
	for _, forAdmin := range []bool{false, true} {
		value, quota := def.UserPolicy, def.UserMaxRequests
		if forAdmin {
			value, quota = def.AdminPolicy, def.AdminMaxRequests
		}
		if _, err := stg.Policy().Set(ctx, forAdmin, value); err != nil {
			return removed, err
		}
		if _, err := stg.Policy().SetMaxRequests(ctx, forAdmin, quota); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
