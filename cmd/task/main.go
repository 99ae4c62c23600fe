package main

import (
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"bringitback-controlplane/pkg/config"
	"bringitback-controlplane/pkg/db"
	"bringitback-controlplane/pkg/hashistack/secretmanager"
	"bringitback-controlplane/pkg/logger"
	"bringitback-controlplane/pkg/task"
	"bringitback-controlplane/services/notification"
)

func main() {
	opts := []fx.Option{
		configModule(),
		logger.Module,
		db.Module,
		task.Server,
		notification.Worker,
		fxLogger,
	}
	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

func configModule() fx.Option {
	if _, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		return config.RemoteModule
	}
	return config.Module
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
