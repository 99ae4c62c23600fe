package main

import (
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"bringitback-controlplane/pkg/accesscontrol"
	"bringitback-controlplane/pkg/config"
	"bringitback-controlplane/pkg/db"
	"bringitback-controlplane/pkg/featureflags"
	"bringitback-controlplane/pkg/gen"
	"bringitback-controlplane/pkg/hashistack/secretmanager"
	"bringitback-controlplane/pkg/hashistack/servicediscover"
	"bringitback-controlplane/pkg/health"
	"bringitback-controlplane/pkg/httpapi"
	"bringitback-controlplane/pkg/logger"
	"bringitback-controlplane/pkg/otelcol"
	"bringitback-controlplane/pkg/payment/midtrans"
	"bringitback-controlplane/pkg/profiling"
	"bringitback-controlplane/pkg/redis"
	"bringitback-controlplane/pkg/sequence"
	"bringitback-controlplane/pkg/server"
	"bringitback-controlplane/pkg/task"
	"bringitback-controlplane/services/bootstrap"
	"bringitback-controlplane/services/campaign"
	"bringitback-controlplane/services/contribution"
	"bringitback-controlplane/services/notification"
	"bringitback-controlplane/services/payout"
	"bringitback-controlplane/services/solution"
	"bringitback-controlplane/services/voting"
)

func main() {
	opts := []fx.Option{
		configModule(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		gen.Module,
		accesscontrol.Module,
		featureflags.Module,
		midtrans.Module,
		health.Module,
		httpapi.Module,
		bootstrap.Module,
		notification.Module,
		campaign.Module,
		contribution.Module,
		solution.Module,
		voting.Module,
		payout.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		servicediscover.Module,
		fxLogger,
	}
	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
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
