package payout

import (
	"bringitback-controlplane/pkg/accesscontrol"

	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(
		NewService,
		NewHandler,
		provideAdminDirectory,
	),
	fx.Invoke(RegisterRoutes),
)

func provideAdminDirectory(e *accesscontrol.Enforcer) AdminDirectory {
	return e
}
