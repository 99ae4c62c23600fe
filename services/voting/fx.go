package voting

import "go.uber.org/fx"

var Module = fx.Module("voting.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
