package solution

import "go.uber.org/fx"

var Module = fx.Module("solution.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
