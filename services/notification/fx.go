package notification

import (
	"bringitback-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(
		NewService,
		NewEmitter,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// Worker persists delivered notifications, run by cmd/task.
var Worker = fx.Module("notification.worker",
	fx.Provide(NewService),
	fx.Invoke(registerTaskHandlers),
)

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.NotificationDeliver, svc.HandleDeliverTask)
}
