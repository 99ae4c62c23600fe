package notification

import (
	"context"
	"encoding/json"

	"bringitback-controlplane/pkg/logger"
	"bringitback-controlplane/pkg/task"
	"bringitback-controlplane/pkg/taskname"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Emitter delivers notifications best effort. Emit never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, notifications ...*Notification)
}

type taskEmitter struct {
	enqueuer task.Enqueuer
	node     *snowflake.Node
}

type EmitterParams struct {
	fx.In

	Enqueuer task.Enqueuer
	Node     *snowflake.Node
}

func NewEmitter(p EmitterParams) Emitter {
	return &taskEmitter{
		enqueuer: p.Enqueuer,
		node:     p.Node,
	}
}

func (e *taskEmitter) Emit(ctx context.Context, notifications ...*Notification) {
	log := logger.FromContext(ctx)

	var g errgroup.Group
	g.SetLimit(8)
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = e.node.Generate().String()
		}

		payload, err := json.Marshal(n)
		if err != nil {
			log.Warn("failed to encode notification", zap.String("type", string(n.Type)), zap.Error(err))
			continue
		}

		g.Go(func() error {
			t := asynq.NewTask(taskname.NotificationDeliver, payload)
			if _, err := e.enqueuer.Enqueue(ctx, t,
				asynq.Queue(taskname.QueueLow),
				asynq.MaxRetry(5),
				asynq.TaskID("notification:"+n.ID),
			); err != nil {
				log.Warn("failed to enqueue notification",
					zap.String("notification_id", n.ID),
					zap.String("type", string(n.Type)),
					zap.String("user_id", n.UserID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
