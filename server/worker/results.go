package worker

import (
	"context"

	"go.uber.org/zap"

	"pokerarena/server/queue"
	"pokerarena/server/results"
)

// Results persists outcome messages. A delivery is acked only after its
// record has been stored.
type Results struct {
	Handler *results.Handler
	Log     *zap.Logger
}

func (r *Results) Run(ctx context.Context, bus queue.Subscriber, subscription string) error {
	r.logger().Info("results worker listening", zap.String("subscription", subscription))
	return bus.Receive(ctx, subscription, r.HandleOutcome)
}

func (r *Results) HandleOutcome(ctx context.Context, data []byte) error {
	var msg results.Message
	if err := queue.Decode(data, &msg); err != nil {
		r.logger().Error("dropping undecodable outcome", zap.Error(err))
		return nil
	}
	return r.Handler.Handle(ctx, msg)
}

func (r *Results) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
