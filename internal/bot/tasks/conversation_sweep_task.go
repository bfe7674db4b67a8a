package tasks

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// newConversationSweepTask marks conversations idle past the window as
// expired so they stop showing up as active.
func newConversationSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "conversation_sweep")

	return func(ctx context.Context) error {
		n, err := deps.Sessions.SweepIdle(ctx, deps.now())
		if err != nil {
			return goerr.Wrap(err, "conversation sweep failed")
		}
		if n > 0 {
			log.InfoContext(ctx, "Expired idle conversations", "count", n)
		}
		return nil
	}
}
