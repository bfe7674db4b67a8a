package tasks

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/tracking"
)

// newSummaryRepairTask recomputes yesterday's daily summaries from their
// confirmed meal and exercise logs, undoing any drift left by partial
// writes. Yesterday is taken in the default time zone.
func newSummaryRepairTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "summary_repair")

	return func(ctx context.Context) error {
		today := tracking.LocalDate(deps.now(), deps.Tracker.Location(nil))
		yesterday, err := tracking.AddDays(today, -1)
		if err != nil {
			return err
		}

		repaired, err := deps.Tracker.RepairDate(ctx, yesterday)
		if err != nil {
			return goerr.Wrap(err, "summary repair failed", goerr.V("date", yesterday))
		}
		log.InfoContext(ctx, "Daily summaries repaired", "date", yesterday, "count", repaired)
		return nil
	}
}
