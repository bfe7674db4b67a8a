package tasks

import (
	"context"
)

// newCatalogRefreshTask drops the cached fuzzy candidate sets so rows added
// by a seed run become candidates.
func newCatalogRefreshTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "catalog_refresh")

	return func(ctx context.Context) error {
		deps.Catalog.Invalidate()
		log.DebugContext(ctx, "Catalog candidate cache invalidated")
		return nil
	}
}
