// Package tasks implements the scheduled maintenance jobs of the bot.
package tasks

import (
	"log/slog"
	"time"

	"github.com/edgard/nutribot/internal/catalog"
	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/session"
	"github.com/edgard/nutribot/internal/tracking"
)

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Sessions *session.Manager
	Tracker  *tracking.Tracker
	Catalog  *catalog.Cache
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
