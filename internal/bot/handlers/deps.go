package handlers

import (
	"log/slog"

	"github.com/edgard/nutribot/internal/config"
	"github.com/edgard/nutribot/internal/dialogue"
	"github.com/edgard/nutribot/internal/session"
	"github.com/edgard/nutribot/internal/tracking"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Sessions     *session.Manager
	Tracker      *tracking.Tracker
	Orchestrator *dialogue.Orchestrator
}
