package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/catalog"
	"github.com/edgard/nutribot/internal/config"
	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/dialogue"
	"github.com/edgard/nutribot/internal/fuzzy"
	"github.com/edgard/nutribot/internal/gemini"
	"github.com/edgard/nutribot/internal/intent"
	"github.com/edgard/nutribot/internal/logger"
	"github.com/edgard/nutribot/internal/resolve"
	"github.com/edgard/nutribot/internal/session"
	"github.com/edgard/nutribot/internal/tracking"

	_ "modernc.org/sqlite"
)

// app is the composition root shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *sqlx.DB
	store    database.Store
	loc      *time.Location
	catalog  *catalog.Cache
	sessions *session.Manager
	resolver *resolve.Resolver
	tracker  *tracking.Tracker
	llm      gemini.Client
}

// newApp loads the configuration, opens the database and builds the
// domain components. Close must be called when done.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)

	loc, err := time.LoadLocation(cfg.Tracking.Timezone)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid tracking timezone", goerr.V("timezone", cfg.Tracking.Timezone))
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	store := database.NewStore(db, log)

	llm, err := gemini.NewClient(ctx, cfg.Gemini, log)
	switch {
	case errors.Is(err, gemini.ErrMissingAPIKey):
		log.Warn("No Gemini API key configured, classifying with rules only")
		llm = nil
	case err != nil:
		database.CloseDB(db)
		return nil, err
	}

	cache := catalog.NewCache(store, cfg.Resolver.CacheTTL, cfg.Resolver.CandidateLimit, log)

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		store:   store,
		loc:     loc,
		catalog: cache,
		llm:     llm,
		sessions: session.NewManager(store, session.Config{
			IdleWindow:   cfg.Session.IdleWindow,
			HistoryLimit: cfg.Session.HistoryLimit,
			PendingTTL:   cfg.Session.PendingTTL,
		}, log),
		tracker: tracking.NewTracker(store, tracking.Config{
			Location:             loc,
			DefaultWeightKg:      cfg.Tracking.DefaultWeightKg,
			DefaultCalorieTarget: cfg.Tracking.DefaultCalorieTarget,
			WeekDays:             cfg.Tracking.WeekDays,
		}, log),
	}
	a.resolver = resolve.New(store, cache, a.converter(), fuzzy.Levenshtein{}, resolve.Config{
		FoodThreshold:     cfg.Resolver.FoodThreshold,
		ExerciseThreshold: cfg.Resolver.ExerciseThreshold,
		ShortQueryLength:  cfg.Resolver.ShortQueryLength,
		ConversionTimeout: cfg.Gemini.ConversionTimeout,
		MaxQueryRunes:     cfg.Resolver.MaxQueryRunes,
	}, log)
	return a, nil
}

// converter returns the model as a resolve.Converter, or nil without one.
func (a *app) converter() resolve.Converter {
	if a.llm == nil {
		return nil
	}
	return a.llm
}

func (a *app) classifierLLM() intent.LLM {
	if a.llm == nil {
		return nil
	}
	return a.llm
}

// orchestrator builds the dialogue loop delivering replies through sender.
func (a *app) orchestrator(sender dialogue.Sender) *dialogue.Orchestrator {
	return dialogue.New(dialogue.Deps{
		Logger:   a.log,
		Messages: a.cfg.Messages,
		Receipts: a.store,
		Sessions: a.sessions,
		Classifier: intent.NewClassifier(a.classifierLLM(), intent.Config{
			Timeout:         a.cfg.Classifier.Timeout,
			HistoryWindow:   a.cfg.Classifier.HistoryWindow,
			CarryOverWindow: a.cfg.Session.CarryOverWindow,
		}, a.log),
		Resolver: a.resolver,
		Tracker:  a.tracker,
		Sender:   sender,
	})
}

// seedDefaultCatalog upserts the built-in catalog.
func (a *app) seedDefaultCatalog(ctx context.Context) error {
	seed, err := catalog.DefaultSeed()
	if err != nil {
		return err
	}
	n, err := seed.Apply(ctx, a.store)
	if err != nil {
		return goerr.Wrap(err, "failed to apply default catalog")
	}
	a.catalog.Invalidate()
	a.log.Info("Default catalog applied", "items", n)
	return nil
}

func (a *app) Close() {
	database.CloseDB(a.db)
}
