// Package config provides configuration loading, validation, and management
// for the nutrition assistant. It reads a YAML file, applies NUTRIBOT_*
// environment overrides on top of defaults and validates the result.
package config

import (
	"time"
	_ "time/tzdata" // timezone validation must not depend on the host zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/m-mizutani/goerr/v2"
)

// Config is the root application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Session    SessionConfig    `mapstructure:"session"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Tracking   TrackingConfig   `mapstructure:"tracking"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Messages   MessagesConfig   `mapstructure:"messages"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig points at the SQLite database file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig configures the messaging channel. BotInfo is filled at
// runtime after GetMe.
type TelegramConfig struct {
	Token       string       `mapstructure:"token"`
	AdminUserID int64        `mapstructure:"admin_user_id" validate:"gte=0"`
	BotInfo     *models.User `mapstructure:"-"`
}

// GeminiConfig configures the language model capability.
type GeminiConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	ModelName          string        `mapstructure:"model_name" validate:"required"`
	Temperature        float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0,lte=5"`
	RetryDelaySeconds  int           `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures" validate:"gte=1"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout" validate:"gt=0"`
	ConversionTimeout  time.Duration `mapstructure:"conversion_timeout" validate:"gt=0"`
}

// SessionConfig bounds conversation lifetime and pending confirmations.
type SessionConfig struct {
	IdleWindow      time.Duration `mapstructure:"idle_window" validate:"gt=0"`
	HistoryLimit    int           `mapstructure:"history_limit" validate:"gte=1,lte=100"`
	PendingTTL      time.Duration `mapstructure:"pending_ttl" validate:"gt=0"`
	CarryOverWindow time.Duration `mapstructure:"carry_over_window" validate:"gt=0"`
}

// ClassifierConfig tunes the hybrid intent classifier.
type ClassifierConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	HistoryWindow int           `mapstructure:"history_window" validate:"gt=0,lte=50"`
}

// ResolverConfig tunes the entity resolution cascade.
type ResolverConfig struct {
	FoodThreshold     float64       `mapstructure:"food_threshold" validate:"gt=0,lte=1"`
	ExerciseThreshold float64       `mapstructure:"exercise_threshold" validate:"gt=0,lte=1"`
	ShortQueryLength  int           `mapstructure:"short_query_length" validate:"gt=0"`
	CandidateLimit    int           `mapstructure:"candidate_limit" validate:"gte=1"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	MaxQueryRunes     int           `mapstructure:"max_query_runes" validate:"gte=8"`
}

// TrackingConfig holds per-user defaults used by aggregation.
type TrackingConfig struct {
	Timezone             string  `mapstructure:"timezone" validate:"required,timezone"`
	DefaultWeightKg      float64 `mapstructure:"default_weight_kg" validate:"gt=0"`
	DefaultCalorieTarget float64 `mapstructure:"default_calorie_target" validate:"gt=0"`
	WeekDays             int     `mapstructure:"week_days" validate:"gte=1,lte=31"`
}

// TaskConfig enables and schedules a single background task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their configuration.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// MessagesConfig holds the fixed user-facing copy.
type MessagesConfig struct {
	Welcome              string `mapstructure:"welcome" validate:"required"`
	Help                 string `mapstructure:"help" validate:"required"`
	Fallback             string `mapstructure:"fallback" validate:"required"`
	Unknown              string `mapstructure:"unknown" validate:"required"`
	NothingPending       string `mapstructure:"nothing_pending" validate:"required"`
	Rejected             string `mapstructure:"rejected" validate:"required"`
	ErrorUnauthorizedMsg string `mapstructure:"error_unauthorized" validate:"required"`
	ResetConfirmMsg      string `mapstructure:"reset_confirm" validate:"required"`
	ResetErrorMsg        string `mapstructure:"reset_error" validate:"required"`
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return goerr.Wrap(err, "configuration validation failed")
	}
	return nil
}
