package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// CatalogKind distinguishes foods from exercises in the shared catalog table.
type CatalogKind string

const (
	KindFood     CatalogKind = "food"
	KindExercise CatalogKind = "exercise"
)

// Intensity selects which MET coefficient applies to an exercise.
type Intensity string

const (
	IntensityLight    Intensity = "light"
	IntensityModerate Intensity = "moderate"
	IntensityVigorous Intensity = "vigorous"
)

// Measures maps a named household measure ("colher", "fatia") to grams.
// It is stored as a JSON object.
type Measures map[string]float64

// Value implements driver.Valuer.
func (m Measures) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]float64(m))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode measures")
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Measures) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Measures{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return goerr.New("unsupported measures column type", goerr.V("type", v))
	}
	out := Measures{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return goerr.Wrap(err, "failed to decode measures")
		}
	}
	*m = out
	return nil
}

// CatalogItem is a canonical food or exercise. Only UsageCount and
// LastUsedAt change after creation.
type CatalogItem struct {
	ID             int64       `db:"id"`
	Kind           CatalogKind `db:"kind"`
	Name           string      `db:"name"`
	NormalizedName string      `db:"normalized_name"`
	CompactName    string      `db:"compact_name"`

	CaloriesPer100g float64  `db:"calories_per_100g"`
	ProteinPer100g  float64  `db:"protein_per_100g"`
	CarbsPer100g    float64  `db:"carbs_per_100g"`
	FatPer100g      float64  `db:"fat_per_100g"`
	ServingGrams    float64  `db:"serving_grams"`
	Measures        Measures `db:"measures"`

	METLight       float64 `db:"met_light"`
	METModerate    float64 `db:"met_moderate"`
	METVigorous    float64 `db:"met_vigorous"`
	DefaultMinutes int     `db:"default_minutes"`

	UsageCount int64        `db:"usage_count"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`

	Aliases []string `db:"-"`
}

// MET returns the coefficient for the given intensity, falling back to the
// moderate value when the requested one is not declared.
func (c *CatalogItem) MET(i Intensity) float64 {
	switch i {
	case IntensityLight:
		if c.METLight > 0 {
			return c.METLight
		}
	case IntensityVigorous:
		if c.METVigorous > 0 {
			return c.METVigorous
		}
	}
	return c.METModerate
}

// ResolutionFallback records a catalog miss for later curation.
type ResolutionFallback struct {
	ID              int64       `db:"id"`
	Kind            CatalogKind `db:"kind"`
	Query           string      `db:"query"`
	NormalizedQuery string      `db:"normalized_query"`
	Identity        string      `db:"identity"`
	CreatedAt       time.Time   `db:"created_at"`
}

// ConversationStatus is the lifecycle state of a conversation row.
type ConversationStatus string

const (
	ConversationActive  ConversationStatus = "active"
	ConversationExpired ConversationStatus = "expired"
)

// Conversation groups the messages exchanged with one identity between idle
// gaps. State holds the JSON encoded conversation state, if any.
type Conversation struct {
	ID             int64              `db:"id"`
	Identity       string             `db:"identity"`
	Status         ConversationStatus `db:"status"`
	LastActivityAt time.Time          `db:"last_activity_at"`
	State          sql.NullString     `db:"state"`
	CreatedAt      time.Time          `db:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at"`
}

// MessageRole identifies the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is an append-only conversation entry.
type Message struct {
	ID             int64          `db:"id"`
	ConversationID int64          `db:"conversation_id"`
	Role           MessageRole    `db:"role"`
	Content        string         `db:"content"`
	Intent         sql.NullString `db:"intent"`
	CreatedAt      time.Time      `db:"created_at"`
}

// UserProfile holds per-identity settings and streak counters.
type UserProfile struct {
	ID          int64  `db:"id"`
	Identity    string `db:"identity"`
	DisplayName string `db:"display_name"`

	WeightKg      float64 `db:"weight_kg"`
	CalorieTarget float64 `db:"calorie_target"`
	Timezone      string  `db:"timezone"`

	CurrentStreakDays int          `db:"current_streak_days"`
	LongestStreakDays int          `db:"longest_streak_days"`
	TotalDaysLogged   int          `db:"total_days_logged"`
	LastUserMessageAt sql.NullTime `db:"last_user_message_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// LogStatus marks whether a child record counts towards the daily summary.
type LogStatus string

const LogConfirmed LogStatus = "confirmed"

// MealLog is a confirmed food intake.
type MealLog struct {
	ID            int64     `db:"id"`
	Identity      string    `db:"identity"`
	LocalDate     string    `db:"local_date"`
	CatalogItemID int64     `db:"catalog_item_id"`
	ItemName      string    `db:"item_name"`
	Grams         float64   `db:"grams"`
	Calories      float64   `db:"calories"`
	Protein       float64   `db:"protein"`
	Carbs         float64   `db:"carbs"`
	Fat           float64   `db:"fat"`
	Status        LogStatus `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
}

// ExerciseLog is a confirmed workout.
type ExerciseLog struct {
	ID             int64     `db:"id"`
	Identity       string    `db:"identity"`
	LocalDate      string    `db:"local_date"`
	CatalogItemID  int64     `db:"catalog_item_id"`
	ItemName       string    `db:"item_name"`
	Minutes        int       `db:"minutes"`
	Intensity      Intensity `db:"intensity"`
	CaloriesBurned float64   `db:"calories_burned"`
	Status         LogStatus `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

// DailySummary holds running totals for one identity and local date
// (YYYY-MM-DD).
type DailySummary struct {
	ID               int64     `db:"id"`
	Identity         string    `db:"identity"`
	LocalDate        string    `db:"local_date"`
	CaloriesConsumed float64   `db:"calories_consumed"`
	CaloriesBurned   float64   `db:"calories_burned"`
	NetCalories      float64   `db:"net_calories"`
	Protein          float64   `db:"protein"`
	Carbs            float64   `db:"carbs"`
	Fat              float64   `db:"fat"`
	MealsCount       int       `db:"meals_count"`
	WorkoutsCount    int       `db:"workouts_count"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}
