package dialogue

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/intent"
	"github.com/edgard/nutribot/internal/quantity"
	"github.com/edgard/nutribot/internal/resolve"
	"github.com/edgard/nutribot/internal/session"
	"github.com/edgard/nutribot/internal/tracking"
)

const (
	minWeightKg = 20
	maxWeightKg = 400
	minGoalKcal = 800
	maxGoalKcal = 6000
)

var numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// pendingMeal is the payload of a meal awaiting confirmation.
type pendingMeal struct {
	LocalDate string        `json:"local_date"`
	Items     []pendingFood `json:"items"`
}

type pendingFood struct {
	CatalogItemID int64   `json:"catalog_item_id"`
	Name          string  `json:"name"`
	Grams         float64 `json:"grams"`
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Carbs         float64 `json:"carbs"`
	Fat           float64 `json:"fat"`
}

// pendingExercise is the payload of a workout awaiting confirmation.
type pendingExercise struct {
	LocalDate string           `json:"local_date"`
	Items     []pendingWorkout `json:"items"`
}

type pendingWorkout struct {
	CatalogItemID  int64              `json:"catalog_item_id"`
	Name           string             `json:"name"`
	Minutes        int                `json:"minutes"`
	Intensity      database.Intensity `json:"intensity"`
	CaloriesBurned float64            `json:"calories_burned"`
}

func (o *Orchestrator) handleGreeting(context.Context, *turn) (string, error) {
	return o.deps.Messages.Welcome, nil
}

func (o *Orchestrator) handleHelp(context.Context, *turn) (string, error) {
	return o.deps.Messages.Help, nil
}

func (o *Orchestrator) handleUnknown(context.Context, *turn) (string, error) {
	return o.deps.Messages.Unknown, nil
}

func (o *Orchestrator) handleLogMeal(ctx context.Context, t *turn) (string, error) {
	meal := pendingMeal{LocalDate: tracking.LocalDate(t.now, t.loc)}
	var missing []string

	for _, it := range mealItems(t) {
		m, ok := it.(intent.MealItem)
		if !ok {
			continue
		}
		ref, err := o.deps.Resolver.ResolveFood(ctx, t.scope, t.identity, m.Name, m.Quantity)
		if errors.Is(err, resolve.ErrNotFound) {
			missing = append(missing, m.Name)
			continue
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to resolve food", goerr.V("item", m.Name))
		}
		n := ref.Nutrients()
		meal.Items = append(meal.Items, pendingFood{
			CatalogItemID: ref.Item.ID,
			Name:          ref.Item.Name,
			Grams:         ref.Amount,
			Calories:      n.Calories,
			Protein:       n.Protein,
			Carbs:         n.Carbs,
			Fat:           n.Fat,
		})
	}

	if len(meal.Items) == 0 {
		if len(missing) > 0 {
			return formatNotFound(missing), nil
		}
		return mealHint, nil
	}
	if _, err := o.deps.Sessions.SetPending(ctx, t.conv, session.PendingMeal, meal, t.now); err != nil {
		return "", err
	}
	return formatMealProposal(meal, missing), nil
}

func (o *Orchestrator) handleLogExercise(ctx context.Context, t *turn) (string, error) {
	workout := pendingExercise{LocalDate: tracking.LocalDate(t.now, t.loc)}
	weight := t.profile.WeightKg
	if weight <= 0 {
		weight = o.deps.Tracker.DefaultProfile(t.identity, "").WeightKg
	}
	var missing []string

	for _, it := range exerciseItems(t) {
		e, ok := it.(intent.ExerciseItem)
		if !ok {
			continue
		}
		ref, err := o.deps.Resolver.ResolveExercise(ctx, t.scope, t.identity, e.Name, e.Duration)
		if errors.Is(err, resolve.ErrNotFound) {
			missing = append(missing, e.Name)
			continue
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to resolve exercise", goerr.V("item", e.Name))
		}
		workout.Items = append(workout.Items, pendingWorkout{
			CatalogItemID:  ref.Item.ID,
			Name:           ref.Item.Name,
			Minutes:        int(ref.Amount),
			Intensity:      ref.Intensity,
			CaloriesBurned: ref.CaloriesBurned(weight),
		})
	}

	if len(workout.Items) == 0 {
		if len(missing) > 0 {
			return formatNotFound(missing), nil
		}
		return exerciseHint, nil
	}
	if _, err := o.deps.Sessions.SetPending(ctx, t.conv, session.PendingExercise, workout, t.now); err != nil {
		return "", err
	}
	return formatExerciseProposal(workout, missing), nil
}

// mealItems returns the classified meal items. A message that carries only
// an amount ("150g") corrects the food of a live single-item proposal.
func mealItems(t *turn) []intent.Item {
	if len(t.result.Items) > 0 {
		return t.result.Items
	}
	if t.pending == nil || t.pending.Kind != session.PendingMeal {
		return nil
	}
	if _, ok := quantity.Parse(t.text); !ok {
		return nil
	}
	var meal pendingMeal
	if err := t.pending.Decode(&meal); err != nil || len(meal.Items) != 1 {
		return nil
	}
	return []intent.Item{intent.MealItem{Name: meal.Items[0].Name, Quantity: strings.TrimSpace(t.text)}}
}

// exerciseItems is mealItems for workouts, keyed on a bare duration.
func exerciseItems(t *turn) []intent.Item {
	if len(t.result.Items) > 0 {
		return t.result.Items
	}
	if t.pending == nil || t.pending.Kind != session.PendingExercise {
		return nil
	}
	if _, ok := quantity.ParseDuration(t.text); !ok {
		return nil
	}
	var workout pendingExercise
	if err := t.pending.Decode(&workout); err != nil || len(workout.Items) != 1 {
		return nil
	}
	return []intent.Item{intent.ExerciseItem{Name: workout.Items[0].Name, Duration: strings.TrimSpace(t.text)}}
}

// handleConfirm commits the live pending record. The record is cleared only
// after every item was written.
func (o *Orchestrator) handleConfirm(ctx context.Context, t *turn) (string, error) {
	if t.pending == nil {
		return o.deps.Messages.NothingPending, nil
	}

	var date string
	switch t.pending.Kind {
	case session.PendingMeal:
		var meal pendingMeal
		if err := t.pending.Decode(&meal); err != nil {
			return "", err
		}
		for _, it := range meal.Items {
			err := o.deps.Tracker.AddMeal(ctx, &database.MealLog{
				Identity:      t.identity,
				LocalDate:     meal.LocalDate,
				CatalogItemID: it.CatalogItemID,
				ItemName:      it.Name,
				Grams:         it.Grams,
				Calories:      it.Calories,
				Protein:       it.Protein,
				Carbs:         it.Carbs,
				Fat:           it.Fat,
				CreatedAt:     t.now,
			})
			if err != nil {
				return "", err
			}
		}
		date = meal.LocalDate
	case session.PendingExercise:
		var workout pendingExercise
		if err := t.pending.Decode(&workout); err != nil {
			return "", err
		}
		for _, it := range workout.Items {
			err := o.deps.Tracker.AddExercise(ctx, &database.ExerciseLog{
				Identity:       t.identity,
				LocalDate:      workout.LocalDate,
				CatalogItemID:  it.CatalogItemID,
				ItemName:       it.Name,
				Minutes:        it.Minutes,
				Intensity:      it.Intensity,
				CaloriesBurned: it.CaloriesBurned,
				CreatedAt:      t.now,
			})
			if err != nil {
				return "", err
			}
		}
		date = workout.LocalDate
	default:
		o.log.WarnContext(ctx, "Discarding pending record of unknown kind", "kind", t.pending.Kind)
		if err := o.deps.Sessions.ClearPending(ctx, t.conv, t.now); err != nil {
			return "", err
		}
		return o.deps.Messages.NothingPending, nil
	}

	if err := o.deps.Sessions.ClearPending(ctx, t.conv, t.now); err != nil {
		o.log.ErrorContext(ctx, "Committed pending record but failed to clear it", "conversation_id", t.conv.ID, "error", err)
	}

	sum, err := o.deps.Tracker.Daily(ctx, t.identity, date, t.now)
	if err != nil {
		return "", err
	}
	return confirmedPrefix + formatDaily(sum, t.profile.CalorieTarget), nil
}

func (o *Orchestrator) handleReject(ctx context.Context, t *turn) (string, error) {
	if t.pending == nil {
		return o.deps.Messages.NothingPending, nil
	}
	if err := o.deps.Sessions.ClearPending(ctx, t.conv, t.now); err != nil {
		return "", err
	}
	return o.deps.Messages.Rejected, nil
}

func (o *Orchestrator) handleDailySummary(ctx context.Context, t *turn) (string, error) {
	sum, err := o.deps.Tracker.Daily(ctx, t.identity, tracking.LocalDate(t.now, t.loc), t.now)
	if err != nil {
		return "", err
	}
	return formatDaily(sum, t.profile.CalorieTarget), nil
}

func (o *Orchestrator) handleWeeklySummary(ctx context.Context, t *turn) (string, error) {
	r, err := o.deps.Tracker.Weekly(ctx, t.identity, tracking.LocalDate(t.now, t.loc), 0, t.profile.CalorieTarget)
	if err != nil {
		return "", err
	}
	return formatWeekly(r), nil
}

func (o *Orchestrator) handleStreak(_ context.Context, t *turn) (string, error) {
	return formatStreak(t.profile), nil
}

func (o *Orchestrator) handleSetWeight(ctx context.Context, t *turn) (string, error) {
	v, ok := firstNumber(t.text)
	if !ok || v < minWeightKg || v > maxWeightKg {
		return weightHint, nil
	}
	t.profile.WeightKg = v
	if err := o.deps.Tracker.SaveProfile(ctx, t.profile); err != nil {
		return "", err
	}
	return "Peso atualizado para " + formatNumber(v) + " kg.", nil
}

func (o *Orchestrator) handleSetGoal(ctx context.Context, t *turn) (string, error) {
	v, ok := firstNumber(t.text)
	if !ok || v < minGoalKcal || v > maxGoalKcal {
		return goalHint, nil
	}
	t.profile.CalorieTarget = v
	if err := o.deps.Tracker.SaveProfile(ctx, t.profile); err != nil {
		return "", err
	}
	return "Meta diária atualizada para " + formatNumber(v) + " kcal.", nil
}

// firstNumber reads the first decimal number in s, accepting a comma as
// the decimal separator.
func firstNumber(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
