package dialogue

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/tracking"
)

const (
	mealHint        = "Não consegui identificar os alimentos. Tente algo como \"100g de arroz e 1 ovo\"."
	exerciseHint    = "Não consegui identificar o exercício. Tente algo como \"corri 30 minutos\"."
	weightHint      = "Não entendi o peso. Tente algo como \"meu peso é 72,5 kg\"."
	goalHint        = "Não entendi a meta. Informe um valor entre 800 e 6000 kcal, por exemplo \"minha meta é 2000 kcal\"."
	confirmQuestion = "Confirma? Responda sim ou não."
	confirmedPrefix = "Registrado! "
)

var printer = message.NewPrinter(language.BrazilianPortuguese)

// formatNumber renders v with at most one decimal place, using the pt-BR
// separators.
func formatNumber(v float64) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(1)))
}

func formatKcal(v float64) string {
	return formatNumber(math.Round(v)) + " kcal"
}

func formatNotFound(names []string) string {
	return "Não encontrei " + joinNames(names) + " no catálogo. Pode descrever de outro jeito?"
}

func formatMealProposal(meal pendingMeal, missing []string) string {
	var b strings.Builder
	var total, protein, carbs, fat float64
	b.WriteString("Entendi:\n")
	for _, it := range meal.Items {
		fmt.Fprintf(&b, "• %s: %s g, %s\n", it.Name, formatNumber(it.Grams), formatKcal(it.Calories))
		total += it.Calories
		protein += it.Protein
		carbs += it.Carbs
		fat += it.Fat
	}
	fmt.Fprintf(&b, "Total: %s (proteínas %s g, carboidratos %s g, gorduras %s g)\n",
		formatKcal(total), formatNumber(protein), formatNumber(carbs), formatNumber(fat))
	if len(missing) > 0 {
		fmt.Fprintf(&b, "Não encontrei %s.\n", joinNames(missing))
	}
	b.WriteString(confirmQuestion)
	return b.String()
}

func formatExerciseProposal(workout pendingExercise, missing []string) string {
	var b strings.Builder
	var total float64
	b.WriteString("Entendi:\n")
	for _, it := range workout.Items {
		fmt.Fprintf(&b, "• %s: %d min, %s gastas\n", it.Name, it.Minutes, formatKcal(it.CaloriesBurned))
		total += it.CaloriesBurned
	}
	if len(workout.Items) > 1 {
		fmt.Fprintf(&b, "Total: %s\n", formatKcal(total))
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "Não encontrei %s.\n", joinNames(missing))
	}
	b.WriteString(confirmQuestion)
	return b.String()
}

func formatDaily(sum *database.DailySummary, target float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hoje: %s consumidas, %s gastas, saldo %s.",
		formatKcal(sum.CaloriesConsumed), formatKcal(sum.CaloriesBurned), formatKcal(sum.NetCalories))
	if target > 0 {
		left := target - sum.CaloriesConsumed
		if left >= 0 {
			fmt.Fprintf(&b, " Faltam %s para a meta de %s.", formatKcal(left), formatKcal(target))
		} else {
			fmt.Fprintf(&b, " Você passou %s da meta de %s.", formatKcal(-left), formatKcal(target))
		}
	}
	return b.String()
}

func formatWeekly(r *tracking.WeeklyReport) string {
	if r.DaysLogged == 0 && r.Workouts == 0 {
		return fmt.Sprintf("Nenhum registro entre %s e %s ainda. Me conte o que comeu hoje!", r.From, r.To)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Semana de %s a %s:\n", r.From, r.To)
	fmt.Fprintf(&b, "• Dias com registro: %d de %d\n", r.DaysLogged, r.Days)
	fmt.Fprintf(&b, "• Dias dentro da meta: %d\n", r.DaysInTarget)
	fmt.Fprintf(&b, "• Média consumida: %s por dia\n", formatKcal(r.AverageConsumed))
	fmt.Fprintf(&b, "• Treinos: %d (%s gastas)\n", r.Workouts, formatKcal(r.CaloriesBurned))
	fmt.Fprintf(&b, "Nota: %s (%s pontos)", r.Grade, formatNumber(r.Score))
	return b.String()
}

func formatStreak(p *database.UserProfile) string {
	return fmt.Sprintf("Sequência atual: %s. Recorde: %s. Total de dias com registro: %d.",
		days(p.CurrentStreakDays), days(p.LongestStreakDays), p.TotalDaysLogged)
}

func days(n int) string {
	if n == 1 {
		return "1 dia"
	}
	return fmt.Sprintf("%d dias", n)
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return "\"" + names[0] + "\""
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "\"" + n + "\""
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " e " + quoted[len(quoted)-1]
}
