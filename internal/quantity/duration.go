package quantity

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgard/nutribot/internal/normalize"
)

// MaxDurationMinutes is the largest duration accepted, one full day.
const MaxDurationMinutes = 1440

var (
	durationWordRe    = regexp.MustCompile(`\b(uma|um|duas|dois|tres|quatro|cinco)\b`)
	durationCompactRe = regexp.MustCompile(`\b(\d+)\s*h\s*(\d{1,2})(?:\s*(?:minutos?|mins?|m))?\b`)
	durationHoursRe   = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)\s*(?:horas?|hrs?|h)\b`)
	durationMinutesRe = regexp.MustCompile(`\b(\d+)\s*(?:minutos?|mins?|m)\b`)
	durationHalfRe    = regexp.MustCompile(`\b(?:meia hora|horas? e meia)\b`)
	durationDistRe    = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:km|quilometros?|metros?)\b`)
	durationBareRe    = regexp.MustCompile(`\b(\d+)\b`)
)

var durationWords = map[string]string{
	"um": "1", "uma": "1",
	"dois": "2", "duas": "2",
	"tres":   "3",
	"quatro": "4",
	"cinco":  "5",
}

// ParseDuration extracts a duration in minutes from patterns such as
// "45 minutos", "2 horas", "1h30", "1 hora e meia" or a bare number, which
// is read as minutes. Values outside (0, 1440] are rejected.
func ParseDuration(text string) (int, bool) {
	norm := durationWordRe.ReplaceAllStringFunc(normalize.Text(text), func(w string) string {
		return durationWords[w]
	})
	if norm == "" {
		return 0, false
	}

	total, matched := 0.0, false
	if m := durationCompactRe.FindStringSubmatch(norm); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		total, matched = float64(h*60+mins), true
	} else {
		if m := durationHoursRe.FindStringSubmatch(norm); m != nil {
			if h, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
				total += h * 60
				matched = true
			}
		}
		if m := durationMinutesRe.FindStringSubmatch(norm); m != nil {
			if mins, err := strconv.Atoi(m[1]); err == nil {
				total += float64(mins)
				matched = true
			}
		}
		if durationHalfRe.MatchString(norm) {
			total += 30
			matched = true
		}
	}

	if !matched && !durationDistRe.MatchString(norm) {
		if m := durationBareRe.FindStringSubmatch(norm); m != nil {
			if mins, err := strconv.Atoi(m[1]); err == nil {
				total, matched = float64(mins), true
			}
		}
	}

	minutes := int(math.Round(total))
	if !matched || minutes <= 0 || minutes > MaxDurationMinutes {
		return 0, false
	}
	return minutes, true
}
