package kcal

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saadjs/kcal-core/internal/model"
)

func parseIDArg(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}

func parseDate(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Now(), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q (expected YYYY-MM-DD)", date)
	}
	return t, nil
}

func parseDateTimeOrNow(date, timeStr string) (time.Time, error) {
	date = strings.TrimSpace(date)
	timeStr = strings.TrimSpace(timeStr)
	if date == "" && timeStr == "" {
		return time.Now(), nil
	}
	if date == "" {
		return time.Time{}, fmt.Errorf("--date is required when --time is set")
	}
	if timeStr == "" {
		// Date-only entries are placed at local noon.
		t, err := time.ParseInLocation(time.DateOnly, date, time.Local)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --date %q (expected YYYY-MM-DD)", date)
		}
		return t.Add(12 * time.Hour), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+timeStr, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date/--time (expected YYYY-MM-DD and HH:MM)")
	}
	return t, nil
}

func parseMeal(value string) (model.MealCategory, error) {
	return model.ParseMealCategory(value)
}

func printFoodLog(w io.Writer, f model.FoodLog) {
	fmt.Fprintf(w, "%s  %s  %-9s  %-24s  %7.1f kcal  P %.1fg | C %.1fg | F %.1fg\n",
		f.ID, f.LoggedAt.Format("2006-01-02 15:04"), f.Meal, f.Name, f.Calories, f.ProteinG, f.CarbsG, f.FatG)
}

func printMacros(w io.Writer, label string, m model.Macros) {
	fmt.Fprintf(w, "%s: %.1f kcal | P %.1fg | C %.1fg | F %.1fg\n", label, m.Calories, m.ProteinG, m.CarbsG, m.FatG)
}
