package model

// DailyNutritionTotals is a derived running sum over one day's logs. It is
// never persisted.
type DailyNutritionTotals struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
	Entries  int     `json:"entries"`
}

// NutritionProgress holds per-field total/goal ratios. A zero goal field
// yields a zero ratio.
type NutritionProgress struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

func TotalsOf(logs []FoodLog) DailyNutritionTotals {
	var t DailyNutritionTotals
	for _, f := range logs {
		t.Add(f)
	}
	return t
}

func (t *DailyNutritionTotals) Add(f FoodLog) {
	t.Calories += f.Calories
	t.ProteinG += f.ProteinG
	t.CarbsG += f.CarbsG
	t.FatG += f.FatG
	t.Entries++
}

func (t *DailyNutritionTotals) Subtract(f FoodLog) {
	t.Calories -= f.Calories
	t.ProteinG -= f.ProteinG
	t.CarbsG -= f.CarbsG
	t.FatG -= f.FatG
	t.Entries--
}

func (t DailyNutritionTotals) Macros() Macros {
	return Macros{Calories: t.Calories, ProteinG: t.ProteinG, CarbsG: t.CarbsG, FatG: t.FatG}
}

func (t DailyNutritionTotals) Progress(g NutritionGoals) NutritionProgress {
	return NutritionProgress{
		Calories: ratio(t.Calories, g.Calories),
		ProteinG: ratio(t.ProteinG, g.ProteinG),
		CarbsG:   ratio(t.CarbsG, g.CarbsG),
		FatG:     ratio(t.FatG, g.FatG),
	}
}

// Remaining returns goal minus total for each field; negative means over.
func (t DailyNutritionTotals) Remaining(g NutritionGoals) Macros {
	return g.Macros().Sub(t.Macros())
}

func ratio(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return actual / target
}
