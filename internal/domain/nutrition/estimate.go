package nutrition

import (
	"math"
	"strings"
)

type macros struct {
	calories, carbs, protein, fat, fiber, sugar float64
}

func (m macros) add(o macros) macros {
	return macros{
		calories: m.calories + o.calories,
		carbs:    m.carbs + o.carbs,
		protein:  m.protein + o.protein,
		fat:      m.fat + o.fat,
		fiber:    m.fiber + o.fiber,
		sugar:    m.sugar + o.sugar,
	}
}

// per-serving reference values, matched by substring in declaration order
var foodTable = []struct {
	name string
	m    macros
}{
	{"chicken", macros{165, 0, 31, 3.6, 0, 0}},
	{"salmon", macros{208, 0, 22, 12, 0, 0}},
	{"egg", macros{155, 1.1, 13, 11, 0, 1.1}},
	{"beef", macros{250, 0, 26, 15, 0, 0}},
	{"rice", macros{130, 28, 2.7, 0.3, 0.4, 0.1}},
	{"pasta", macros{220, 44, 8, 1.3, 2.5, 1.0}},
	{"bread", macros{265, 49, 9, 3.2, 2.7, 5.7}},
	{"potato", macros{161, 37, 4.3, 0.2, 2.2, 1.7}},
	{"quinoa", macros{222, 39, 8, 3.6, 5.2, 1.6}},
	{"broccoli", macros{34, 7, 2.8, 0.4, 2.6, 1.5}},
	{"spinach", macros{23, 3.6, 2.9, 0.4, 2.2, 0.4}},
	{"carrot", macros{41, 10, 0.9, 0.2, 2.8, 4.7}},
	{"tomato", macros{18, 3.9, 0.9, 0.2, 1.2, 2.6}},
	{"apple", macros{52, 14, 0.3, 0.2, 2.4, 10}},
	{"banana", macros{89, 23, 1.1, 0.3, 2.6, 12}},
	{"orange", macros{47, 12, 0.9, 0.1, 2.4, 9.4}},
	{"pizza", macros{285, 36, 12, 10, 2.3, 3.8}},
	{"burger", macros{540, 40, 25, 31, 3, 5}},
	{"salad", macros{65, 11, 5, 0.3, 4, 6}},
	{"sandwich", macros{300, 33, 15, 12, 4, 4}},
}

var mealDefaults = []struct {
	keyword string
	m       macros
}{
	{"breakfast", macros{350, 45, 15, 12, 5, 8}},
	{"lunch", macros{450, 50, 25, 15, 8, 10}},
	{"dinner", macros{550, 40, 35, 20, 10, 8}},
}

var genericMeal = macros{300, 35, 20, 10, 5, 8}

// Estimate is the outcome of a text-only estimate.
type Estimate struct {
	Result     Result
	Matched    []string
	Multiplier float64
	Fallback   bool
}

// EstimateText sums the reference values of every known food named in text,
// falls back to a meal-type default when none match, scales by portion words
// and rounds each value to the nearest integer. Empty text yields the fallback record.
func EstimateText(text string) Estimate {
	text = strings.TrimSpace(text)
	if text == "" {
		return Estimate{Result: Fallback(), Multiplier: 1, Fallback: true}
	}
	lower := strings.ToLower(text)

	var (
		total   macros
		matched []string
	)
	for _, food := range foodTable {
		if strings.Contains(lower, food.name) {
			matched = append(matched, food.name)
			total = total.add(food.m)
		}
	}

	if len(matched) == 0 {
		total = genericMeal
		for _, meal := range mealDefaults {
			if strings.Contains(lower, meal.keyword) {
				total = meal.m
				break
			}
		}
	}

	multiplier := portionMultiplier(lower)

	return Estimate{
		Result: Result{
			Food:     text,
			Calories: round(total.calories * multiplier),
			Carbs:    round(total.carbs * multiplier),
			Protein:  round(total.protein * multiplier),
			Fat:      round(total.fat * multiplier),
			Fiber:    round(total.fiber * multiplier),
			Sugar:    round(total.sugar * multiplier),
		},
		Matched:    matched,
		Multiplier: multiplier,
	}
}

// later rules override earlier ones
func portionMultiplier(lower string) float64 {
	m := 1.0
	if strings.Contains(lower, "large") || strings.Contains(lower, "big") {
		m = 1.5
	}
	if strings.Contains(lower, "small") || strings.Contains(lower, "mini") {
		m = 0.7
	}
	if strings.Contains(lower, "extra large") || strings.Contains(lower, "jumbo") {
		m = 2
	}
	return m
}

// round half up, matching the web client's estimator
func round(v float64) float64 {
	return math.Floor(v + 0.5)
}
