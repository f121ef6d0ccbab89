package extract

// Stage-minute keys. Each field lists its dialect variants in the order they
// are tried; the first hit wins and variants are never summed.
var (
	deepSleepKeys  = []*Pattern{LabeledMinutes(labelDeepSleep)}
	lightSleepKeys = []*Pattern{LabeledMinutes("浅い睡眠")}
	remSleepKeys   = []*Pattern{LabeledMinutes("レム睡眠")}
	awakeKeys      = []*Pattern{LabeledMinutes("覚醒")}
)

// Exercise keys.
var (
	distanceKeys        = []*Pattern{LabeledAmount("距離", "km")}
	exerciseCalorieKeys = []*Pattern{LabeledAmount("カロリー", unitKcal)}
)

// Daily-activity keys: the labeled form first, then the first bare token for
// the unlabeled dialect.
var (
	stepKeys         = []*Pattern{LabeledCount("歩数", unitSteps), BareCount(unitSteps)}
	dailyCalorieKeys = []*Pattern{LabeledCount("消費カロリー", unitKcal), BareCount(unitKcal)}
)

// Stages holds the per-phase sleep minutes. Absent phases are 0.
type Stages struct {
	Deep  int
	Light int
	REM   int
	Awake int
}

// ExtractStages reads all four stage-minute fields independently. It never
// fails; stages are not reconciled against the total duration.
func ExtractStages(text string) Stages {
	return Stages{
		Deep:  intOrZero(text, deepSleepKeys),
		Light: intOrZero(text, lightSleepKeys),
		REM:   intOrZero(text, remSleepKeys),
		Awake: intOrZero(text, awakeKeys),
	}
}

// ExtractDistance returns the unit-suffixed distance ("2.5km"), or "".
func ExtractDistance(text string) string {
	return firstAmount(text, "km", distanceKeys)
}

// ExtractExerciseCalories returns the unit-suffixed calories ("450kcal"), or "".
func ExtractExerciseCalories(text string) string {
	return firstAmount(text, unitKcal, exerciseCalorieKeys)
}

// ExtractSteps returns the step count, labeled form first.
func ExtractSteps(text string) (int, bool) {
	return firstInt(text, stepKeys)
}

// ExtractDailyCalories returns the calorie count, labeled form first.
func ExtractDailyCalories(text string) (int, bool) {
	return firstInt(text, dailyCalorieKeys)
}

// firstInt returns the value of the first pattern that yields a valid
// number. A pattern that matches but carries a malformed number does not
// stop the search.
func firstInt(text string, keys []*Pattern) (int, bool) {
	for _, p := range keys {
		if n, ok := p.Int(text); ok {
			return n, true
		}
	}
	return 0, false
}

func intOrZero(text string, keys []*Pattern) int {
	n, _ := firstInt(text, keys)
	return n
}

func firstAmount(text, unit string, keys []*Pattern) string {
	for _, p := range keys {
		if raw, ok := p.Find(text); ok {
			return raw + unit
		}
	}
	return ""
}
