package extract

import "strings"

// Dialect names one historical text template used to encode a metric
// category into a post body.
type Dialect string

const (
	DialectNone Dialect = ""

	// Sleep
	DialectSleepHeader Dialect = "sleep-header" // "💤 睡眠記録"
	DialectSleepBed    Dialect = "sleep-bed"    // "🛏️ 21:06 → 05:25 (…)"
	DialectSleepStages Dialect = "sleep-stages" // bare range + "深い睡眠" lines

	// Nap
	DialectNapHeader  Dialect = "nap-header"  // "😴 仮眠記録"
	DialectNapKeyword Dialect = "nap-keyword" // body mentions "仮眠"

	// Exercise
	DialectExerciseHeader Dialect = "exercise-header" // "🏃 運動記録"
	DialectExerciseRunner Dialect = "exercise-runner" // "🏃‍♂️ <activity> <duration>"
	DialectActivityHeader Dialect = "activity-header" // "🏃 アクティビティ記録"
	DialectRunningKeyword Dialect = "running-keyword" // body mentions "ランニング"

	// Daily activity
	DialectDailyHeader Dialect = "daily-header" // "📊 今日の健康データ"
	DialectDailyUnits  Dialect = "daily-units"  // unlabeled "…歩 … kcal"
)

// Marker literals. Sleep and exercise emoji are matched on their base code
// point so posts written with or without the variation selector agree.
const (
	markerSleepHeader    = "💤 睡眠記録"
	markerBed            = "🛏"
	markerArrow          = "→"
	labelDeepSleep       = "深い睡眠"
	markerNapHeader      = "😴 仮眠記録"
	keywordNap           = "仮眠"
	markerExerciseHeader = "🏃 運動記録"
	markerRunner         = "🏃\u200d♂\ufe0f"
	markerRunnerBase     = "🏃"
	markerActivityHeader = "🏃 アクティビティ記録"
	keywordRunning       = "ランニング"
	markerDailyHeader    = "📊 今日の健康データ"
	unitSteps            = "歩"
	unitKcal             = "kcal"
)

// Detector reports which dialect of one category, if any, applies to text.
type Detector func(text string) (Dialect, bool)

// DetectSleep checks the sleep marker sets in priority order.
func DetectSleep(text string) (Dialect, bool) {
	switch {
	case strings.Contains(text, markerSleepHeader):
		return DialectSleepHeader, true
	case strings.Contains(text, markerBed):
		return DialectSleepBed, true
	case strings.Contains(text, markerArrow) && strings.Contains(text, labelDeepSleep):
		return DialectSleepStages, true
	}
	return DialectNone, false
}

// DetectNap checks the nap header, then the bare keyword.
func DetectNap(text string) (Dialect, bool) {
	switch {
	case strings.Contains(text, markerNapHeader):
		return DialectNapHeader, true
	case strings.Contains(text, keywordNap):
		return DialectNapKeyword, true
	}
	return DialectNone, false
}

// exerciseMarkers lists the exercise dialects in priority order.
var exerciseMarkers = []struct {
	dialect Dialect
	marker  string
}{
	{DialectExerciseHeader, markerExerciseHeader},
	{DialectExerciseRunner, markerRunner},
	{DialectActivityHeader, markerActivityHeader},
	{DialectRunningKeyword, keywordRunning},
}

// exerciseDialects returns every exercise dialect whose marker occurs in
// text, highest priority first.
func exerciseDialects(text string) []Dialect {
	var out []Dialect
	for _, m := range exerciseMarkers {
		if strings.Contains(text, m.marker) {
			out = append(out, m.dialect)
		}
	}
	return out
}

// DetectExercise reports the highest-priority exercise dialect present.
// The "🏃 アクティビティ記録" header is shared with legacy daily-activity posts.
func DetectExercise(text string) (Dialect, bool) {
	if ds := exerciseDialects(text); len(ds) > 0 {
		return ds[0], true
	}
	return DialectNone, false
}

// DetectDailyActivity checks the daily header, then the step + calorie
// unit pair.
func DetectDailyActivity(text string) (Dialect, bool) {
	switch {
	case strings.Contains(text, markerDailyHeader):
		return DialectDailyHeader, true
	case strings.Contains(text, unitSteps) && strings.Contains(text, unitKcal):
		return DialectDailyUnits, true
	}
	return DialectNone, false
}
