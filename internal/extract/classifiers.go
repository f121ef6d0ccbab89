package extract

import "strings"

// ClassifySleep recovers a night's sleep. Both clock times are required;
// stage minutes are best-effort.
func ClassifySleep(text string) (SleepRecord, Dialect, bool) {
	dialect, ok := DetectSleep(text)
	if !ok {
		return SleepRecord{}, DialectNone, false
	}
	marker := ""
	switch dialect {
	case DialectSleepHeader:
		marker = markerSleepHeader
	case DialectSleepBed:
		marker = markerBed
	}
	rec, ok := sleepRecord(text, marker)
	if !ok {
		return SleepRecord{}, DialectNone, false
	}
	return rec, dialect, true
}

// ClassifyNap recovers a nap. Same shape and requirements as sleep.
func ClassifyNap(text string) (SleepRecord, Dialect, bool) {
	dialect, ok := DetectNap(text)
	if !ok {
		return SleepRecord{}, DialectNone, false
	}
	marker := ""
	if dialect == DialectNapHeader {
		marker = markerNapHeader
	}
	rec, ok := sleepRecord(text, marker)
	if !ok {
		return SleepRecord{}, DialectNone, false
	}
	return rec, dialect, true
}

func sleepRecord(text, marker string) (SleepRecord, bool) {
	span, ok := TimeRange(text, marker)
	if !ok {
		return SleepRecord{}, false
	}
	st := ExtractStages(text)
	return SleepRecord{
		Start:    span.Start,
		End:      span.End,
		Duration: span.Duration,
		Deep:     st.Deep,
		Light:    st.Light,
		REM:      st.REM,
		Awake:    st.Awake,
	}, true
}

// ClassifyExercise recovers a workout. The activity name and its time or
// duration token are required; distance and calories are optional. Every
// exercise dialect present is tried in priority order until one yields an
// activity.
func ClassifyExercise(text string) (ExerciseRecord, Dialect, bool) {
	for _, dialect := range exerciseDialects(text) {
		act, ok := exerciseActivity(text, dialect)
		if !ok {
			continue
		}
		return ExerciseRecord{
			Activity: act.Name,
			Start:    act.Start,
			End:      act.End,
			Duration: act.Duration,
			Distance: ExtractDistance(text),
			Calories: ExtractExerciseCalories(text),
		}, dialect, true
	}
	return ExerciseRecord{}, DialectNone, false
}

func exerciseActivity(text string, dialect Dialect) (Activity, bool) {
	switch dialect {
	case DialectExerciseHeader:
		return activityAfterHeader(text, markerExerciseHeader)
	case DialectActivityHeader:
		return activityAfterHeader(text, markerActivityHeader)
	case DialectExerciseRunner:
		return LeadingActivity(text, markerRunnerBase)
	case DialectRunningKeyword:
		act, ok := LeadingActivity(text, markerRunnerBase)
		if !ok {
			act, ok = LeadingActivity(text, "")
		}
		// The word must name the run itself ("ランニング", "朝ランニング"),
		// not a compound like "ランニングシューズ".
		if !ok || !strings.HasSuffix(act.Name, keywordRunning) {
			return Activity{}, false
		}
		return act, true
	}
	return Activity{}, false
}

// activityAfterHeader reads the activity from the rest of the header line,
// or from the first non-blank line below it when the header stands alone.
func activityAfterHeader(text, header string) (Activity, bool) {
	idx := strings.Index(text, header)
	if idx < 0 {
		return Activity{}, false
	}
	rest := text[idx+len(header):]
	line := firstLine(rest)
	if strings.TrimSpace(line) != "" {
		return activityOnLine(line, "")
	}
	for _, l := range strings.Split(rest, "\n")[1:] {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		return activityOnLine(l, "")
	}
	return Activity{}, false
}

// ClassifyDailyActivity recovers the day's step and calorie totals. At
// least one of the two is required.
func ClassifyDailyActivity(text string) (DailyActivityRecord, Dialect, bool) {
	dialect, ok := DetectDailyActivity(text)
	if !ok {
		return DailyActivityRecord{}, DialectNone, false
	}
	var rec DailyActivityRecord
	if n, ok := ExtractSteps(text); ok {
		rec.Steps = Some(n)
	}
	if n, ok := ExtractDailyCalories(text); ok {
		rec.Calories = Some(n)
	}
	if !rec.Steps.Valid && !rec.Calories.Valid {
		return DailyActivityRecord{}, DialectNone, false
	}
	return rec, dialect, true
}
