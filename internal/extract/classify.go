// Package extract recovers structured health metrics from post text.
//
// Health integrations do not hand the timeline structured data; they render
// each metric into a display string inside the post body, in one of several
// historical emoji/label dialects:
//
//	🛏️ 21:06 → 05:25 (8h19m)
//	深い睡眠: 63分
//
// Classify turns such a string back into a typed record. It is a pure, total
// function: every input yields exactly one Result, and anything that cannot
// be recovered falls back to CategoryPlainText.
package extract

// classifier is one entry of the precedence list.
type classifier struct {
	category Category
	run      func(text string) (Payload, Dialect, bool)
}

// precedence is the fixed order classifiers are tried in. Sleep and nap come
// first because their time-range shape is the most specific; exercise
// precedes daily activity because both accept the "🏃" activity header.
var precedence = []classifier{
	{CategorySleep, func(t string) (Payload, Dialect, bool) { return ClassifySleep(t) }},
	{CategoryNap, func(t string) (Payload, Dialect, bool) { return ClassifyNap(t) }},
	{CategoryExercise, func(t string) (Payload, Dialect, bool) { return ClassifyExercise(t) }},
	{CategoryDailyActivity, func(t string) (Payload, Dialect, bool) { return ClassifyDailyActivity(t) }},
}

// Classify returns the first category whose classifier accepts text, or
// PlainText. The hint is carried on the Result for diagnostics and never
// changes which category is chosen.
func Classify(text string, hint SourceTag) Result {
	for _, c := range precedence {
		if p, d, ok := c.run(text); ok {
			return Result{Category: c.category, Dialect: d, Hint: hint, Payload: p}
		}
	}
	return Result{Category: CategoryPlainText, Hint: hint, Payload: PlainText{}}
}

// ClassifyPost classifies a stored post.
func ClassifyPost(p RawPost) Result {
	return Classify(p.Text, p.Source)
}
