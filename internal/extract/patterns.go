package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// PlaceholderTime fills clock fields a dialect does not encode.
const PlaceholderTime = "--:--"

// clock matches a single HH:MM token (00:00–23:59, leading zero optional)
// that is not part of a longer digit run.
const clock = `\b((?:[01]?\d|2[0-3]):[0-5]\d)\b`

// arrow is the separator between the two clock tokens of a range.
const arrow = `\s*(?:→|-)\s*`

// labelGap sits between a label and its number: an optional (half or full
// width) colon followed by blanks.
const labelGap = `[:：]?[ \t\x{3000}]*`

// number captures digits with optional thousands separators.
const number = `(\d[\d,]*)`

// timeRangeRE matches "21:06 → 05:25 (8h19m)"; the parenthesized duration is optional.
var timeRangeRE = regexp.MustCompile(clock + arrow + clock + `(?:[ \t]*[(（]([^)）\n]*)[)）])?`)

// durationToken matches the duration forms the dialects emit after an
// activity name: "30分", "1時間5分", "45m", "1h05m", "1h".
const durationToken = `(\d+時間(?:\d+分)?|\d+分|\d+h(?:\d+m)?|\d+m(?:in)?)`

// activityLineRE matches "<word> <duration>" or "<word> <HH:MM → HH:MM (dur)>"
// at the start of an already marker-stripped line.
var activityLineRE = regexp.MustCompile(
	`^[ \t\x{3000}]*([^\s\d][^\s]*)[ \t\x{3000}]+(?:` +
		clock + arrow + clock + `(?:[ \t]*[(（]([^)）\n]*)[)）])?` +
		`|` + durationToken + `)`,
)

// emojiTailRE strips the modifiers that can follow a base emoji (ZWJ
// sequences, gender signs, variation selectors).
var emojiTailRE = regexp.MustCompile(`^[\x{200D}\x{2640}\x{2642}\x{FE0E}\x{FE0F}]+`)

// Pattern is a compiled, named extraction pattern with one numeric capture.
// Patterns are immutable after construction and safe for concurrent use.
type Pattern struct {
	name string
	re   *regexp.Regexp
}

// Name returns the pattern's identifier, e.g. "minutes:深い睡眠".
func (p *Pattern) Name() string { return p.name }

// LabeledMinutes builds the `<label>:? *<digits>分` pattern.
func LabeledMinutes(label string) *Pattern {
	return &Pattern{
		name: "minutes:" + label,
		re:   regexp.MustCompile(regexp.QuoteMeta(label) + labelGap + number + `分`),
	}
}

// LabeledCount builds the `<label>:? *<digits><unit>` pattern. Blanks are
// tolerated between the number and an ASCII unit ("450 kcal").
func LabeledCount(label, unit string) *Pattern {
	return &Pattern{
		name: "count:" + label + ":" + unit,
		re:   regexp.MustCompile(regexp.QuoteMeta(label) + labelGap + number + unitSuffix(unit)),
	}
}

// BareCount builds the unlabeled `<digits><unit>` pattern.
func BareCount(unit string) *Pattern {
	return &Pattern{
		name: "count:" + unit,
		re:   regexp.MustCompile(number + unitSuffix(unit)),
	}
}

// LabeledAmount builds `<label>:? *<decimal><unit>` for display values such
// as "距離: 2.5km". The capture keeps the decimal part.
func LabeledAmount(label, unit string) *Pattern {
	return &Pattern{
		name: "amount:" + label + ":" + unit,
		re:   regexp.MustCompile(regexp.QuoteMeta(label) + labelGap + `(\d[\d,]*(?:\.\d+)?)` + unitSuffix(unit)),
	}
}

func unitSuffix(unit string) string {
	q := regexp.QuoteMeta(unit)
	if isASCII(unit) {
		return `[ \t]*` + q
	}
	return q
}

// Find returns the first capture of p in text.
func (p *Pattern) Find(text string) (string, bool) {
	if p == nil || text == "" {
		return "", false
	}
	m := p.re.FindStringSubmatch(text)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// Int returns the first capture of p parsed as a non-negative integer with
// grouping commas removed.
func (p *Pattern) Int(text string) (int, bool) {
	raw, ok := p.Find(text)
	if !ok {
		return 0, false
	}
	return parseCount(raw)
}

// parseCount strips grouping commas and parses digits. Anything that is not
// a plain non-negative int (stray characters, overflow) is reported absent.
func parseCount(raw string) (int, bool) {
	digits := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// TimeSpan is a matched clock range with its optional display duration.
type TimeSpan struct {
	Start    string
	End      string
	Duration string
}

// TimeRange finds the first "HH:MM → HH:MM" range in text. When marker is
// non-empty and present, only text after the marker is searched; when the
// marker is absent the whole text is searched.
func TimeRange(text, marker string) (TimeSpan, bool) {
	if marker != "" {
		if idx := strings.Index(text, marker); idx >= 0 {
			text = text[idx+len(marker):]
		}
	}
	m := timeRangeRE.FindStringSubmatch(text)
	if m == nil || m[1] == "" || m[2] == "" {
		return TimeSpan{}, false
	}
	return TimeSpan{Start: m[1], End: m[2], Duration: strings.TrimSpace(m[3])}, true
}

// ParenthesizedDuration returns the "( … )" text immediately following the
// first time range in text.
func ParenthesizedDuration(text string) (string, bool) {
	span, ok := TimeRange(text, "")
	if !ok || span.Duration == "" {
		return "", false
	}
	return span.Duration, true
}

// Activity is the leading "<marker> <word> <time-or-duration>" of a post.
type Activity struct {
	Name     string
	Start    string
	End      string
	Duration string
}

// LeadingActivity parses the activity name and its time or duration token
// from the first line of text only. A non-empty marker must occur on that
// line; the match starts right after it (and any emoji modifiers).
func LeadingActivity(text, marker string) (Activity, bool) {
	return activityOnLine(firstLine(text), marker)
}

func activityOnLine(line, marker string) (Activity, bool) {
	if marker != "" {
		idx := strings.Index(line, marker)
		if idx < 0 {
			return Activity{}, false
		}
		line = emojiTailRE.ReplaceAllString(line[idx+len(marker):], "")
	}
	m := activityLineRE.FindStringSubmatch(line)
	if m == nil {
		return Activity{}, false
	}
	act := Activity{Name: m[1], Start: PlaceholderTime, End: PlaceholderTime}
	switch {
	case m[2] != "" && m[3] != "":
		act.Start, act.End = m[2], m[3]
		act.Duration = strings.TrimSpace(m[4])
	case m[5] != "":
		act.Duration = m[5]
	default:
		return Activity{}, false
	}
	return act, true
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimRight(text[:idx], "\r")
	}
	return text
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
