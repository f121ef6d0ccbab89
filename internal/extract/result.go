package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SourceTag is the upstream integration a post claims to come from. It is a
// hint only: stored posts may carry a stale or missing tag.
type SourceTag string

const (
	SourceUnknown           SourceTag = ""
	SourceGenericSocial     SourceTag = "generic-social"
	SourceFitbit            SourceTag = "fitbit"
	SourceGoogleFit         SourceTag = "googlefit"
	SourceUnspecifiedHealth SourceTag = "unspecified-health"
)

// SourceTags lists every known tag.
func SourceTags() []SourceTag {
	return []SourceTag{SourceGenericSocial, SourceFitbit, SourceGoogleFit, SourceUnspecifiedHealth}
}

// ParseSourceTag maps user input ("fitbit", "Google-Fit", "social", "") to a tag.
func ParseSourceTag(s string) (SourceTag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SourceUnknown, nil
	case "generic-social", "social":
		return SourceGenericSocial, nil
	case "fitbit":
		return SourceFitbit, nil
	case "googlefit", "google-fit", "google_fit":
		return SourceGoogleFit, nil
	case "unspecified-health", "health":
		return SourceUnspecifiedHealth, nil
	}
	return SourceUnknown, fmt.Errorf("unknown source tag %q (valid: generic-social, fitbit, googlefit, unspecified-health)", s)
}

// IsHealth reports whether the tag names a health-tracking integration.
func (s SourceTag) IsHealth() bool {
	return s == SourceFitbit || s == SourceGoogleFit || s == SourceUnspecifiedHealth
}

// RawPost is a stored post as handed to the engine.
type RawPost struct {
	Text   string
	Source SourceTag
}

// Category is the semantic kind of a post. The set is closed.
type Category string

const (
	CategorySleep         Category = "sleep"
	CategoryNap           Category = "nap"
	CategoryExercise      Category = "exercise"
	CategoryDailyActivity Category = "daily_activity"
	CategoryPlainText     Category = "plain_text"
)

// Categories returns every category in classification precedence order.
func Categories() []Category {
	return []Category{CategorySleep, CategoryNap, CategoryExercise, CategoryDailyActivity, CategoryPlainText}
}

// Payload is the category-specific part of a Result. Only the types in this
// package implement it: SleepRecord, ExerciseRecord, DailyActivityRecord and
// PlainText.
type Payload interface {
	isPayload()
}

// SleepRecord carries a sleep or nap. Clock times are display strings as
// written upstream, not instants.
type SleepRecord struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration string `json:"duration"`
	Deep     int    `json:"deep"`
	Light    int    `json:"light"`
	REM      int    `json:"rem"`
	Awake    int    `json:"awake"`
}

// ExerciseRecord carries one workout. Start and End are PlaceholderTime when
// the dialect only encodes a duration.
type ExerciseRecord struct {
	Activity string `json:"activity"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration string `json:"duration"`
	Distance string `json:"distance,omitempty"`
	Calories string `json:"calories,omitempty"`
}

// Count is an optional non-negative integer.
type Count struct {
	Value int
	Valid bool
}

// Some wraps a present count.
func Some(n int) Count { return Count{Value: n, Valid: true} }

// MarshalJSON encodes an absent count as null.
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(c.Value)), nil
}

// DailyActivityRecord carries the day's totals. At least one field is valid.
type DailyActivityRecord struct {
	Steps    Count `json:"steps"`
	Calories Count `json:"calories"`
}

// PlainText is the empty payload of the fallback category.
type PlainText struct{}

func (SleepRecord) isPayload()         {}
func (ExerciseRecord) isPayload()      {}
func (DailyActivityRecord) isPayload() {}
func (PlainText) isPayload()           {}

// Result is the outcome of classifying one post. It is a value: comparable
// with == and safe to copy or cache per post id.
type Result struct {
	Category Category
	Dialect  Dialect
	Hint     SourceTag
	Payload  Payload
}

// Sleep returns the record of a Sleep or Nap result.
func (r Result) Sleep() (SleepRecord, bool) {
	rec, ok := r.Payload.(SleepRecord)
	return rec, ok
}

// Exercise returns the record of an Exercise result.
func (r Result) Exercise() (ExerciseRecord, bool) {
	rec, ok := r.Payload.(ExerciseRecord)
	return rec, ok
}

// DailyActivity returns the record of a DailyActivity result.
func (r Result) DailyActivity() (DailyActivityRecord, bool) {
	rec, ok := r.Payload.(DailyActivityRecord)
	return rec, ok
}

// IsHealth reports whether any structured health data was recovered.
func (r Result) IsHealth() bool {
	return r.Category != CategoryPlainText && r.Category != ""
}

// HintMismatch reports a disagreement between the source hint and the
// recovered category: a health-tagged post that parsed as plain text, or a
// social-tagged post that parsed as health data. An unknown hint never
// mismatches.
func (r Result) HintMismatch() bool {
	switch {
	case r.Hint.IsHealth():
		return !r.IsHealth()
	case r.Hint == SourceGenericSocial:
		return r.IsHealth()
	}
	return false
}

// MarshalJSON writes the tagged union as {"category": …, "<category>": {…}}.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Category      Category             `json:"category"`
		Dialect       Dialect              `json:"dialect,omitempty"`
		Hint          SourceTag            `json:"source_hint,omitempty"`
		Sleep         *SleepRecord         `json:"sleep,omitempty"`
		Exercise      *ExerciseRecord      `json:"exercise,omitempty"`
		DailyActivity *DailyActivityRecord `json:"daily_activity,omitempty"`
	}{Category: r.Category, Dialect: r.Dialect, Hint: r.Hint}

	switch p := r.Payload.(type) {
	case SleepRecord:
		out.Sleep = &p
	case ExerciseRecord:
		out.Exercise = &p
	case DailyActivityRecord:
		out.DailyActivity = &p
	}
	return json.Marshal(out)
}
