package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hurttlocker/timeline/internal/connect"
	"github.com/hurttlocker/timeline/internal/extract"
	"github.com/hurttlocker/timeline/internal/store"
	"github.com/hurttlocker/timeline/internal/timeline"
)

const snippetRunes = 60

func formatResult(r extract.Result) string {
	var b strings.Builder
	label := string(r.Category)
	if r.Dialect != extract.DialectNone {
		label += " (" + string(r.Dialect) + ")"
	}
	fmt.Fprintf(&b, "category:  %s\n", label)
	if r.Hint != extract.SourceUnknown {
		fmt.Fprintf(&b, "source:    %s\n", r.Hint)
	}

	switch p := r.Payload.(type) {
	case extract.SleepRecord:
		fmt.Fprintf(&b, "time:      %s → %s\n", p.Start, p.End)
		if p.Duration != "" {
			fmt.Fprintf(&b, "duration:  %s\n", p.Duration)
		}
		fmt.Fprintf(&b, "stages:    deep %dm, light %dm, rem %dm, awake %dm\n", p.Deep, p.Light, p.REM, p.Awake)
	case extract.ExerciseRecord:
		fmt.Fprintf(&b, "activity:  %s\n", p.Activity)
		fmt.Fprintf(&b, "time:      %s → %s\n", p.Start, p.End)
		if p.Duration != "" {
			fmt.Fprintf(&b, "duration:  %s\n", p.Duration)
		}
		if p.Distance != "" {
			fmt.Fprintf(&b, "distance:  %s\n", p.Distance)
		}
		if p.Calories != "" {
			fmt.Fprintf(&b, "calories:  %s\n", p.Calories)
		}
	case extract.DailyActivityRecord:
		fmt.Fprintf(&b, "steps:     %s\n", countString(p.Steps))
		fmt.Fprintf(&b, "calories:  %s\n", countString(p.Calories))
	}

	if r.HintMismatch() {
		fmt.Fprintf(&b, "warning:   source tag %s disagrees with the text\n", r.Hint)
	}
	return b.String()
}

func countString(c extract.Count) string {
	if !c.Valid {
		return "-"
	}
	return fmt.Sprintf("%d", c.Value)
}

// summary is the one-line description of a result used in lists.
func summary(r extract.Result, text string) string {
	switch p := r.Payload.(type) {
	case extract.SleepRecord:
		s := fmt.Sprintf("%s → %s", p.Start, p.End)
		if p.Duration != "" {
			s += " (" + p.Duration + ")"
		}
		if p.Deep+p.Light+p.REM+p.Awake > 0 {
			s += fmt.Sprintf("  deep %dm light %dm rem %dm awake %dm", p.Deep, p.Light, p.REM, p.Awake)
		}
		return s
	case extract.ExerciseRecord:
		parts := []string{p.Activity}
		if p.Start != extract.PlaceholderTime {
			parts = append(parts, p.Start+" → "+p.End)
		}
		for _, v := range []string{p.Duration, p.Distance, p.Calories} {
			if v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, "  ")
	case extract.DailyActivityRecord:
		return fmt.Sprintf("%s steps, %s kcal", countString(p.Steps), countString(p.Calories))
	}
	return snippet(text)
}

func snippet(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i] + " …"
	}
	runes := []rune(line)
	if len(runes) > snippetRunes {
		return string(runes[:snippetRunes]) + "…"
	}
	return line
}

func formatEntry(e timeline.Entry) string {
	when := e.Post.ImportedAt
	if e.Post.PostedAt != nil {
		when = *e.Post.PostedAt
	}
	source := e.Post.Source
	if source == "" {
		source = "-"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  [%s]  %s\n", e.Post.ID, when.Local().Format("2006-01-02 15:04"), source, e.Result.Category)
	fmt.Fprintf(&b, "    %s\n", summary(e.Result, e.Post.Text))
	if e.Result.HintMismatch() {
		fmt.Fprintf(&b, "    ! tagged %s but parsed as %s\n", e.Post.Source, e.Result.Category)
	}
	return b.String()
}

func formatSyncResult(r connect.SyncResult) string {
	var b strings.Builder
	if r.Error != "" {
		fmt.Fprintf(&b, "  %s: error: %s\n", r.Provider, r.Error)
	}
	fmt.Fprintf(&b, "  fetched %d, imported %d, unchanged %d", r.RecordsFetched, r.RecordsImported, r.RecordsSkipped)
	if r.RecordsFailed > 0 {
		fmt.Fprintf(&b, ", failed %d", r.RecordsFailed)
	}
	fmt.Fprintf(&b, " (%s)\n", r.Duration.Round(time.Millisecond))

	for _, c := range extract.Categories() {
		if n := r.Categories[c]; n > 0 {
			fmt.Fprintf(&b, "    %-15s %d\n", c, n)
		}
	}
	if r.HintMismatches > 0 {
		fmt.Fprintf(&b, "    %d post(s) disagree with their source tag\n", r.HintMismatches)
	}
	return b.String()
}

func formatStats(stats *store.StoreStats, bd *timeline.Breakdown) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Posts:       %d\n", stats.PostCount)
	fmt.Fprintf(&b, "Connectors:  %d\n", stats.ConnectorCount)
	fmt.Fprintf(&b, "DB size:     %s\n", humanBytes(stats.DBSizeBytes))

	if len(stats.PostsBySource) > 0 {
		fmt.Fprintln(&b, "\nBy source:")
		sources := make([]string, 0, len(stats.PostsBySource))
		for s := range stats.PostsBySource {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		for _, s := range sources {
			name := s
			if name == "" {
				name = "(none)"
			}
			fmt.Fprintf(&b, "  %-20s %d\n", name, stats.PostsBySource[s])
		}
	}

	fmt.Fprintln(&b, "\nBy category:")
	for _, c := range extract.Categories() {
		fmt.Fprintf(&b, "  %-20s %d\n", c, bd.Categories[c])
	}
	if bd.HintMismatches > 0 {
		fmt.Fprintf(&b, "\n%d post(s) disagree with their source tag: %s\n", bd.HintMismatches, strings.Join(bd.MismatchIDs, ", "))
	}
	return b.String()
}

func formatConnector(c *connect.Connector) string {
	status := "enabled"
	if !c.Enabled {
		status = "disabled"
	}
	last := "never"
	if c.LastSyncAt != nil {
		last = c.LastSyncAt.Local().Format("2006-01-02 15:04")
	}
	s := fmt.Sprintf("%-10s %-8s last sync %s, %d posts imported\n", c.Provider, status, last, c.RecordsImported)
	if c.LastError != "" {
		s += fmt.Sprintf("           last error: %s\n", c.LastError)
	}
	return s
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
