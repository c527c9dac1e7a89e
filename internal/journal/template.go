package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/bodypress/internal/capture"
)

// Draft is the text part of a journal entry.
type Draft struct {
	Headline string   `json:"headline"`
	Summary  string   `json:"summary"`
	Body     string   `json:"body"`
	Tags     []string `json:"tags"`
}

var headlines = map[capture.Mood]string{
	capture.MoodEnergised: "A well-rested, high-energy day",
	capture.MoodTired:     "Running on short sleep",
	capture.MoodActive:    "A day on the move",
	capture.MoodCautious:  "Taking it easy under poor air",
	capture.MoodRested:    "Well rested",
	capture.MoodQuiet:     "A quiet, still day",
	capture.MoodCalm:      "A calm, steady day",
}

// Compose renders the deterministic local entry for a snapshot. It only
// mentions readings present on the snapshot.
func Compose(snap *capture.DaySnapshot, mood capture.Mood) Draft {
	d := Draft{Headline: headlines[mood]}
	if d.Headline == "" {
		d.Headline = headlines[capture.MoodCalm]
	}

	var facts []string
	if snap.Steps != nil {
		facts = append(facts, fmt.Sprintf("%d steps", *snap.Steps))
	}
	if snap.SleepHours != nil {
		facts = append(facts, fmt.Sprintf("%.1f hours of sleep", *snap.SleepHours))
	}
	if snap.HeartRate != nil {
		facts = append(facts, fmt.Sprintf("an average heart rate of %.0f bpm", *snap.HeartRate))
	}
	if snap.TemperatureC != nil {
		facts = append(facts, fmt.Sprintf("%.0f°C outside", *snap.TemperatureC))
	}
	if len(facts) == 0 {
		d.Summary = fmt.Sprintf("%d capture(s) recorded with little sensor detail.", snap.CaptureCount)
	} else {
		d.Summary = upperFirst(joinFacts(facts)) + "."
	}

	var b strings.Builder
	if snap.Steps != nil || snap.DistanceKm != nil || snap.ActiveEnergyKcal != nil ||
		snap.SleepHours != nil || snap.HeartRate != nil || snap.RestingHeartRate != nil {
		b.WriteString("## Activity\n\n")
	}
	bullet(&b, snap.Steps != nil, "Steps: %d", deref(snap.Steps))
	bullet(&b, snap.DistanceKm != nil, "Distance: %.1f km", derefF(snap.DistanceKm))
	bullet(&b, snap.ActiveEnergyKcal != nil, "Active energy: %.0f kcal", derefF(snap.ActiveEnergyKcal))
	bullet(&b, snap.SleepHours != nil, "Sleep: %.1f h", derefF(snap.SleepHours))
	bullet(&b, snap.HeartRate != nil, "Heart rate: %.0f bpm", derefF(snap.HeartRate))
	bullet(&b, snap.RestingHeartRate != nil, "Resting heart rate: %.0f bpm", derefF(snap.RestingHeartRate))

	if snap.TemperatureC != nil || snap.AirQualityIndex != nil || snap.Condition != "" {
		b.WriteString("\n## Surroundings\n\n")
		bullet(&b, snap.Condition != "", "Conditions: %s", snap.Condition)
		bullet(&b, snap.TemperatureC != nil, "Temperature: %.1f°C", derefF(snap.TemperatureC))
		bullet(&b, snap.AirQualityIndex != nil, "Air quality index: %d", deref(snap.AirQualityIndex))
	}
	if len(snap.Places) > 0 {
		b.WriteString("\n## Places\n\n")
		for _, p := range snap.Places {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(snap.Events) > 0 {
		b.WriteString("\n## Calendar\n\n")
		for _, e := range snap.Events {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	if snap.FirstCapture != nil && snap.LastCapture != nil {
		fmt.Fprintf(&b, "\n_%d capture(s) between %s and %s._\n", snap.CaptureCount,
			snap.FirstCapture.Local().Format(time.Kitchen), snap.LastCapture.Local().Format(time.Kitchen))
	}
	d.Body = b.String()

	d.Tags = []string{string(mood)}
	if snap.Steps != nil && *snap.Steps >= ActiveSteps {
		d.Tags = append(d.Tags, "active")
	}
	if len(snap.Events) > 0 {
		d.Tags = append(d.Tags, "busy")
	}
	return d
}

// Apply copies the draft text onto j.
func (d Draft) Apply(j *capture.JournalEntry) {
	j.Headline = d.Headline
	j.Summary = d.Summary
	j.Body = d.Body
	j.Tags = dedupe(d.Tags)
}

func bullet(b *strings.Builder, ok bool, format string, args ...any) {
	if !ok {
		return
	}
	b.WriteString("- ")
	fmt.Fprintf(b, format, args...)
	b.WriteByte('\n')
}

func joinFacts(facts []string) string {
	switch len(facts) {
	case 1:
		return facts[0]
	case 2:
		return facts[0] + " and " + facts[1]
	}
	return strings.Join(facts[:len(facts)-1], ", ") + " and " + facts[len(facts)-1]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func dedupe(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefF(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
