package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/inference"
)

const systemPrompt = `You write short, warm daily journal entries from body and context data.
Only mention facts present in the data. Never invent readings.
Answer with a single JSON object and nothing else:
{"headline": string, "summary": string, "body": markdown string, "tags": [string]}`

// coldStartMessages asks the model to rewrite the local draft for a whole day.
func coldStartMessages(snap *capture.DaySnapshot, mood capture.Mood, draft Draft) []inference.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\nMood: %s\n\nDay summary:\n", snap.Date, mood)
	writeSnapshot(&b, snap)
	fmt.Fprintf(&b, "\nLocal draft:\nHeadline: %s\nSummary: %s\n\n%s", draft.Headline, draft.Summary, draft.Body)
	b.WriteString("\nWrite the journal entry for this day.")
	return []inference.Message{inference.System(systemPrompt), inference.User(b.String())}
}

// incrementalMessages asks the model to fold new captures into an existing
// entry. captures must be oldest-first.
func incrementalMessages(existing *capture.JournalEntry, captures []*capture.Entry, mood capture.Mood) []inference.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\nMood: %s\n\nCurrent entry:\nHeadline: %s\nSummary: %s\n\n%s\n",
		existing.Date, mood, existing.Headline, existing.Summary, existing.Body)
	b.WriteString("\nNew captures since the entry was written, oldest first:\n")
	for _, e := range captures {
		writeCapture(&b, e)
	}
	b.WriteString("\nUpdate the entry so it also covers the new captures.")
	return []inference.Message{inference.System(systemPrompt), inference.User(b.String())}
}

func writeSnapshot(b *strings.Builder, s *capture.DaySnapshot) {
	line := func(ok bool, format string, args ...any) {
		if ok {
			b.WriteString("- ")
			fmt.Fprintf(b, format, args...)
			b.WriteByte('\n')
		}
	}
	line(true, "captures: %d", s.CaptureCount)
	line(s.Steps != nil, "steps: %d", deref(s.Steps))
	line(s.SleepHours != nil, "sleep: %.1f h", derefF(s.SleepHours))
	line(s.HeartRate != nil, "heart rate: %.0f bpm", derefF(s.HeartRate))
	line(s.ActiveEnergyKcal != nil, "active energy: %.0f kcal", derefF(s.ActiveEnergyKcal))
	line(s.TemperatureC != nil, "temperature: %.1f C", derefF(s.TemperatureC))
	line(s.AirQualityIndex != nil, "air quality index: %d", deref(s.AirQualityIndex))
	line(s.Condition != "", "conditions: %s", s.Condition)
	line(len(s.Places) > 0, "places: %s", strings.Join(s.Places, ", "))
	line(len(s.Events) > 0, "events: %s", strings.Join(s.Events, "; "))
}

func writeCapture(b *strings.Builder, e *capture.Entry) {
	fmt.Fprintf(b, "\n[%s]\n", e.Timestamp.Local().Format(time.Kitchen))
	if h := e.Health; h != nil {
		if h.Steps != nil {
			fmt.Fprintf(b, "- steps: %d\n", *h.Steps)
		}
		if h.SleepHours != nil {
			fmt.Fprintf(b, "- sleep: %.1f h\n", *h.SleepHours)
		}
		if h.HeartRate != nil {
			fmt.Fprintf(b, "- heart rate: %.0f bpm\n", *h.HeartRate)
		}
	}
	if env := e.Environment; env != nil {
		if env.TemperatureC != nil {
			fmt.Fprintf(b, "- temperature: %.1f C\n", *env.TemperatureC)
		}
		if env.AirQualityIndex != nil {
			fmt.Fprintf(b, "- air quality index: %d\n", *env.AirQualityIndex)
		}
		if env.Condition != "" {
			fmt.Fprintf(b, "- conditions: %s\n", env.Condition)
		}
	}
	if loc := e.Location; loc != nil && loc.Place != "" {
		fmt.Fprintf(b, "- place: %s\n", loc.Place)
	}
	if len(e.CalendarEvents) > 0 {
		fmt.Fprintf(b, "- events: %s\n", strings.Join(e.CalendarEvents, "; "))
	}
	if e.UserNote != nil {
		fmt.Fprintf(b, "- note: %s\n", *e.UserNote)
	}
}

// parseDraft decodes a completion into a draft. Headline and body are required.
func parseDraft(text string) (Draft, error) {
	var d Draft
	if err := inference.DecodeJSON(text, &d); err != nil {
		return Draft{}, err
	}
	d.Headline = strings.TrimSpace(d.Headline)
	d.Body = strings.TrimSpace(d.Body)
	if d.Headline == "" || d.Body == "" {
		return Draft{}, fmt.Errorf("completion is missing headline or body")
	}
	return d, nil
}
