// Package annotate attaches AI-generated metadata to individual captures.
package annotate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/inference"
)

// Temperature keeps annotations consistent between captures.
const Temperature = 0.2

// Completer is the part of the inference router the annotator needs.
type Completer interface {
	ChatComplete(ctx context.Context, messages []inference.Message, opts ...inference.CallOption) (*inference.Completion, error)
	Mode() inference.Mode
}

// Outcome is what one Annotate call did.
type Outcome string

const (
	OutcomeAnnotated Outcome = "annotated"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeMissing   Outcome = "missing"
	OutcomeFailed    Outcome = "failed"
)

// Annotator enriches captures. It never returns errors; failures are logged
// and the capture stays unannotated for a later pass.
type Annotator struct {
	db     *sql.DB
	router Completer
	loc    *time.Location
	now    func() time.Time
}

// New creates an Annotator. loc is used for the time-of-day context.
func New(database *sql.DB, router Completer, loc *time.Location) *Annotator {
	if loc == nil {
		loc = time.Local
	}
	return &Annotator{db: database, router: router, loc: loc, now: time.Now}
}

// Annotate enriches capture id unless it is missing or already annotated.
func (a *Annotator) Annotate(ctx context.Context, id string) Outcome {
	e, err := db.GetCapture(ctx, a.db, id)
	if errors.Is(err, errors.ErrNotFound) {
		return OutcomeMissing
	}
	if err != nil {
		log.Warn().Err(err).Str("capture_id", id).Msg("load capture for annotation")
		return OutcomeFailed
	}
	if e.AIMetadata != nil {
		return OutcomeSkipped
	}

	resp, err := a.router.ChatComplete(ctx, a.messages(e), inference.WithTemperature(Temperature))
	if err != nil {
		log.Warn().Err(err).Str("capture_id", id).Msg("annotation inference failed")
		return OutcomeFailed
	}
	meta, err := parseMetadata(resp.Text)
	if err != nil {
		log.Warn().Err(err).Str("capture_id", id).Msg("unusable annotation completion")
		return OutcomeFailed
	}
	meta.Mode = string(a.router.Mode())
	meta.GeneratedAt = a.now().UTC()

	written, err := db.SetAIMetadata(ctx, a.db, id, meta)
	if err != nil {
		log.Warn().Err(err).Str("capture_id", id).Msg("persist annotation")
		return OutcomeFailed
	}
	if !written {
		// Another pass got there first.
		return OutcomeSkipped
	}
	log.Debug().Str("capture_id", id).Strs("tags", meta.Tags).Msg("capture annotated")
	return OutcomeAnnotated
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Total     int `json:"total"`
	Annotated int `json:"annotated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// AnnotateAll annotates every unannotated capture sequentially. progress, if
// set, is called after every attempt whatever its outcome.
func (a *Annotator) AnnotateAll(ctx context.Context, progress func(done, total int)) (Summary, error) {
	ids, err := db.ListUnannotatedIDs(ctx, a.db, 0)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Total: len(ids)}
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		switch a.Annotate(ctx, id) {
		case OutcomeAnnotated:
			sum.Annotated++
		case OutcomeFailed:
			sum.Failed++
		default:
			sum.Skipped++
		}
		if progress != nil {
			progress(i+1, len(ids))
		}
	}
	return sum, nil
}

const systemPrompt = `You label personal body and context captures.
Answer with a single JSON object and nothing else:
{"summary": one sentence, "tags": [short lowercase words], "themes": [short phrases], "activities": [string], "mood_hint": string}
Only use facts from the capture.`

func (a *Annotator) messages(e *capture.Entry) []inference.Message {
	return []inference.Message{inference.System(systemPrompt), inference.User(describe(e, a.loc))}
}

// TimeOfDay names the part of the day t falls in.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 5:
		return "night"
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	case h < 21:
		return "evening"
	}
	return "night"
}

// StepsLevel frames a step count against typical daily activity.
func StepsLevel(steps int) string {
	switch {
	case steps >= 12000:
		return "very high"
	case steps >= 7000:
		return "above average"
	case steps >= 4000:
		return "average"
	}
	return "below average"
}

// SleepLevel frames hours of sleep.
func SleepLevel(hours float64) string {
	switch {
	case hours < 6:
		return "short"
	case hours < 7:
		return "slightly short"
	case hours <= 9:
		return "healthy"
	}
	return "long"
}

// AirQualityLevel follows the US AQI bands.
func AirQualityLevel(aqi int) string {
	switch {
	case aqi <= 50:
		return "good"
	case aqi <= 100:
		return "moderate"
	case aqi <= 150:
		return "unhealthy for sensitive groups"
	}
	return "unhealthy"
}

func describe(e *capture.Entry, loc *time.Location) string {
	var b strings.Builder
	ts := e.Timestamp.In(loc)
	fmt.Fprintf(&b, "Captured %s (%s, %s)\n", ts.Format("Monday 15:04"), TimeOfDay(ts), e.Source)

	if h := e.Health; h != nil {
		if h.Steps != nil {
			fmt.Fprintf(&b, "- steps: %d (%s)\n", *h.Steps, StepsLevel(*h.Steps))
		}
		if h.SleepHours != nil {
			fmt.Fprintf(&b, "- sleep: %.1f h (%s)\n", *h.SleepHours, SleepLevel(*h.SleepHours))
		}
		if h.HeartRate != nil {
			fmt.Fprintf(&b, "- heart rate: %.0f bpm\n", *h.HeartRate)
		}
		if h.ActiveEnergyKcal != nil {
			fmt.Fprintf(&b, "- active energy: %.0f kcal\n", *h.ActiveEnergyKcal)
		}
	}
	if env := e.Environment; env != nil {
		if env.TemperatureC != nil {
			fmt.Fprintf(&b, "- temperature: %.1f C\n", *env.TemperatureC)
		}
		if env.AirQualityIndex != nil {
			fmt.Fprintf(&b, "- air quality: %d (%s)\n", *env.AirQualityIndex, AirQualityLevel(*env.AirQualityIndex))
		}
		if env.Condition != "" {
			fmt.Fprintf(&b, "- conditions: %s\n", env.Condition)
		}
	}
	if loc := e.Location; loc != nil {
		if loc.Place != "" {
			fmt.Fprintf(&b, "- place: %s\n", loc.Place)
		} else {
			fmt.Fprintf(&b, "- location: %.3f, %.3f\n", loc.Latitude, loc.Longitude)
		}
	}
	if e.CalendarEvents != nil {
		if len(e.CalendarEvents) == 0 {
			b.WriteString("- calendar: no events\n")
		} else {
			fmt.Fprintf(&b, "- calendar: %s\n", strings.Join(e.CalendarEvents, "; "))
		}
	}
	if e.UserNote != nil {
		fmt.Fprintf(&b, "- note: %s\n", *e.UserNote)
	}
	if e.UserMood != nil {
		fmt.Fprintf(&b, "- self-reported mood: %s\n", *e.UserMood)
	}
	return b.String()
}

func parseMetadata(text string) (*capture.AIMetadata, error) {
	var meta capture.AIMetadata
	if err := inference.DecodeJSON(text, &meta); err != nil {
		return nil, err
	}
	meta.Summary = strings.TrimSpace(meta.Summary)
	if meta.Summary == "" && len(meta.Tags) == 0 {
		return nil, fmt.Errorf("completion has neither summary nor tags")
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	if meta.Themes == nil {
		meta.Themes = []string{}
	}
	return &meta, nil
}
