package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/notify"
)

// CaptureNowInput contains parameters for the CaptureNow operation.
type CaptureNowInput struct {
	// Include selects sources; nil means all.
	Include *collect.Include
	Note    *string
	Mood    *string
	Tags    []string
}

// CaptureNowOutput contains the result of the CaptureNow operation.
type CaptureNowOutput struct {
	Capture *capture.Entry `json:"capture"`
	Sources []string       `json:"sources"`
	// Queued reports whether annotation was scheduled.
	Queued bool `json:"annotation_queued"`
}

// CaptureNow takes a manual capture. It bypasses the schedule (enabled flag,
// quiet hours) and persists immediately.
func CaptureNow(ctx context.Context, e *engine.Engine, input CaptureNowInput) (*CaptureNowOutput, error) {
	include := collect.IncludeAll()
	if input.Include != nil {
		include = *input.Include
	}
	trigger := capture.TriggerManual
	entry := e.Collector.Collect(ctx, collect.Request{Include: include, Source: capture.SourceManual, Trigger: &trigger})

	entry.UserNote = trimmed(input.Note)
	entry.UserMood = trimmed(input.Mood)
	for _, t := range input.Tags {
		if t = strings.TrimSpace(t); t != "" {
			entry.Tags = append(entry.Tags, t)
		}
	}
	if entry.Empty() && entry.UserNote == nil {
		return nil, errors.NewNotEnoughData("now")
	}

	if err := db.SaveCapture(ctx, e.DB, entry); err != nil {
		return nil, err
	}
	queued := e.Queue.Enqueue(entry.ID)
	e.Notifier.CaptureComplete(captureEvent(entry))

	sources := entry.IncludedSources()
	if sources == nil {
		sources = []string{}
	}
	return &CaptureNowOutput{Capture: entry, Sources: sources, Queued: queued}, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func captureEvent(e *capture.Entry) notify.CaptureEvent {
	return notify.CaptureEvent{
		CaptureID: e.ID,
		Timestamp: e.Timestamp,
		Source:    e.Source,
		Sources:   e.IncludedSources(),
		Errors:    e.Errors,
	}
}
