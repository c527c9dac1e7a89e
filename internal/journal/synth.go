// Package journal synthesizes the daily journal entry from captures.
package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/inference"
)

// Path is the refresh strategy chosen for a date.
type Path string

const (
	PathInstant     Path = "instant"
	PathIncremental Path = "incremental"
	PathColdStart   Path = "cold_start"
)

// SelectPath picks the refresh strategy.
func SelectPath(entryExists bool, unprocessed int) Path {
	switch {
	case entryExists && unprocessed == 0:
		return PathInstant
	case entryExists:
		return PathIncremental
	}
	return PathColdStart
}

// Completer is the part of the inference router the synthesizer needs.
type Completer interface {
	ChatComplete(ctx context.Context, messages []inference.Message, opts ...inference.CallOption) (*inference.Completion, error)
}

// LiveCollector takes a one-off reading when a day has no captures yet.
type LiveCollector interface {
	Collect(ctx context.Context, req collect.Request) *capture.Entry
}

// Options configures a Synthesizer.
type Options struct {
	Policy      MoodPolicy
	Location    *time.Location
	Now         func() time.Time
	Temperature float64
	MaxTokens   int
}

// Synthesizer produces and refreshes journal entries.
type Synthesizer struct {
	db        *sql.DB
	router    Completer
	collector LiveCollector
	opts      Options
}

// New creates a Synthesizer. router and collector may be nil: without a
// router entries stay locally composed, without a collector a day with no
// captures has not enough data.
func New(database *sql.DB, router Completer, collector LiveCollector, opts Options) *Synthesizer {
	if opts.Policy == nil {
		opts.Policy = RuleCascade{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 800
	}
	return &Synthesizer{db: database, router: router, collector: collector, opts: opts}
}

// Result reports what a refresh did.
type Result struct {
	Entry *capture.JournalEntry `json:"entry"`
	Path  Path                  `json:"path"`
	// Consumed is the number of captures marked processed by this refresh.
	Consumed int `json:"consumed"`
	// Fallback is set when inference failed. The entry then carries the local
	// draft, or the previous generated narrative on an incremental refresh.
	Fallback bool `json:"fallback,omitempty"`
	// Live is set when the entry came from a live reading instead of captures.
	Live bool `json:"live,omitempty"`
}

// Today returns today's date key in the synthesizer's location.
func (s *Synthesizer) Today() string {
	return capture.DateKey(s.opts.Now(), s.opts.Location)
}

// Refresh returns an up-to-date journal entry for date (YYYY-MM-DD).
//
// Inference failures never surface: the locally composed entry, or on an
// incremental refresh the previous generated narrative, is persisted and
// returned instead. Only a day with no data at all is an error.
func (s *Synthesizer) Refresh(ctx context.Context, date string) (*Result, error) {
	start, end, err := capture.DayBounds(date, s.opts.Location)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	existing, err := db.GetJournal(ctx, s.db, date)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	unprocessed, err := db.ListUnprocessedInRange(ctx, s.db, start, end)
	if err != nil {
		return nil, err
	}

	path := SelectPath(existing != nil, len(unprocessed))
	log.Debug().Str("date", date).Str("path", string(path)).Int("unprocessed", len(unprocessed)).Msg("journal refresh")

	switch path {
	case PathInstant:
		return &Result{Entry: existing, Path: path}, nil
	case PathIncremental:
		return s.incremental(ctx, existing, unprocessed, start, end)
	}
	return s.coldStart(ctx, date, unprocessed, start, end)
}

func (s *Synthesizer) incremental(ctx context.Context, existing *capture.JournalEntry, unprocessed []*capture.Entry, start, end time.Time) (*Result, error) {
	day, err := db.ListCapturesInRange(ctx, s.db, start, end)
	if err != nil {
		return nil, err
	}
	snap := capture.Aggregate(existing.Date, day)
	mood := s.opts.Policy.Mood(snap)

	entry := s.newEntry(existing.Date, snap, mood)
	Compose(snap, mood).Apply(entry)

	fallback := true
	if draft, ok := s.enrich(ctx, incrementalMessages(existing, unprocessed, mood)); ok {
		draft.Tags = append([]string{string(mood)}, draft.Tags...)
		draft.Apply(entry)
		entry.AIGenerated = true
		fallback = false
	} else if existing.AIGenerated {
		keepNarrative(entry, existing)
	}
	return s.persist(ctx, entry, PathIncremental, ids(unprocessed), fallback, false)
}

// keepNarrative carries a generated narrative over a failed update. Only the
// mood tag follows the new aggregate.
func keepNarrative(entry, existing *capture.JournalEntry) {
	tags := make([]string, 0, len(existing.Tags))
	tags = append(tags, string(entry.Mood))
	for _, t := range existing.Tags {
		if t != string(existing.Mood) {
			tags = append(tags, t)
		}
	}
	Draft{Headline: existing.Headline, Summary: existing.Summary, Body: existing.Body, Tags: tags}.Apply(entry)
	entry.AIGenerated = true
}

func (s *Synthesizer) coldStart(ctx context.Context, date string, unprocessed []*capture.Entry, start, end time.Time) (*Result, error) {
	day, err := db.ListCapturesInRange(ctx, s.db, start, end)
	if err != nil {
		return nil, err
	}

	live := false
	if len(day) == 0 {
		reading := s.liveReading(ctx, date)
		if reading == nil {
			return nil, errors.NewNotEnoughData(date)
		}
		day = []*capture.Entry{reading}
		live = true
	}

	snap := capture.Aggregate(date, day)
	if !snap.HasData() {
		return nil, errors.NewNotEnoughData(date)
	}
	mood := s.opts.Policy.Mood(snap)

	entry := s.newEntry(date, snap, mood)
	draft := Compose(snap, mood)
	draft.Apply(entry)

	fallback := true
	if enriched, ok := s.enrich(ctx, coldStartMessages(snap, mood, draft)); ok {
		enriched.Tags = append([]string{string(mood)}, enriched.Tags...)
		enriched.Apply(entry)
		entry.AIGenerated = true
		fallback = false
	}
	return s.persist(ctx, entry, PathColdStart, ids(unprocessed), fallback, live)
}

// liveReading collects a snapshot without persisting it. Only today can be
// read live.
func (s *Synthesizer) liveReading(ctx context.Context, date string) *capture.Entry {
	if s.collector == nil || date != s.Today() {
		return nil
	}
	e := s.collector.Collect(ctx, collect.Request{Include: collect.IncludeAll(), Source: capture.SourceManual})
	if e == nil || e.Empty() {
		return nil
	}
	return e
}

func (s *Synthesizer) enrich(ctx context.Context, messages []inference.Message) (Draft, bool) {
	if s.router == nil {
		return Draft{}, false
	}
	resp, err := s.router.ChatComplete(ctx, messages,
		inference.WithTemperature(s.opts.Temperature), inference.WithMaxTokens(s.opts.MaxTokens))
	if err != nil {
		log.Warn().Err(err).Msg("journal inference failed, keeping local draft")
		return Draft{}, false
	}
	draft, err := parseDraft(resp.Text)
	if err != nil {
		log.Warn().Err(err).Msg("unusable journal completion, keeping local draft")
		return Draft{}, false
	}
	return draft, true
}

func (s *Synthesizer) newEntry(date string, snap *capture.DaySnapshot, mood capture.Mood) *capture.JournalEntry {
	now := s.opts.Now().UTC()
	return &capture.JournalEntry{
		Date:         date,
		Mood:         mood,
		MoodEmoji:    mood.Emoji(),
		Snapshot:     snap,
		CaptureCount: snap.CaptureCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// persist writes the entry, then marks the consumed captures processed. The
// entry is read back so stored user notes and created_at are reflected.
func (s *Synthesizer) persist(ctx context.Context, entry *capture.JournalEntry, path Path, consumed []string, fallback, live bool) (*Result, error) {
	if err := db.UpsertJournal(ctx, s.db, entry); err != nil {
		return nil, err
	}
	n, err := db.MarkProcessed(ctx, s.db, consumed, s.opts.Now())
	if err != nil {
		return nil, err
	}
	stored, err := db.GetJournal(ctx, s.db, entry.Date)
	if err != nil {
		return nil, err
	}
	log.Info().Str("date", entry.Date).Str("path", string(path)).Int("consumed", n).
		Bool("ai_generated", stored.AIGenerated).Msg("journal entry written")
	return &Result{Entry: stored, Path: path, Consumed: n, Fallback: fallback, Live: live}, nil
}

func ids(entries []*capture.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
