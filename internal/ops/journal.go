package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/journal"
)

// RefreshJournalInput contains parameters for the RefreshJournal operation.
type RefreshJournalInput struct {
	Date string // YYYY-MM-DD, default: today
}

// RefreshJournal brings the journal entry for a date up to date.
func RefreshJournal(ctx context.Context, e *engine.Engine, input RefreshJournalInput) (*journal.Result, error) {
	date, err := normalizeDate(strings.TrimSpace(input.Date), e.Today())
	if err != nil {
		return nil, err
	}
	return e.Synthesizer.Refresh(ctx, date)
}

// FetchJournalInput contains parameters for the FetchJournal operation.
type FetchJournalInput struct {
	Date  string // required
	Today string // used when Date is empty
}

// FetchJournal returns the stored entry without refreshing it.
func FetchJournal(ctx context.Context, database *sql.DB, input FetchJournalInput) (*capture.JournalEntry, error) {
	date := strings.TrimSpace(input.Date)
	if date == "" && input.Today == "" {
		return nil, errors.NewInvalidRequest("date is required")
	}
	date, err := normalizeDate(date, input.Today)
	if err != nil {
		return nil, err
	}
	return db.GetJournal(ctx, database, date)
}

// JournalSummary is the list view of a journal entry.
type JournalSummary struct {
	Date         string       `json:"date"`
	Headline     string       `json:"headline"`
	Summary      string       `json:"summary"`
	Mood         capture.Mood `json:"mood"`
	MoodEmoji    string       `json:"mood_emoji"`
	Tags         []string     `json:"tags"`
	HasNote      bool         `json:"has_note"`
	AIGenerated  bool         `json:"ai_generated"`
	CaptureCount int          `json:"capture_count"`
}

// ListJournalsInput contains parameters for the ListJournals operation.
type ListJournalsInput struct {
	Limit  int // default: 20, max: 100
	Offset int
}

// ListJournalsOutput contains the result of the ListJournals operation.
type ListJournalsOutput struct {
	Items      []JournalSummary `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// ListJournals returns journal summaries, newest date first.
func ListJournals(ctx context.Context, database *sql.DB, input ListJournalsInput) (*ListJournalsOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	entries, err := db.ListJournals(ctx, database, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := db.CountJournals(ctx, database)
	if err != nil {
		return nil, err
	}

	items := make([]JournalSummary, 0, len(entries))
	for _, j := range entries {
		tags := j.Tags
		if tags == nil {
			tags = []string{}
		}
		items = append(items, JournalSummary{
			Date:         j.Date,
			Headline:     j.Headline,
			Summary:      j.Summary,
			Mood:         j.Mood,
			MoodEmoji:    j.MoodEmoji,
			Tags:         tags,
			HasNote:      j.UserNote != nil,
			AIGenerated:  j.AIGenerated,
			CaptureCount: j.CaptureCount,
		})
	}
	return &ListJournalsOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "date_desc",
	}, nil
}

// SetJournalNoteInput contains parameters for the SetJournalNote operation.
type SetJournalNoteInput struct {
	Date string  // default: today
	Note *string // nil or blank clears
	Mood *string // nil or blank clears
}

// SetJournalNote attaches the user's own note and mood to a journal day.
// Refreshes keep them.
func SetJournalNote(ctx context.Context, e *engine.Engine, input SetJournalNoteInput) (*capture.JournalEntry, error) {
	date, err := normalizeDate(strings.TrimSpace(input.Date), e.Today())
	if err != nil {
		return nil, err
	}
	if err := db.SetJournalNote(ctx, e.DB, date, trimmed(input.Note), trimmed(input.Mood), e.Now()); err != nil {
		return nil, err
	}
	return db.GetJournal(ctx, e.DB, date)
}
