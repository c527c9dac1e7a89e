package db

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/errors"
)

const journalColumns = `date, headline, summary, body, mood, mood_emoji, tags,
	user_note, user_mood, ai_generated, snapshot, capture_count, created_at, updated_at`

// GetJournal retrieves the journal entry for date (YYYY-MM-DD).
func GetJournal(ctx context.Context, db *sql.DB, date string) (*capture.JournalEntry, error) {
	row := db.QueryRowContext(ctx, "SELECT "+journalColumns+" FROM journal_entries WHERE date = ?", date)
	j, err := scanJournal(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("journal", date)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return j, nil
}

// UpsertJournal writes the entry for j.Date, keeping at most one row per date.
//
// created_at is preserved on update. A nil user note or mood keeps the stored
// value; those are owned by SetJournalNote.
func UpsertJournal(ctx context.Context, db *sql.DB, j *capture.JournalEntry) error {
	var tags sql.NullString
	if len(j.Tags) > 0 {
		data, err := json.Marshal(j.Tags)
		if err != nil {
			return errors.NewInternal(err)
		}
		tags = sql.NullString{String: string(data), Valid: true}
	}
	var snapshot sql.NullString
	if j.Snapshot != nil {
		data, err := json.Marshal(j.Snapshot)
		if err != nil {
			return errors.NewInternal(err)
		}
		snapshot = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO journal_entries (
			date, headline, summary, body, mood, mood_emoji, tags,
			user_note, user_mood, ai_generated, snapshot, capture_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			headline = excluded.headline,
			summary = excluded.summary,
			body = excluded.body,
			mood = excluded.mood,
			mood_emoji = excluded.mood_emoji,
			tags = excluded.tags,
			user_note = COALESCE(excluded.user_note, journal_entries.user_note),
			user_mood = COALESCE(excluded.user_mood, journal_entries.user_mood),
			ai_generated = excluded.ai_generated,
			snapshot = excluded.snapshot,
			capture_count = excluded.capture_count,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		j.Date, j.Headline, j.Summary, j.Body, string(j.Mood), j.MoodEmoji, tags,
		toNullString(j.UserNote), toNullString(j.UserMood), boolToInt(j.AIGenerated), snapshot,
		j.CaptureCount, j.CreatedAt.UnixMilli(), j.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListJournals returns journal entries newest date first.
func ListJournals(ctx context.Context, db *sql.DB, limit, offset int) ([]*capture.JournalEntry, error) {
	query := "SELECT " + journalColumns + " FROM journal_entries ORDER BY date DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []*capture.JournalEntry
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// CountJournals returns the number of stored journal entries.
func CountJournals(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM journal_entries").Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// SetJournalNote replaces the user note and mood on an existing entry.
// A nil value clears the field.
func SetJournalNote(ctx context.Context, db *sql.DB, date string, note, mood *string, now time.Time) error {
	result, err := db.ExecContext(ctx,
		"UPDATE journal_entries SET user_note = ?, user_mood = ?, updated_at = ? WHERE date = ?",
		toNullString(note), toNullString(mood), now.UnixMilli(), date)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("journal", date)
	}
	return nil
}

// DeleteJournal removes the entry for date. Captures are not touched.
func DeleteJournal(ctx context.Context, db *sql.DB, date string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM journal_entries WHERE date = ?", date)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("journal", date)
	}
	return nil
}

func scanJournal(row rowScanner) (*capture.JournalEntry, error) {
	var (
		j           capture.JournalEntry
		mood        string
		tags        sql.NullString
		userNote    sql.NullString
		userMood    sql.NullString
		aiGenerated int
		snapshot    sql.NullString
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(
		&j.Date, &j.Headline, &j.Summary, &j.Body, &mood, &j.MoodEmoji, &tags,
		&userNote, &userMood, &aiGenerated, &snapshot, &j.CaptureCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Mood = capture.Mood(mood)
	j.UserNote = fromNullString(userNote)
	j.UserMood = fromNullString(userMood)
	j.AIGenerated = aiGenerated != 0
	j.CreatedAt = time.UnixMilli(createdAt).UTC()
	j.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if err := fromNullJSON(tags, &j.Tags); err != nil {
		return nil, err
	}
	if snapshot.Valid {
		j.Snapshot = &capture.DaySnapshot{}
		if err := json.Unmarshal([]byte(snapshot.String), j.Snapshot); err != nil {
			return nil, err
		}
	}
	return &j, nil
}
