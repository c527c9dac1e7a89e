package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/errors"
)

// captureColumns is the column list shared by every capture SELECT.
const captureColumns = `id, timestamp, is_processed, processed_at, source, "trigger",
	user_note, user_mood, tags, health_data, environment_data, location_data,
	calendar_events, ai_insights, execution_duration_ms, errors, battery_level, ai_metadata`

// CaptureFilter narrows ListCaptures.
type CaptureFilter struct {
	// Processed filters by processing state when set.
	Processed *bool
	Limit     int
	Offset    int
}

// SaveCapture inserts a capture, or updates it if the id already exists.
//
// A re-save without a user note or mood keeps the stored one.
//
// The update path is skipped entirely for rows that are already processed,
// and never touches is_processed, processed_at or ai_metadata: those move
// only through MarkProcessed and SetAIMetadata.
func SaveCapture(ctx context.Context, db *sql.DB, e *capture.Entry) error {
	row, err := encodeCapture(e)
	if err != nil {
		return errors.NewInternal(err)
	}
	source := e.Source
	if source == "" {
		source = capture.SourceManual
	}

	query := `
		INSERT INTO captures (
			id, timestamp, is_processed, processed_at, source, "trigger",
			user_note, user_mood, tags, health_data, environment_data, location_data,
			calendar_events, ai_insights, execution_duration_ms, errors, battery_level, ai_metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp,
			source = excluded.source,
			"trigger" = excluded."trigger",
			user_note = COALESCE(excluded.user_note, captures.user_note),
			user_mood = COALESCE(excluded.user_mood, captures.user_mood),
			tags = excluded.tags,
			health_data = excluded.health_data,
			environment_data = excluded.environment_data,
			location_data = excluded.location_data,
			calendar_events = excluded.calendar_events,
			ai_insights = excluded.ai_insights,
			execution_duration_ms = excluded.execution_duration_ms,
			errors = excluded.errors,
			battery_level = excluded.battery_level
		WHERE captures.is_processed = 0
	`

	_, err = db.ExecContext(ctx, query,
		e.ID, e.Timestamp.UnixMilli(), boolToInt(e.IsProcessed), row.processedAt, string(source), row.trigger,
		toNullString(e.UserNote), toNullString(e.UserMood), row.tags, row.health, row.environment, row.location,
		row.calendar, toNullString(e.AIInsights), row.durationMs, row.errors, row.battery, row.aiMetadata,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetCapture retrieves a capture by id.
func GetCapture(ctx context.Context, db *sql.DB, id string) (*capture.Entry, error) {
	row := db.QueryRowContext(ctx, "SELECT "+captureColumns+" FROM captures WHERE id = ?", id)
	e, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("capture", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// ListCaptures returns captures newest-first.
func ListCaptures(ctx context.Context, db *sql.DB, f CaptureFilter) ([]*capture.Entry, error) {
	query := "SELECT " + captureColumns + " FROM captures"
	var args []any
	if f.Processed != nil {
		query += " WHERE is_processed = ?"
		args = append(args, boolToInt(*f.Processed))
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	return queryCaptures(ctx, db, query, args...)
}

// ListCapturesInRange returns captures with start <= timestamp < end, oldest-first.
func ListCapturesInRange(ctx context.Context, db *sql.DB, start, end time.Time) ([]*capture.Entry, error) {
	query := "SELECT " + captureColumns + ` FROM captures
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, id ASC`
	return queryCaptures(ctx, db, query, start.UnixMilli(), end.UnixMilli())
}

// ListUnprocessedInRange is ListCapturesInRange restricted to unprocessed captures.
func ListUnprocessedInRange(ctx context.Context, db *sql.DB, start, end time.Time) ([]*capture.Entry, error) {
	query := "SELECT " + captureColumns + ` FROM captures
		WHERE is_processed = 0 AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, id ASC`
	return queryCaptures(ctx, db, query, start.UnixMilli(), end.UnixMilli())
}

// MarkProcessed flags ids as processed in one transaction.
// Already-processed ids are left untouched; the count of newly marked rows is returned.
func MarkProcessed(ctx context.Context, db *sql.DB, ids []string, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE captures SET is_processed = 1, processed_at = ? WHERE id = ? AND is_processed = 0")
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer stmt.Close()

	marked := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, now.UnixMilli(), id)
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		marked += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return marked, nil
}

// DeleteCapture removes a capture permanently.
func DeleteCapture(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM captures WHERE id = ?", id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("capture", id)
	}
	return nil
}

// CountCaptures counts captures, optionally filtered by processing state.
func CountCaptures(ctx context.Context, db *sql.DB, processed *bool) (int, error) {
	query := "SELECT COUNT(*) FROM captures"
	var args []any
	if processed != nil {
		query += " WHERE is_processed = ?"
		args = append(args, boolToInt(*processed))
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// SetAIMetadata attaches annotator output to a capture that has none yet.
// Returns false when the capture is missing or already annotated.
func SetAIMetadata(ctx context.Context, db *sql.DB, id string, meta *capture.AIMetadata) (bool, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	result, err := db.ExecContext(ctx,
		"UPDATE captures SET ai_metadata = ? WHERE id = ? AND ai_metadata IS NULL", string(data), id)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// ListUnannotatedIDs returns ids of captures without AI metadata, oldest-first.
// limit <= 0 means no limit.
func ListUnannotatedIDs(ctx context.Context, db *sql.DB, limit int) ([]string, error) {
	query := "SELECT id FROM captures WHERE ai_metadata IS NULL ORDER BY timestamp ASC, id ASC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

// GetSetting reads a settings value. ok is false when the key is absent.
func GetSetting(ctx context.Context, db *sql.DB, key string) (value string, ok bool, err error) {
	err = db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// SetSetting writes a settings value, replacing any previous one.
func SetSetting(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// IncrementCounter atomically adds one to a decimal counter stored under key
// and returns the new value. A missing or non-numeric value counts as zero.
func IncrementCounter(ctx context.Context, db *sql.DB, key string) (int64, error) {
	var raw string
	err := db.QueryRowContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(settings.value AS INTEGER) + 1 AS TEXT)
		RETURNING value
	`, key).Scan(&raw)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// GetCounter reads a counter written by IncrementCounter; absent means zero.
func GetCounter(ctx context.Context, db *sql.DB, key string) (int64, error) {
	raw, ok, err := GetSetting(ctx, db, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func queryCaptures(ctx context.Context, db *sql.DB, query string, args ...any) ([]*capture.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []*capture.Entry
	for rows.Next() {
		e, err := scanCapture(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// scanCapture scans a single row (captureColumns order) into an Entry.
func scanCapture(row rowScanner) (*capture.Entry, error) {
	var (
		e           capture.Entry
		ts          int64
		processed   int
		processedAt sql.NullInt64
		source      string
		trigger     sql.NullString
		userNote    sql.NullString
		userMood    sql.NullString
		tags        sql.NullString
		health      sql.NullString
		environment sql.NullString
		location    sql.NullString
		calendar    sql.NullString
		aiInsights  sql.NullString
		durationMs  sql.NullInt64
		errs        sql.NullString
		battery     sql.NullInt64
		aiMetadata  sql.NullString
	)

	err := row.Scan(
		&e.ID, &ts, &processed, &processedAt, &source, &trigger,
		&userNote, &userMood, &tags, &health, &environment, &location,
		&calendar, &aiInsights, &durationMs, &errs, &battery, &aiMetadata,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = time.UnixMilli(ts).UTC()
	e.IsProcessed = processed != 0
	if processedAt.Valid {
		t := time.UnixMilli(processedAt.Int64).UTC()
		e.ProcessedAt = &t
	}
	e.Source = capture.Source(source)
	if trigger.Valid {
		tr := capture.Trigger(trigger.String)
		e.Trigger = &tr
	}
	e.UserNote = fromNullString(userNote)
	e.UserMood = fromNullString(userMood)
	e.AIInsights = fromNullString(aiInsights)
	if durationMs.Valid {
		d := time.Duration(durationMs.Int64) * time.Millisecond
		e.ExecutionDuration = &d
	}
	if battery.Valid {
		b := int(battery.Int64)
		e.BatteryLevel = &b
	}

	if err := fromNullJSON(tags, &e.Tags); err != nil {
		return nil, err
	}
	if err := fromNullJSON(calendar, &e.CalendarEvents); err != nil {
		return nil, err
	}
	if err := fromNullJSON(errs, &e.Errors); err != nil {
		return nil, err
	}
	if health.Valid {
		e.Health = &capture.HealthData{}
		if err := json.Unmarshal([]byte(health.String), e.Health); err != nil {
			return nil, err
		}
	}
	if environment.Valid {
		e.Environment = &capture.EnvironmentData{}
		if err := json.Unmarshal([]byte(environment.String), e.Environment); err != nil {
			return nil, err
		}
	}
	if location.Valid {
		e.Location = &capture.LocationData{}
		if err := json.Unmarshal([]byte(location.String), e.Location); err != nil {
			return nil, err
		}
	}
	if aiMetadata.Valid {
		e.AIMetadata = &capture.AIMetadata{}
		if err := json.Unmarshal([]byte(aiMetadata.String), e.AIMetadata); err != nil {
			return nil, err
		}
	}

	return &e, nil
}

// encodedCapture holds the column values of an Entry that need conversion.
type encodedCapture struct {
	processedAt sql.NullInt64
	trigger     sql.NullString
	tags        sql.NullString
	health      sql.NullString
	environment sql.NullString
	location    sql.NullString
	calendar    sql.NullString
	durationMs  sql.NullInt64
	errors      sql.NullString
	battery     sql.NullInt64
	aiMetadata  sql.NullString
}

func encodeCapture(e *capture.Entry) (*encodedCapture, error) {
	var (
		r   encodedCapture
		err error
	)
	if e.ProcessedAt != nil {
		r.processedAt = sql.NullInt64{Int64: e.ProcessedAt.UnixMilli(), Valid: true}
	}
	if e.Trigger != nil {
		r.trigger = sql.NullString{String: string(*e.Trigger), Valid: true}
	}
	if e.ExecutionDuration != nil {
		r.durationMs = sql.NullInt64{Int64: e.ExecutionDuration.Milliseconds(), Valid: true}
	}
	if e.BatteryLevel != nil {
		r.battery = sql.NullInt64{Int64: int64(*e.BatteryLevel), Valid: true}
	}
	// Empty lists are real answers and are kept distinct from NULL.
	if e.Tags != nil {
		if r.tags, err = toNullJSON(e.Tags); err != nil {
			return nil, err
		}
	}
	if e.Errors != nil {
		if r.errors, err = toNullJSON(e.Errors); err != nil {
			return nil, err
		}
	}
	if e.CalendarEvents != nil {
		if r.calendar, err = toNullJSON(e.CalendarEvents); err != nil {
			return nil, err
		}
	}
	if e.Health != nil {
		if r.health, err = toNullJSON(e.Health); err != nil {
			return nil, err
		}
	}
	if e.Environment != nil {
		if r.environment, err = toNullJSON(e.Environment); err != nil {
			return nil, err
		}
	}
	if e.Location != nil {
		if r.location, err = toNullJSON(e.Location); err != nil {
			return nil, err
		}
	}
	if e.AIMetadata != nil {
		if r.aiMetadata, err = toNullJSON(e.AIMetadata); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// toNullJSON encodes v as a JSON text column value.
func toNullJSON(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// fromNullJSON decodes a JSON text column into dst, leaving dst untouched when NULL.
func fromNullJSON(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
