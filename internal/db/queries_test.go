package db

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEntry(id string, ts time.Time) *capture.Entry {
	return &capture.Entry{
		ID:        id,
		Timestamp: ts,
		Source:    capture.SourceBackgroundScheduled,
	}
}

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func TestSaveAndGetCapture_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	trigger := capture.TriggerTime
	dur := 1500 * time.Millisecond
	e := newTestEntry("01A", day.Add(9*time.Hour))
	e.Trigger = &trigger
	e.UserNote = capture.String("slept badly")
	e.Tags = []string{"morning"}
	e.Health = &capture.HealthData{Steps: capture.Int(0), SleepHours: capture.Float(5.5)}
	e.Environment = &capture.EnvironmentData{TemperatureC: capture.Float(-2.5), City: "Oslo"}
	e.Location = &capture.LocationData{Latitude: 59.9, Longitude: 10.7}
	e.CalendarEvents = []string{}
	e.ExecutionDuration = &dur
	e.Errors = []string{"calendar: timeout"}
	e.BatteryLevel = capture.Int(42)

	require.NoError(t, SaveCapture(ctx, db, e))

	got, err := GetCapture(ctx, db, "01A")
	require.NoError(t, err)

	assert.True(t, got.Timestamp.Equal(e.Timestamp))
	assert.Equal(t, capture.SourceBackgroundScheduled, got.Source)
	require.NotNil(t, got.Trigger)
	assert.Equal(t, capture.TriggerTime, *got.Trigger)
	assert.Equal(t, "slept badly", *got.UserNote)
	assert.Nil(t, got.UserMood)
	assert.Equal(t, []string{"morning"}, got.Tags)

	require.NotNil(t, got.Health)
	require.NotNil(t, got.Health.Steps)
	assert.Equal(t, 0, *got.Health.Steps, "genuine zero survives")
	assert.Nil(t, got.Health.HeartRate, "missing metric stays nil")

	require.NotNil(t, got.Environment)
	assert.InDelta(t, -2.5, *got.Environment.TemperatureC, 0.0001)
	assert.Nil(t, got.Environment.AirQualityIndex)

	require.NotNil(t, got.CalendarEvents, "empty calendar is not the same as unavailable")
	assert.Empty(t, got.CalendarEvents)

	require.NotNil(t, got.ExecutionDuration)
	assert.Equal(t, dur, *got.ExecutionDuration)
	assert.Equal(t, []string{"calendar: timeout"}, got.Errors)
	assert.Equal(t, 42, *got.BatteryLevel)
	assert.False(t, got.IsProcessed)
	assert.Nil(t, got.ProcessedAt)
	assert.Nil(t, got.AIMetadata)
}

func TestSaveCapture_NilBlocksStayNil(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, SaveCapture(ctx, db, newTestEntry("01A", day)))

	got, err := GetCapture(ctx, db, "01A")
	require.NoError(t, err)
	assert.Nil(t, got.Health)
	assert.Nil(t, got.Environment)
	assert.Nil(t, got.Location)
	assert.Nil(t, got.CalendarEvents)
	assert.Nil(t, got.Trigger)
	assert.Nil(t, got.ExecutionDuration)
	assert.Nil(t, got.BatteryLevel)
	assert.True(t, got.Empty())
}

func TestSaveCapture_DefaultsSourceToManual(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, SaveCapture(ctx, db, &capture.Entry{ID: "01A", Timestamp: day}))

	got, err := GetCapture(ctx, db, "01A")
	require.NoError(t, err)
	assert.Equal(t, capture.SourceManual, got.Source)
}

func TestSaveCapture_ProcessedRowIsImmutable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := newTestEntry("01A", day)
	e.UserNote = capture.String("original")
	require.NoError(t, SaveCapture(ctx, db, e))

	// Unprocessed rows accept updates.
	e.UserNote = capture.String("edited")
	require.NoError(t, SaveCapture(ctx, db, e))
	got, err := GetCapture(ctx, db, "01A")
	require.NoError(t, err)
	assert.Equal(t, "edited", *got.UserNote)

	_, err = MarkProcessed(ctx, db, []string{"01A"}, day.Add(time.Hour))
	require.NoError(t, err)

	e.UserNote = capture.String("rewritten")
	e.IsProcessed = false
	require.NoError(t, SaveCapture(ctx, db, e))

	got, err = GetCapture(ctx, db, "01A")
	require.NoError(t, err)
	assert.Equal(t, "edited", *got.UserNote)
	assert.True(t, got.IsProcessed, "save never unsets processed")
}

func TestSaveCapture_ResaveKeepsUserNote(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := newTestEntry("01A", day)
	e.UserNote = capture.String("headache")
	e.UserMood = capture.String("tired")
	require.NoError(t, SaveCapture(ctx, db, e))

	resave := newTestEntry("01A", day)
	resave.Health = &capture.HealthData{Steps: capture.Int(1200)}
	require.NoError(t, SaveCapture(ctx, db, resave))

	got, err := GetCapture(ctx, db, "01A")
	require.NoError(t, err)
	require.NotNil(t, got.UserNote)
	assert.Equal(t, "headache", *got.UserNote)
	require.NotNil(t, got.UserMood)
	assert.Equal(t, "tired", *got.UserMood)
	require.NotNil(t, got.Health)
	assert.Equal(t, 1200, *got.Health.Steps)
}

func TestSaveCapture_EmptyListsAreNotNull(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := newTestEntry("01A", day)
	e.Tags = []string{}
	e.Errors = []string{}
	require.NoError(t, SaveCapture(ctx, db, e))
	require.NoError(t, SaveCapture(ctx, db, newTestEntry("01B", day)))

	got, err := GetCapture(ctx, db, "01A")
	require.NoError(t, err)
	require.NotNil(t, got.Tags)
	assert.Empty(t, got.Tags)
	require.NotNil(t, got.Errors)
	assert.Empty(t, got.Errors)

	got, err = GetCapture(ctx, db, "01B")
	require.NoError(t, err)
	assert.Nil(t, got.Tags)
	assert.Nil(t, got.Errors)
}

func TestGetCapture_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetCapture(context.Background(), db, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListCaptures_NewestFirstWithFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"01A", "01B", "01C"} {
		require.NoError(t, SaveCapture(ctx, db, newTestEntry(id, day.Add(time.Duration(i)*time.Hour))))
	}
	_, err := MarkProcessed(ctx, db, []string{"01B"}, day)
	require.NoError(t, err)

	all, err := ListCaptures(ctx, db, CaptureFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "01C", all[0].ID)
	assert.Equal(t, "01A", all[2].ID)

	unprocessed := false
	pending, err := ListCaptures(ctx, db, CaptureFilter{Processed: &unprocessed})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "01C", pending[0].ID)

	page, err := ListCaptures(ctx, db, CaptureFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "01B", page[0].ID)

	n, err := CountCaptures(ctx, db, &unprocessed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListInRange_OldestFirstHalfOpen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, SaveCapture(ctx, db, newTestEntry("late", day.Add(20*time.Hour))))
	require.NoError(t, SaveCapture(ctx, db, newTestEntry("early", day.Add(8*time.Hour))))
	require.NoError(t, SaveCapture(ctx, db, newTestEntry("next-day", day.Add(24*time.Hour))))
	_, err := MarkProcessed(ctx, db, []string{"late"}, day)
	require.NoError(t, err)

	got, err := ListCapturesInRange(ctx, db, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)
	assert.Equal(t, "late", got[1].ID)

	pending, err := ListUnprocessedInRange(ctx, db, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "early", pending[0].ID)
}

func TestMarkProcessed_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, SaveCapture(ctx, db, newTestEntry("01A", day)))
	require.NoError(t, SaveCapture(ctx, db, newTestEntry("01B", day.Add(time.Minute))))

	first := day.Add(time.Hour)
	n, err := MarkProcessed(ctx, db, []string{"01A", "01B"}, first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = MarkProcessed(ctx, db, []string{"01A", "01B", "missing"}, first.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := GetCapture(ctx, db, "01A")
	require.NoError(t, err)
	assert.True(t, got.IsProcessed)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, got.ProcessedAt.Equal(first), "processed_at is set once")

	n, err = MarkProcessed(ctx, db, nil, first)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteCapture(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, SaveCapture(ctx, db, newTestEntry("01A", day)))
	require.NoError(t, DeleteCapture(ctx, db, "01A"))

	_, err := GetCapture(ctx, db, "01A")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.True(t, errors.Is(DeleteCapture(ctx, db, "01A"), errors.ErrNotFound))
}

func TestSetAIMetadata_WritesOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, SaveCapture(ctx, db, newTestEntry("01A", day)))
	require.NoError(t, SaveCapture(ctx, db, newTestEntry("01B", day.Add(time.Minute))))
	_, err := MarkProcessed(ctx, db, []string{"01A"}, day)
	require.NoError(t, err)

	ids, err := ListUnannotatedIDs(ctx, db, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"01A", "01B"}, ids)

	meta := &capture.AIMetadata{Summary: "quiet morning", Tags: []string{"rest"}, GeneratedAt: day}
	ok, err := SetAIMetadata(ctx, db, "01A", meta)
	require.NoError(t, err)
	assert.True(t, ok, "processed captures still accept metadata")

	ok, err = SetAIMetadata(ctx, db, "01A", &capture.AIMetadata{Summary: "second"})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := GetCapture(ctx, db, "01A")
	require.NoError(t, err)
	require.NotNil(t, got.AIMetadata)
	assert.Equal(t, "quiet morning", got.AIMetadata.Summary)

	ids, err = ListUnannotatedIDs(ctx, db, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"01B"}, ids)
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := GetSetting(ctx, db, "ai_mode")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetSetting(ctx, db, "ai_mode", "local"))
	require.NoError(t, SetSetting(ctx, db, "ai_mode", "remote"))

	v, ok, err := GetSetting(ctx, db, "ai_mode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "remote", v)
}

func TestIncrementCounter_Concurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n, err := GetCounter(ctx, db, "bg_capture_success_count")
	require.NoError(t, err)
	assert.Zero(t, n)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := IncrementCounter(ctx, db, "bg_capture_success_count")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err = GetCounter(ctx, db, "bg_capture_success_count")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}
