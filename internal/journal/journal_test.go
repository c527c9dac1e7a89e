package journal

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/inference/inferencetest"
)

const testDate = "2026-03-14"

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

const aiAnswer = "```json\n{\"headline\":\"Long walk by the river\",\"summary\":\"A good day.\",\"body\":\"Walked a lot.\",\"tags\":[\"walk\"]}\n```"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func saveCapture(t *testing.T, database *sql.DB, id string, hour, steps int) {
	t.Helper()
	e := &capture.Entry{
		ID:        id,
		Timestamp: time.Date(2026, 3, 14, hour, 0, 0, 0, time.UTC),
		Source:    capture.SourceBackgroundScheduled,
		Health: &capture.HealthData{
			Steps:      capture.Int(steps),
			SleepHours: capture.Float(7.5),
			HeartRate:  capture.Float(65),
		},
	}
	require.NoError(t, db.SaveCapture(context.Background(), database, e))
}

func newSynth(database *sql.DB, router Completer, collector LiveCollector) *Synthesizer {
	return New(database, router, collector, Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
}

type liveCollector struct {
	entry *capture.Entry
	calls int
}

func (c *liveCollector) Collect(context.Context, collect.Request) *capture.Entry {
	c.calls++
	return c.entry
}

func TestSelectPath(t *testing.T) {
	assert.Equal(t, PathInstant, SelectPath(true, 0))
	assert.Equal(t, PathIncremental, SelectPath(true, 3))
	assert.Equal(t, PathColdStart, SelectPath(false, 0))
	assert.Equal(t, PathColdStart, SelectPath(false, 2))
}

func TestRuleCascade_Scenarios(t *testing.T) {
	at := time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	entry := func(sleep float64) *capture.Entry {
		return &capture.Entry{ID: "c", Timestamp: at, Health: &capture.HealthData{
			Steps:      capture.Int(9000),
			SleepHours: capture.Float(sleep),
			HeartRate:  capture.Float(65),
		}}
	}

	energised := capture.Aggregate(testDate, []*capture.Entry{entry(7.5)})
	assert.Equal(t, capture.MoodEnergised, RuleCascade{}.Mood(energised))

	// Short sleep wins over the high step count.
	tired := capture.Aggregate(testDate, []*capture.Entry{entry(4)})
	assert.Equal(t, capture.MoodTired, RuleCascade{}.Mood(tired))
}

func TestRuleCascade_Order(t *testing.T) {
	cases := []struct {
		name string
		snap capture.DaySnapshot
		want capture.Mood
	}{
		{"active", capture.DaySnapshot{Steps: capture.Int(12000)}, capture.MoodActive},
		{"cautious", capture.DaySnapshot{Steps: capture.Int(2000), AirQualityIndex: capture.Int(150)}, capture.MoodCautious},
		{"active before cautious", capture.DaySnapshot{Steps: capture.Int(12000), AirQualityIndex: capture.Int(150)}, capture.MoodActive},
		{"rested", capture.DaySnapshot{SleepHours: capture.Float(8)}, capture.MoodRested},
		{"rested when heart rate high", capture.DaySnapshot{SleepHours: capture.Float(8), Steps: capture.Int(8000), HeartRate: capture.Float(95)}, capture.MoodRested},
		{"quiet", capture.DaySnapshot{Steps: capture.Int(0), ActiveEnergyKcal: capture.Float(0)}, capture.MoodQuiet},
		{"zero steps without energy is calm", capture.DaySnapshot{Steps: capture.Int(0)}, capture.MoodCalm},
		{"nothing reported", capture.DaySnapshot{}, capture.MoodCalm},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, RuleCascade{}.Mood(&c.snap))
		})
	}
}

func TestCompose_MentionsOnlyReportedReadings(t *testing.T) {
	snap := &capture.DaySnapshot{Date: testDate, CaptureCount: 1, Steps: capture.Int(4200)}
	d := Compose(snap, capture.MoodCalm)

	assert.Equal(t, "4200 steps.", d.Summary)
	assert.Contains(t, d.Body, "Steps: 4200")
	assert.NotContains(t, d.Body, "Sleep")
	assert.NotContains(t, d.Body, "Surroundings")
	assert.Equal(t, []string{"calm"}, d.Tags)
}

func TestRefresh_ColdStartWithInference(t *testing.T) {
	database := openTestDB(t)
	saveCapture(t, database, "01A", 9, 3000)
	saveCapture(t, database, "01B", 14, 9000)

	stub := inferencetest.NewStub(aiAnswer)
	router := inferencetest.RemoteRouter(t, database, stub, time.Second)
	res, err := newSynth(database, router, nil).Refresh(context.Background(), testDate)
	require.NoError(t, err)

	assert.Equal(t, PathColdStart, res.Path)
	assert.Equal(t, 2, res.Consumed)
	assert.False(t, res.Fallback)
	assert.True(t, res.Entry.AIGenerated)
	assert.Equal(t, "Long walk by the river", res.Entry.Headline)
	assert.Equal(t, capture.MoodEnergised, res.Entry.Mood)
	assert.Equal(t, []string{"energised", "walk"}, res.Entry.Tags)
	assert.Equal(t, 2, res.Entry.CaptureCount)

	unprocessed := false
	n, err := db.CountCaptures(context.Background(), database, &unprocessed)
	require.NoError(t, err)
	assert.Zero(t, n)

	req := stub.Requests()[0]
	require.NotNil(t, req.Temperature)
	assert.Contains(t, req.Messages[1].Content, "steps: 9000")
}

func TestRefresh_InferenceFailureFallsBackToTemplate(t *testing.T) {
	database := openTestDB(t)
	saveCapture(t, database, "01A", 9, 3000)

	stub := inferencetest.NewStub("")
	stub.Err = stderrors.New("connection refused")
	router := inferencetest.RemoteRouter(t, database, stub, time.Second)
	res, err := newSynth(database, router, nil).Refresh(context.Background(), testDate)
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.False(t, res.Entry.AIGenerated)
	assert.Equal(t, headlines[capture.MoodRested], res.Entry.Headline)
	assert.Contains(t, res.Entry.Body, "Steps: 3000")
	assert.Equal(t, 1, res.Consumed)

	stored, err := db.GetJournal(context.Background(), database, testDate)
	require.NoError(t, err)
	assert.False(t, stored.AIGenerated)
}

func TestRefresh_TimeoutFallsBack(t *testing.T) {
	database := openTestDB(t)
	saveCapture(t, database, "01A", 9, 3000)

	stub := inferencetest.NewStub(aiAnswer)
	stub.Delay = time.Second
	router := inferencetest.RemoteRouter(t, database, stub, 20*time.Millisecond)
	res, err := newSynth(database, router, nil).Refresh(context.Background(), testDate)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.False(t, res.Entry.AIGenerated)
}

func TestRefresh_UnparseableCompletionFallsBack(t *testing.T) {
	database := openTestDB(t)
	saveCapture(t, database, "01A", 9, 3000)

	router := inferencetest.RemoteRouter(t, database, inferencetest.NewStub("Sure! Here is your entry."), time.Second)
	res, err := newSynth(database, router, nil).Refresh(context.Background(), testDate)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
}

func TestRefresh_InstantSkipsInference(t *testing.T) {
	database := openTestDB(t)
	saveCapture(t, database, "01A", 9, 3000)

	stub := inferencetest.NewStub(aiAnswer)
	s := newSynth(database, inferencetest.RemoteRouter(t, database, stub, time.Second), nil)
	_, err := s.Refresh(context.Background(), testDate)
	require.NoError(t, err)

	res, err := s.Refresh(context.Background(), testDate)
	require.NoError(t, err)
	assert.Equal(t, PathInstant, res.Path)
	assert.Zero(t, res.Consumed)
	assert.Equal(t, 1, stub.Calls())
}

func TestRefresh_IncrementalUsesOnlyNewCaptures(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	saveCapture(t, database, "01A", 9, 3000)

	stub := inferencetest.NewStub(aiAnswer)
	s := newSynth(database, inferencetest.RemoteRouter(t, database, stub, time.Second), nil)
	_, err := s.Refresh(ctx, testDate)
	require.NoError(t, err)

	note := "felt great"
	require.NoError(t, db.SetJournalNote(ctx, database, testDate, &note, nil, testNow))

	saveCapture(t, database, "01B", 15, 12000)
	res, err := s.Refresh(ctx, testDate)
	require.NoError(t, err)

	assert.Equal(t, PathIncremental, res.Path)
	assert.Equal(t, 1, res.Consumed)
	assert.Equal(t, 2, res.Entry.CaptureCount)
	require.NotNil(t, res.Entry.UserNote)
	assert.Equal(t, note, *res.Entry.UserNote)

	prompt := stub.Requests()[1].Messages[1].Content
	assert.Contains(t, prompt, "steps: 12000")
	assert.NotContains(t, prompt, "steps: 3000")
	assert.True(t, strings.Contains(prompt, "Long walk by the river"), "existing entry is context")

	processed := true
	n, err := db.CountCaptures(ctx, database, &processed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRefresh_IncrementalFailureKeepsGeneratedNarrative(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	saveCapture(t, database, "01A", 9, 3000)

	stub := inferencetest.NewStub(aiAnswer)
	s := newSynth(database, inferencetest.RemoteRouter(t, database, stub, time.Second), nil)
	first, err := s.Refresh(ctx, testDate)
	require.NoError(t, err)
	require.True(t, first.Entry.AIGenerated)
	assert.Equal(t, capture.MoodRested, first.Entry.Mood)

	stub.Err = stderrors.New("connection refused")
	saveCapture(t, database, "01B", 15, 12000)
	res, err := s.Refresh(ctx, testDate)
	require.NoError(t, err)

	assert.Equal(t, PathIncremental, res.Path)
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, res.Consumed)
	assert.True(t, res.Entry.AIGenerated)
	assert.Equal(t, "Long walk by the river", res.Entry.Headline)
	assert.Equal(t, "Walked a lot.", res.Entry.Body)
	assert.Equal(t, 2, res.Entry.CaptureCount)
	assert.NotEqual(t, capture.MoodRested, res.Entry.Mood)
	assert.Equal(t, []string{string(res.Entry.Mood), "walk"}, res.Entry.Tags)

	stored, err := db.GetJournal(ctx, database, testDate)
	require.NoError(t, err)
	assert.True(t, stored.AIGenerated)
	assert.Equal(t, "Long walk by the river", stored.Headline)

	// Inference recovers on the next update.
	stub.Err = nil
	saveCapture(t, database, "01C", 17, 13000)
	res, err = s.Refresh(ctx, testDate)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.True(t, res.Entry.AIGenerated)
	assert.Equal(t, 3, res.Entry.CaptureCount)
	assert.Equal(t, 3, stub.Calls())
}

func TestRefresh_NotEnoughData(t *testing.T) {
	database := openTestDB(t)

	_, err := newSynth(database, nil, nil).Refresh(context.Background(), testDate)
	assert.True(t, errors.Is(err, errors.ErrNotEnoughData))

	empty := &liveCollector{entry: &capture.Entry{ID: "live", Timestamp: testNow}}
	_, err = newSynth(database, nil, empty).Refresh(context.Background(), testDate)
	assert.True(t, errors.Is(err, errors.ErrNotEnoughData))
	assert.Equal(t, 1, empty.calls)
}

func TestRefresh_LiveSnapshotIsNotPersisted(t *testing.T) {
	database := openTestDB(t)
	live := &liveCollector{entry: &capture.Entry{
		ID:        "live",
		Timestamp: testNow,
		Health:    &capture.HealthData{Steps: capture.Int(500)},
	}}

	res, err := newSynth(database, nil, live).Refresh(context.Background(), testDate)
	require.NoError(t, err)
	assert.True(t, res.Live)
	assert.False(t, res.Entry.AIGenerated)
	assert.Equal(t, 1, res.Entry.CaptureCount)

	n, err := db.CountCaptures(context.Background(), database, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefresh_PastDayHasNoLiveReading(t *testing.T) {
	database := openTestDB(t)
	live := &liveCollector{entry: &capture.Entry{ID: "live", Timestamp: testNow,
		Health: &capture.HealthData{Steps: capture.Int(500)}}}

	_, err := newSynth(database, nil, live).Refresh(context.Background(), "2026-03-01")
	assert.True(t, errors.Is(err, errors.ErrNotEnoughData))
	assert.Zero(t, live.calls)
}

func TestRefresh_InvalidDate(t *testing.T) {
	database := openTestDB(t)
	_, err := newSynth(database, nil, nil).Refresh(context.Background(), "14/03/2026")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
