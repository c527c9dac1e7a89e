package schedule

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/notify"
)

func tod(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func clock(h, m int) time.Time {
	return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC)
}

func TestInQuietHours_Wraparound(t *testing.T) {
	start, end := tod("22:00"), tod("07:00")

	cases := []struct {
		h, m int
		want bool
	}{
		{23, 0, true},
		{22, 0, true},
		{0, 30, true},
		{6, 59, true},
		{7, 0, false},
		{12, 0, false},
		{21, 59, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, InQuietHours(clock(c.h, c.m), start, end), "%02d:%02d", c.h, c.m)
	}
}

func TestInQuietHours_SameDayAndEmpty(t *testing.T) {
	assert.True(t, InQuietHours(clock(13, 30), tod("13:00"), tod("14:00")))
	assert.False(t, InQuietHours(clock(14, 0), tod("13:00"), tod("14:00")))
	assert.False(t, InQuietHours(clock(3, 0), tod("00:00"), tod("00:00")))
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("07:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, got)
	assert.Equal(t, "07:05", got.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestBackoffDelay(t *testing.T) {
	base, ceiling := 15*time.Minute, 300*time.Minute

	assert.Equal(t, 15*time.Minute, BackoffDelay(BackoffExponential, base, 1, ceiling))
	assert.Equal(t, 30*time.Minute, BackoffDelay(BackoffExponential, base, 2, ceiling))
	assert.Equal(t, 120*time.Minute, BackoffDelay(BackoffExponential, base, 4, ceiling))
	assert.Equal(t, ceiling, BackoffDelay(BackoffExponential, base, 6, ceiling))
	assert.Equal(t, ceiling, BackoffDelay(BackoffExponential, base, 60, ceiling))
	assert.Equal(t, 45*time.Minute, BackoffDelay(BackoffLinear, base, 3, ceiling))
}

// fakePlatform records registrations.
type fakePlatform struct {
	mu        sync.Mutex
	periodic  map[string]PeriodicRequest
	oneOff    []OneOffRequest
	cancelled []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{periodic: map[string]PeriodicRequest{}}
}

func (f *fakePlatform) RegisterPeriodic(_ context.Context, req PeriodicRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periodic[req.Tag] = req
	return nil
}

func (f *fakePlatform) RegisterOneOff(_ context.Context, req OneOffRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oneOff = append(f.oneOff, req)
	return nil
}

func (f *fakePlatform) Cancel(_ context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.periodic, tag)
	f.cancelled = append(f.cancelled, tag)
	return nil
}

// collectorFunc adapts a function to Collector.
type collectorFunc func(ctx context.Context, req collect.Request) *capture.Entry

func (f collectorFunc) Collect(ctx context.Context, req collect.Request) *capture.Entry {
	return f(ctx, req)
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *fakeQueue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true
}

type SchedulerSuite struct {
	suite.Suite
	db       *sql.DB
	ctx      context.Context
	platform *fakePlatform
	notes    *notify.Recorder
	queue    *fakeQueue
	now      time.Time
	seq      atomic.Int32
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	database, err := db.Init(s.T().TempDir())
	s.Require().NoError(err)
	s.db = database
	s.ctx = context.Background()
	s.platform = newFakePlatform()
	s.notes = &notify.Recorder{}
	s.queue = &fakeQueue{}
	s.now = clock(12, 0)
	s.seq.Store(0)
}

func (s *SchedulerSuite) TearDownTest() {
	s.db.Close()
}

func (s *SchedulerSuite) healthyCollector() Collector {
	return collectorFunc(func(_ context.Context, req collect.Request) *capture.Entry {
		n := s.seq.Add(1)
		return &capture.Entry{
			ID:        "cap-" + string(rune('a'+n)),
			Timestamp: s.now,
			Source:    req.Source,
			Trigger:   req.Trigger,
			Health:    &capture.HealthData{Steps: capture.Int(1200)},
		}
	})
}

func (s *SchedulerSuite) newScheduler(c Collector, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return s.now }
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return New(s.db, c, s.platform, s.notes, s.queue, opts)
}

func (s *SchedulerSuite) enable(sch *Scheduler) {
	_, err := sch.Enable(s.ctx)
	s.Require().NoError(err)
}

func (s *SchedulerSuite) TestIntervalClampedOnWriteAndRead() {
	sch := s.newScheduler(s.healthyCollector(), Options{})

	cfg := DefaultConfig()
	cfg.IntervalMinutes = 5
	saved, err := sch.UpdateConfig(s.ctx, cfg)
	s.Require().NoError(err)
	s.Equal(15, saved.IntervalMinutes)

	// A blob written by an older build below the floor is clamped on read.
	s.Require().NoError(db.SetSetting(s.ctx, s.db, ConfigKey, `{"enabled":false,"interval_minutes":1}`))
	got, err := sch.Config(s.ctx)
	s.Require().NoError(err)
	s.Equal(15, got.IntervalMinutes)
	s.Equal(tod("22:00"), got.QuietHoursStart, "missing keys keep defaults")
}

func (s *SchedulerSuite) TestEnableRegistersPeriodicWork() {
	sch := s.newScheduler(s.healthyCollector(), Options{BackoffBase: 10 * time.Minute})
	s.enable(sch)

	req, ok := s.platform.periodic[PeriodicTag]
	s.Require().True(ok)
	s.Equal(60*time.Minute, req.Interval)
	s.True(req.Constraints.Network)
	s.True(req.Constraints.BatteryNotLow)
	s.Equal(BackoffExponential, req.Backoff.Policy)
	s.Equal(10*time.Minute, req.Backoff.BaseDelay)

	cfg, err := sch.Config(s.ctx)
	s.Require().NoError(err)
	cfg.IntervalMinutes = 30
	cfg.BatteryOptimization = false
	_, err = sch.UpdateConfig(s.ctx, cfg)
	s.Require().NoError(err)
	req = s.platform.periodic[PeriodicTag]
	s.Equal(30*time.Minute, req.Interval)
	s.False(req.Constraints.BatteryNotLow)

	_, err = sch.Disable(s.ctx)
	s.Require().NoError(err)
	_, err = sch.Disable(s.ctx)
	s.Require().NoError(err)
	s.NotContains(s.platform.periodic, PeriodicTag)
	s.GreaterOrEqual(len(s.platform.cancelled), 4)
}

func (s *SchedulerSuite) TestTriggerNow() {
	sch := s.newScheduler(s.healthyCollector(), Options{})
	s.Require().NoError(sch.TriggerNow(s.ctx))
	s.Require().Len(s.platform.oneOff, 1)
	s.Equal(OneOffTag, s.platform.oneOff[0].Tag)
}

func (s *SchedulerSuite) TestRunSkipsWhenDisabled() {
	sch := s.newScheduler(s.healthyCollector(), Options{})

	out := sch.Run(s.ctx, capture.SourceBackgroundScheduled)
	s.Equal(ResultSuccess, out.Result)
	s.True(out.Skipped)
	s.Equal("disabled", out.Reason)
	s.Zero(s.seq.Load())
}

func (s *SchedulerSuite) TestRunSkipsInQuietHours() {
	s.now = clock(23, 30)
	sch := s.newScheduler(s.healthyCollector(), Options{})
	s.enable(sch)

	out := sch.Run(s.ctx, capture.SourceBackgroundScheduled)
	s.True(out.Skipped)
	s.Equal("quiet hours", out.Reason)

	n, err := db.CountCaptures(s.ctx, s.db, nil)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *SchedulerSuite) TestRunSuccess() {
	sch := s.newScheduler(s.healthyCollector(), Options{})
	s.enable(sch)

	out := sch.Run(s.ctx, capture.SourceBackgroundScheduled)
	s.Equal(ResultSuccess, out.Result)
	s.False(out.Skipped)
	s.Require().NotEmpty(out.CaptureID)

	e, err := db.GetCapture(s.ctx, s.db, out.CaptureID)
	s.Require().NoError(err)
	s.Equal(capture.SourceBackgroundScheduled, e.Source)
	s.Require().NotNil(e.Trigger)
	s.Equal(capture.TriggerTime, *e.Trigger)
	s.False(e.IsProcessed)

	st, err := sch.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), st.SuccessCount)
	s.Zero(st.FailureCount)
	s.Require().NotNil(st.LastCapture)
	s.True(st.LastCapture.Equal(s.now))

	completed := s.notes.Completed()
	s.Require().Len(completed, 1)
	s.Equal([]string{"health"}, completed[0].Sources)
	s.Equal([]string{out.CaptureID}, s.queue.ids)
}

func (s *SchedulerSuite) TestRunRespectsNotificationToggle() {
	sch := s.newScheduler(s.healthyCollector(), Options{})
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.NotificationsEnabled = false
	_, err := sch.UpdateConfig(s.ctx, cfg)
	s.Require().NoError(err)

	out := sch.Run(s.ctx, capture.SourceBackgroundScheduled)
	s.Equal(ResultSuccess, out.Result)
	s.Empty(s.notes.Completed())
}

func (s *SchedulerSuite) TestRunBudgetExceededPersistsPartial() {
	slow := collectorFunc(func(ctx context.Context, req collect.Request) *capture.Entry {
		<-ctx.Done()
		return &capture.Entry{ID: "partial", Timestamp: s.now, Source: req.Source,
			Health: &capture.HealthData{Steps: capture.Int(10)}}
	})
	sch := s.newScheduler(slow, Options{RunBudget: 20 * time.Millisecond})
	s.enable(sch)

	out := sch.Run(s.ctx, capture.SourceBackgroundScheduled)
	s.Equal(ResultRetry, out.Result)
	s.Equal("partial", out.CaptureID)

	e, err := db.GetCapture(s.ctx, s.db, "partial")
	s.Require().NoError(err)
	s.NotNil(e.Health)
	s.Contains(e.Errors[len(e.Errors)-1], "budget exceeded")

	st, err := sch.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), st.FailureCount)
	s.Zero(st.SuccessCount)
	s.Len(s.notes.Errors(), 1)
}

func (s *SchedulerSuite) TestRunPersistFailureRetries() {
	breaking := collectorFunc(func(ctx context.Context, req collect.Request) *capture.Entry {
		_, err := s.db.ExecContext(ctx, "DROP TABLE captures")
		s.Require().NoError(err)
		return &capture.Entry{ID: "lost", Timestamp: s.now, Source: req.Source}
	})
	sch := s.newScheduler(breaking, Options{})
	s.enable(sch)

	out := sch.Run(s.ctx, capture.SourceBackgroundScheduled)
	s.Equal(ResultRetry, out.Result)
	s.Equal("persist failed", out.Reason)

	n, err := db.GetCounter(s.ctx, s.db, FailureCountKey)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	s.Len(s.notes.Errors(), 1)
	s.Empty(s.queue.ids)
}

func (s *SchedulerSuite) TestConcurrentRunIsCoalesced() {
	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := collectorFunc(func(_ context.Context, req collect.Request) *capture.Entry {
		close(entered)
		<-release
		return &capture.Entry{ID: "only", Timestamp: s.now, Source: req.Source}
	})
	sch := s.newScheduler(blocking, Options{})
	s.enable(sch)

	first := make(chan Outcome, 1)
	go func() { first <- sch.Run(s.ctx, capture.SourceBackgroundScheduled) }()
	<-entered

	second := sch.Run(s.ctx, capture.SourceBackgroundTriggered)
	s.True(second.Skipped)
	s.Equal(ResultSuccess, second.Result)

	close(release)
	s.Equal(ResultSuccess, (<-first).Result)
}

func (s *SchedulerSuite) TestHandleMapsTagToSource() {
	sch := s.newScheduler(s.healthyCollector(), Options{})
	s.enable(sch)

	s.Equal(ResultSuccess, sch.Handle(s.ctx, OneOffTag, 0))
	list, err := db.ListCaptures(s.ctx, s.db, db.CaptureFilter{})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(capture.SourceBackgroundTriggered, list[0].Source)
}
