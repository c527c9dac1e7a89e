package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/notify"
)

// Collector produces a capture entry; *collect.Collector satisfies it.
type Collector interface {
	Collect(ctx context.Context, req collect.Request) *capture.Entry
}

// Enqueuer accepts capture ids for background annotation.
type Enqueuer interface {
	Enqueue(id string) bool
}

// Options configures a Scheduler.
type Options struct {
	// MinInterval is the platform floor for the capture interval. Default: 15 minutes.
	MinInterval time.Duration
	// RunBudget bounds one run; it must stay below the platform's own limit. Default: 25s.
	RunBudget time.Duration
	// BackoffBase is the first retry delay. Default: 15 minutes.
	BackoffBase time.Duration
	// PersistTimeout bounds writes made after the run budget expired. Default: 5s.
	PersistTimeout time.Duration
	// Location is used for quiet hours. Default: time.Local.
	Location *time.Location
	Now      func() time.Time
}

func (o *Options) defaults() {
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.RunBudget <= 0 {
		o.RunBudget = 25 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 15 * time.Minute
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Scheduler owns background capture: configuration, platform registration,
// and the per-run eligibility and bookkeeping.
//
// It holds no state between runs besides the coalescing flag; everything
// else is re-read from the store on each call.
type Scheduler struct {
	db        *sql.DB
	collector Collector
	platform  Platform
	notifier  notify.Notifier
	annotator Enqueuer
	opts      Options

	running atomic.Bool
}

// New creates a Scheduler. notifier and annotator may be nil.
func New(database *sql.DB, collector Collector, platform Platform, notifier notify.Notifier, annotator Enqueuer, opts Options) *Scheduler {
	opts.defaults()
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Scheduler{
		db:        database,
		collector: collector,
		platform:  platform,
		notifier:  notifier,
		annotator: annotator,
		opts:      opts,
	}
}

// Config returns the current configuration.
func (s *Scheduler) Config(ctx context.Context) (Config, error) {
	return LoadConfig(ctx, s.db, s.opts.MinInterval)
}

// Enable turns background capture on and registers periodic work.
func (s *Scheduler) Enable(ctx context.Context) (Config, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg.Enabled = true
	return s.UpdateConfig(ctx, cfg)
}

// Disable turns background capture off. Cancellation runs unconditionally,
// so calling Disable on an already disabled scheduler is harmless.
func (s *Scheduler) Disable(ctx context.Context) (Config, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg.Enabled = false
	return s.UpdateConfig(ctx, cfg)
}

// UpdateConfig persists cfg and brings platform registration in line with it.
func (s *Scheduler) UpdateConfig(ctx context.Context, cfg Config) (Config, error) {
	saved, err := SaveConfig(ctx, s.db, cfg, s.opts.MinInterval)
	if err != nil {
		return Config{}, err
	}

	if err := s.platform.Cancel(ctx, PeriodicTag); err != nil {
		return saved, fmt.Errorf("cancel periodic capture: %w", err)
	}
	if !saved.Enabled {
		log.Info().Msg("background capture disabled")
		return saved, nil
	}

	req := PeriodicRequest{
		Tag:         PeriodicTag,
		Interval:    saved.Interval(),
		Constraints: s.constraints(saved),
		Backoff:     Backoff{Policy: BackoffExponential, BaseDelay: s.opts.BackoffBase},
	}
	if err := s.platform.RegisterPeriodic(ctx, req); err != nil {
		return saved, fmt.Errorf("register periodic capture: %w", err)
	}
	log.Info().Int("interval_minutes", saved.IntervalMinutes).Msg("background capture scheduled")
	return saved, nil
}

// TriggerNow asks the platform for an immediate one-off background capture.
// Eligibility (enabled, quiet hours) is still checked when it runs.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	cfg, err := s.Config(ctx)
	if err != nil {
		return err
	}
	return s.platform.RegisterOneOff(ctx, OneOffRequest{
		Tag:         OneOffTag,
		Constraints: s.constraints(cfg),
		Backoff:     Backoff{Policy: BackoffExponential, BaseDelay: s.opts.BackoffBase},
	})
}

func (s *Scheduler) constraints(cfg Config) Constraints {
	return Constraints{Network: true, BatteryNotLow: cfg.BatteryOptimization}
}

// Outcome describes one run.
type Outcome struct {
	Result    Result `json:"result"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CaptureID string `json:"capture_id,omitempty"`
}

// Handle adapts Run to the platform callback shape.
func (s *Scheduler) Handle(ctx context.Context, tag string, attempt int) Result {
	source := capture.SourceBackgroundScheduled
	if tag == OneOffTag {
		source = capture.SourceBackgroundTriggered
	}
	out := s.Run(ctx, source)
	log.Debug().Str("tag", tag).Int("attempt", attempt).Str("result", string(out.Result)).
		Str("reason", out.Reason).Msg("background run finished")
	return out.Result
}

// Run performs one background capture if the configuration allows it.
//
// Side effects are committed as they happen: a capture that was persisted
// stays persisted even if a later step fails or the budget runs out.
func (s *Scheduler) Run(ctx context.Context, source capture.Source) Outcome {
	if !s.running.CompareAndSwap(false, true) {
		return Outcome{Result: ResultSuccess, Skipped: true, Reason: "run already in progress"}
	}
	defer s.running.Store(false)

	cfg, err := s.Config(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load background capture config")
		s.countFailure(ctx)
		return Outcome{Result: ResultRetry, Reason: "config unavailable"}
	}
	if !cfg.Enabled {
		return Outcome{Result: ResultSuccess, Skipped: true, Reason: "disabled"}
	}
	now := s.opts.Now().In(s.opts.Location)
	if InQuietHours(now, cfg.QuietHoursStart, cfg.QuietHoursEnd) {
		return Outcome{Result: ResultSuccess, Skipped: true, Reason: "quiet hours"}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunBudget)
	trigger := capture.TriggerTime
	if source == capture.SourceBackgroundTriggered {
		trigger = capture.TriggerManual
	}
	entry := s.collector.Collect(runCtx, collect.Request{Include: cfg.Include(), Source: source, Trigger: &trigger})
	budgetExceeded := runCtx.Err() != nil
	cancel()

	if budgetExceeded {
		entry.Errors = append(entry.Errors, "run: budget exceeded, capture is partial")
	}

	// Persist even when the run context is gone.
	persistCtx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PersistTimeout)
	defer pcancel()

	if err := db.SaveCapture(persistCtx, s.db, entry); err != nil {
		log.Error().Err(err).Str("capture_id", entry.ID).Msg("persist background capture")
		s.countFailure(persistCtx)
		if cfg.NotificationsEnabled {
			s.notifier.CaptureError(err)
		}
		return Outcome{Result: ResultRetry, Reason: "persist failed"}
	}

	if err := db.SetSetting(persistCtx, s.db, LastCaptureKey, entry.Timestamp.UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Msg("record last background capture")
	}
	if s.annotator != nil && !s.annotator.Enqueue(entry.ID) {
		log.Debug().Str("capture_id", entry.ID).Msg("annotation queue full, batch pass will pick it up")
	}

	if budgetExceeded {
		s.countFailure(persistCtx)
		if cfg.NotificationsEnabled {
			s.notifier.CaptureError(fmt.Errorf("capture %s exceeded its %s budget", entry.ID, s.opts.RunBudget))
		}
		return Outcome{Result: ResultRetry, Reason: "budget exceeded", CaptureID: entry.ID}
	}

	if _, err := db.IncrementCounter(persistCtx, s.db, SuccessCountKey); err != nil {
		log.Warn().Err(err).Msg("increment success counter")
	}
	if cfg.NotificationsEnabled {
		s.notifier.CaptureComplete(notify.CaptureEvent{
			CaptureID: entry.ID,
			Timestamp: entry.Timestamp,
			Source:    entry.Source,
			Sources:   entry.IncludedSources(),
			Errors:    entry.Errors,
		})
	}
	return Outcome{Result: ResultSuccess, CaptureID: entry.ID}
}

func (s *Scheduler) countFailure(ctx context.Context) {
	if _, err := db.IncrementCounter(context.WithoutCancel(ctx), s.db, FailureCountKey); err != nil {
		log.Warn().Err(err).Msg("increment failure counter")
	}
}

// Stats summarises background capture activity.
type Stats struct {
	Config       Config     `json:"config"`
	LastCapture  *time.Time `json:"last_capture,omitempty"`
	SuccessCount int64      `json:"success_count"`
	FailureCount int64      `json:"failure_count"`
	Running      bool       `json:"running"`
}

// Stats reads the scheduler counters.
func (s *Scheduler) Stats(ctx context.Context) (*Stats, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Config: cfg, Running: s.running.Load()}

	raw, ok, err := db.GetSetting(ctx, s.db, LastCaptureKey)
	if err != nil {
		return nil, err
	}
	if ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			st.LastCapture = &t
		}
	}
	if st.SuccessCount, err = db.GetCounter(ctx, s.db, SuccessCountKey); err != nil {
		return nil, err
	}
	if st.FailureCount, err = db.GetCounter(ctx, s.db, FailureCountKey); err != nil {
		return nil, err
	}
	return st, nil
}
