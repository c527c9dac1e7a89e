package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RunFunc executes one attempt of the work registered under tag.
// attempt is 0 for the first try of a slot and counts up on retries.
type RunFunc func(ctx context.Context, tag string, attempt int) Result

// LocalOptions configures a LocalPlatform.
type LocalOptions struct {
	// MaxRetryAttempts caps retries of one slot. Default: 5.
	MaxRetryAttempts int
	// BackoffMax caps the retry delay. Default: 5 hours.
	BackoffMax time.Duration
	// ConstraintPoll is how often unmet constraints are re-checked. Default: 1 minute.
	ConstraintPoll time.Duration
	// NetworkAvailable and BatteryLow probe constraints. Nil probes always pass.
	NetworkAvailable func(ctx context.Context) bool
	BatteryLow       func(ctx context.Context) bool
	// RunImmediately starts periodic work with a run instead of a wait.
	RunImmediately bool
}

func (o *LocalOptions) defaults() {
	if o.MaxRetryAttempts <= 0 {
		o.MaxRetryAttempts = 5
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Hour
	}
	if o.ConstraintPoll <= 0 {
		o.ConstraintPoll = time.Minute
	}
}

// LocalPlatform is an in-process Platform: one goroutine per tag, replaced
// on re-registration, stopped on Cancel or Close.
type LocalPlatform struct {
	opts LocalOptions

	mu     sync.Mutex
	run    RunFunc
	jobs   map[string]*localJob
	closed bool
	wg     sync.WaitGroup

	base   context.Context
	cancel context.CancelFunc
}

type localJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLocalPlatform creates a platform. Work only runs once SetRunner is called.
func NewLocalPlatform(opts LocalOptions) *LocalPlatform {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalPlatform{
		opts:   opts,
		jobs:   map[string]*localJob{},
		base:   ctx,
		cancel: cancel,
	}
}

// SetRunner installs the callback invoked for every registered tag.
func (p *LocalPlatform) SetRunner(run RunFunc) {
	p.mu.Lock()
	p.run = run
	p.mu.Unlock()
}

func (p *LocalPlatform) runner() RunFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run
}

// RegisterPeriodic starts (or replaces) repeating work.
func (p *LocalPlatform) RegisterPeriodic(_ context.Context, req PeriodicRequest) error {
	p.start(req.Tag, func(ctx context.Context) {
		if !p.opts.RunImmediately && !sleep(ctx, req.Interval) {
			return
		}
		for {
			p.runSlot(ctx, req.Tag, req.Constraints, req.Backoff)
			if !sleep(ctx, req.Interval) {
				return
			}
		}
	})
	log.Debug().Str("tag", req.Tag).Dur("interval", req.Interval).Msg("periodic work registered")
	return nil
}

// RegisterOneOff starts (or replaces) a single run.
func (p *LocalPlatform) RegisterOneOff(_ context.Context, req OneOffRequest) error {
	p.start(req.Tag, func(ctx context.Context) {
		p.runSlot(ctx, req.Tag, req.Constraints, req.Backoff)
	})
	return nil
}

// Cancel stops work under tag and waits for an in-flight attempt to return.
func (p *LocalPlatform) Cancel(_ context.Context, tag string) error {
	p.mu.Lock()
	job := p.jobs[tag]
	delete(p.jobs, tag)
	p.mu.Unlock()

	if job != nil {
		job.cancel()
		<-job.done
	}
	return nil
}

// Registered reports whether tag currently has work.
func (p *LocalPlatform) Registered(tag string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[tag]
	return ok
}

// Close cancels all work and waits for it to stop.
func (p *LocalPlatform) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

func (p *LocalPlatform) start(tag string, body func(ctx context.Context)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	old := p.jobs[tag]
	ctx, cancel := context.WithCancel(p.base)
	job := &localJob{cancel: cancel, done: make(chan struct{})}
	p.jobs[tag] = job
	p.wg.Add(1)
	p.mu.Unlock()

	if old != nil {
		old.cancel()
	}

	go func() {
		defer p.wg.Done()
		defer close(job.done)
		if old != nil {
			<-old.done
		}
		body(ctx)
		p.mu.Lock()
		if p.jobs[tag] == job {
			delete(p.jobs, tag)
		}
		p.mu.Unlock()
	}()
}

// runSlot runs one slot: waits for constraints, then retries with backoff
// until success, the attempt cap, or cancellation.
func (p *LocalPlatform) runSlot(ctx context.Context, tag string, c Constraints, b Backoff) {
	for attempt := 0; ; attempt++ {
		if !p.waitConstraints(ctx, tag, c) {
			return
		}
		run := p.runner()
		if run == nil {
			log.Warn().Str("tag", tag).Msg("no runner installed, dropping work")
			return
		}
		if run(ctx, tag, attempt) != ResultRetry {
			return
		}
		if attempt+1 > p.opts.MaxRetryAttempts {
			log.Warn().Str("tag", tag).Int("attempts", attempt+1).Msg("retry limit reached, waiting for next period")
			return
		}
		delay := BackoffDelay(b.Policy, b.BaseDelay, attempt+1, p.opts.BackoffMax)
		log.Debug().Str("tag", tag).Dur("delay", delay).Msg("retrying background work")
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (p *LocalPlatform) waitConstraints(ctx context.Context, tag string, c Constraints) bool {
	for {
		if p.constraintsMet(ctx, c) {
			return true
		}
		log.Debug().Str("tag", tag).Msg("constraints not met, deferring")
		if !sleep(ctx, p.opts.ConstraintPoll) {
			return false
		}
	}
}

func (p *LocalPlatform) constraintsMet(ctx context.Context, c Constraints) bool {
	if c.Network && p.opts.NetworkAvailable != nil && !p.opts.NetworkAvailable(ctx) {
		return false
	}
	if c.BatteryNotLow && p.opts.BatteryLow != nil && p.opts.BatteryLow(ctx) {
		return false
	}
	return true
}

// sleep waits for d or ctx; it reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
