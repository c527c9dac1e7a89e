// Package collect assembles one capture entry from independent data sources.
package collect

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/bodypress/internal/capture"
)

// HealthReader reads the latest health metrics.
// Returning (nil, nil) means the source is unavailable.
type HealthReader interface {
	ReadHealth(ctx context.Context) (*capture.HealthData, error)
}

// LocationReader returns a single location fix.
type LocationReader interface {
	ReadLocation(ctx context.Context) (*capture.LocationData, error)
}

// CalendarReader lists event titles for the day containing day.
// A nil slice means unavailable; an empty slice means no events.
type CalendarReader interface {
	ReadEvents(ctx context.Context, day time.Time) ([]string, error)
}

// EnvironmentClient looks up ambient conditions for coordinates.
type EnvironmentClient interface {
	Lookup(ctx context.Context, lat, lon float64) (*capture.EnvironmentData, error)
}

// BatteryReader reports the battery charge percentage.
type BatteryReader interface {
	BatteryLevel(ctx context.Context) (*int, error)
}

// Sources bundles the adapters a Collector fans out to. Any may be nil.
type Sources struct {
	Health      HealthReader
	Location    LocationReader
	Calendar    CalendarReader
	Environment EnvironmentClient
	Battery     BatteryReader
}

// Include selects which sources a collection consults.
type Include struct {
	Health      bool `json:"health"`
	Environment bool `json:"environment"`
	Location    bool `json:"location"`
	Calendar    bool `json:"calendar"`
}

// IncludeAll consults every source.
func IncludeAll() Include {
	return Include{Health: true, Environment: true, Location: true, Calendar: true}
}

// Request describes one collection.
type Request struct {
	Include Include
	Source  capture.Source
	Trigger *capture.Trigger
}

// Options tunes a Collector.
type Options struct {
	SourceTimeout      time.Duration
	EnvironmentTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

const (
	DefaultSourceTimeout      = 5 * time.Second
	DefaultEnvironmentTimeout = 8 * time.Second
)

// Collector gathers a capture from its sources.
type Collector struct {
	src  Sources
	opts Options

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New creates a Collector. Zero option values take the defaults.
func New(src Sources, opts Options) *Collector {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.EnvironmentTimeout <= 0 {
		opts.EnvironmentTimeout = DefaultEnvironmentTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{
		src:     src,
		opts:    opts,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewID returns a new ULID string for t.
func (c *Collector) NewID(t time.Time) string {
	c.entropyMu.Lock()
	defer c.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), c.entropy).String()
}

// result slots, one per source; each goroutine writes only its own.
type results struct {
	health      *capture.HealthData
	healthErr   error
	location    *capture.LocationData
	locationErr error
	environment *capture.EnvironmentData
	envErr      error
	calendar    []string
	calendarErr error
	battery     *int
	batteryErr  error
}

// Collect runs every included source concurrently and returns an entry.
//
// It never fails: a source that errors, panics or exceeds its timeout leaves
// its field nil and appends a diagnostic to Entry.Errors. Cancelling ctx
// cancels the outstanding sources, and whatever finished is kept.
func (c *Collector) Collect(ctx context.Context, req Request) *capture.Entry {
	start := c.opts.Now()
	entry := &capture.Entry{
		ID:        c.NewID(start),
		Timestamp: start,
		Source:    req.Source,
		Trigger:   req.Trigger,
	}
	if entry.Source == "" {
		entry.Source = capture.SourceManual
	}

	var r results
	// errgroup is used for fan-out/fan-in only; source errors are captured
	// into results and never returned, so one failure cannot cancel siblings.
	var g errgroup.Group

	if req.Include.Health && c.src.Health != nil {
		g.Go(func() error {
			r.health, r.healthErr = run(ctx, c.opts.SourceTimeout, "health", c.src.Health.ReadHealth)
			return nil
		})
	}

	needLocation := req.Include.Location || req.Include.Environment
	if needLocation && c.src.Location != nil {
		g.Go(func() error {
			r.location, r.locationErr = run(ctx, c.opts.SourceTimeout, "location", c.src.Location.ReadLocation)
			if !req.Include.Environment || c.src.Environment == nil || r.location == nil {
				return nil
			}
			fix := r.location
			r.environment, r.envErr = run(ctx, c.opts.EnvironmentTimeout, "environment",
				func(ctx context.Context) (*capture.EnvironmentData, error) {
					return c.src.Environment.Lookup(ctx, fix.Latitude, fix.Longitude)
				})
			return nil
		})
	}

	if req.Include.Calendar && c.src.Calendar != nil {
		g.Go(func() error {
			r.calendar, r.calendarErr = run(ctx, c.opts.SourceTimeout, "calendar",
				func(ctx context.Context) ([]string, error) {
					return c.src.Calendar.ReadEvents(ctx, start)
				})
			return nil
		})
	}

	if c.src.Battery != nil {
		g.Go(func() error {
			r.battery, r.batteryErr = run(ctx, c.opts.SourceTimeout, "battery", c.src.Battery.BatteryLevel)
			return nil
		})
	}

	_ = g.Wait()

	entry.Health = r.health
	if req.Include.Location {
		entry.Location = r.location
	}
	entry.Environment = r.environment
	entry.CalendarEvents = r.calendar
	entry.BatteryLevel = r.battery

	// Diagnostics in fixed source order so output is deterministic.
	for _, d := range []struct {
		name string
		err  error
	}{
		{"health", r.healthErr},
		{"location", r.locationErr},
		{"environment", r.envErr},
		{"calendar", r.calendarErr},
		{"battery", r.batteryErr},
	} {
		if d.err != nil {
			entry.Errors = append(entry.Errors, fmt.Sprintf("%s: %v", d.name, d.err))
		}
	}

	dur := c.opts.Now().Sub(start)
	entry.ExecutionDuration = &dur

	if len(entry.Errors) > 0 {
		log.Debug().Str("capture_id", entry.ID).Strs("errors", entry.Errors).Msg("capture collected with source errors")
	}
	return entry
}

// run calls fn under its own deadline, converting panics and timeouts into errors.
func run[T any](parent context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero T
				log.Error().Str("source", name).Interface("panic", p).Msg("source panicked")
				done <- outcome{zero, fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			var zero T
			return zero, o.err
		}
		return o.v, nil
	case <-ctx.Done():
		var zero T
		if parent.Err() != nil {
			return zero, fmt.Errorf("cancelled: %w", parent.Err())
		}
		return zero, fmt.Errorf("timed out after %s", timeout)
	}
}
