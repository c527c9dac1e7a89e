// Package engine constructs the process-wide services once and hands them to
// the CLI, MCP and web surfaces.
package engine

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/annotate"
	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/config"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/inference"
	"github.com/hpungsan/bodypress/internal/journal"
	"github.com/hpungsan/bodypress/internal/notify"
	"github.com/hpungsan/bodypress/internal/schedule"
	"github.com/hpungsan/bodypress/internal/sources"
)

// Options overrides parts of the wiring. Zero values build everything from config.
type Options struct {
	Location *time.Location
	Now      func() time.Time

	// Sources replaces the adapters built from config.
	Sources *collect.Sources
	// Local and Remote replace the inference backends built from config.
	Local  inference.Backend
	Remote inference.Backend
	// Runtime replaces the Ollama runtime behind the local lifecycle.
	Runtime inference.Runtime
	// Platform replaces the in-process platform.
	Platform schedule.Platform
	Notifier notify.Notifier
}

// Engine holds one instance of every service.
type Engine struct {
	BaseDir  string
	Config   *config.Config
	DB       *sql.DB
	Location *time.Location

	Router      *inference.Router
	Lifecycle   *inference.Lifecycle
	Collector   *collect.Collector
	Scheduler   *schedule.Scheduler
	Platform    schedule.Platform
	Synthesizer *journal.Synthesizer
	Annotator   *annotate.Annotator
	Queue       *annotate.Queue
	Notifier    notify.Notifier

	// LifecycleMu serializes local model lifecycle operations across surfaces.
	LifecycleMu sync.Mutex

	local *schedule.LocalPlatform
	now   func() time.Time
}

// New opens the store under baseDir and wires every service.
func New(ctx context.Context, baseDir string, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	e := &Engine{
		BaseDir:  baseDir,
		Config:   cfg,
		DB:       database,
		Location: opts.Location,
		now:      opts.Now,
	}

	src := BuildSources(cfg, opts.Location)
	if opts.Sources != nil {
		src = *opts.Sources
	}
	e.Collector = collect.New(src, collect.Options{
		SourceTimeout:      cfg.SourceTimeout(),
		EnvironmentTimeout: cfg.EnvironmentTimeout(),
		Now:                opts.Now,
	})

	e.wireInference(cfg, opts)
	if _, err := e.Router.LoadMode(ctx); err != nil {
		log.Warn().Err(err).Msg("could not restore inference mode")
	}
	if e.Router.Mode() == inference.ModeLocal && e.Lifecycle != nil {
		e.RestoreLocalModel(ctx)
	}

	e.Notifier = opts.Notifier
	if e.Notifier == nil {
		e.Notifier = notify.Log{}
	}

	e.Annotator = annotate.New(database, e.Router, opts.Location)
	e.Queue = annotate.NewQueue(e.Annotator, cfg.AnnotateQueueSize)

	e.Synthesizer = journal.New(database, e.Router, e.Collector, journal.Options{
		Location: opts.Location,
		Now:      opts.Now,
	})

	e.Platform = opts.Platform
	if e.Platform == nil {
		battery := &sources.SysfsBattery{Dir: cfg.BatteryPath}
		probe := &sources.NetworkProbe{Endpoint: cfg.WeatherBaseURL}
		e.local = schedule.NewLocalPlatform(schedule.LocalOptions{
			MaxRetryAttempts: cfg.MaxRetryAttempts,
			BackoffMax:       cfg.BackoffMax(),
			NetworkAvailable: probe.Available,
			BatteryLow:       battery.Low,
		})
		e.Platform = e.local
	}
	e.Scheduler = schedule.New(database, e.Collector, e.Platform, e.Notifier, e.Queue, schedule.Options{
		MinInterval: cfg.PlatformMinInterval(),
		RunBudget:   cfg.RunBudget(),
		BackoffBase: cfg.BackoffBase(),
		Location:    opts.Location,
		Now:         opts.Now,
	})
	if e.local != nil {
		e.local.SetRunner(e.Scheduler.Handle)
	}
	return e, nil
}

func (e *Engine) wireInference(cfg *config.Config, opts Options) {
	remote := opts.Remote
	if remote == nil && cfg.RemoteBaseURL != "" {
		remote = inference.NewRemoteBackend(inference.RemoteOptions{
			BaseURL: cfg.RemoteBaseURL,
			Model:   cfg.RemoteModel,
			APIKey:  cfg.RemoteAPIKey(),
		})
	}

	local := opts.Local
	if local == nil && cfg.LocalRuntimeURL != "" {
		rt := opts.Runtime
		if rt == nil {
			rt = inference.NewOllamaRuntime(cfg.LocalRuntimeURL, nil)
		}
		e.Lifecycle = inference.NewLifecycle(rt, cfg.LocalModel)
		local = inference.NewLocalBackend(rt, e.Lifecycle)
	}

	e.Router = inference.NewRouter(e.DB, inference.RouterOptions{
		Local:     local,
		Remote:    remote,
		Lifecycle: e.Lifecycle,
		Timeout:   cfg.InferenceTimeout(),
	})
}

// BuildSources creates the source adapters described by cfg. Sources without
// configuration stay nil and are reported unavailable by the collector.
func BuildSources(cfg *config.Config, loc *time.Location) collect.Sources {
	var src collect.Sources
	if cfg.HealthFile != "" {
		src.Health = &sources.HealthFile{Path: cfg.HealthFile, MaxAge: cfg.SourceMaxAge()}
	}
	if cfg.CalendarFile != "" {
		src.Calendar = &sources.CalendarFile{Path: cfg.CalendarFile, MaxAge: cfg.SourceMaxAge(), Location: loc}
	}
	if cfg.HomeLatitude != nil && cfg.HomeLongitude != nil {
		src.Location = &sources.StaticLocation{
			Latitude:  *cfg.HomeLatitude,
			Longitude: *cfg.HomeLongitude,
			Place:     cfg.HomePlace,
		}
	}
	if cfg.WeatherBaseURL != "" || cfg.AirQualityBaseURL != "" {
		src.Environment = sources.NewOpenMeteo(
			sources.WithWeatherURL(cfg.WeatherBaseURL),
			sources.WithAirQualityURL(cfg.AirQualityBaseURL),
		)
	}
	src.Battery = &sources.SysfsBattery{Dir: cfg.BatteryPath}
	return src
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// Today is the current journal date.
func (e *Engine) Today() string { return e.Synthesizer.Today() }

// ExportsDir is where exports land unless another allowed path is given.
func (e *Engine) ExportsDir() string { return filepath.Join(e.BaseDir, "exports") }

// Resume re-registers periodic work for an enabled configuration. The
// in-process platform forgets registrations when the process exits.
func (e *Engine) Resume(ctx context.Context) error {
	cfg, err := e.Scheduler.Config(ctx)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return nil
	}
	_, err = e.Scheduler.UpdateConfig(ctx, cfg)
	return err
}

// RestoreLocalModel probes the runtime and, when the model is on disk but no
// longer resident while the last lifecycle action left it active, loads it
// again. Failures leave the probed state in place.
func (e *Engine) RestoreLocalModel(ctx context.Context) inference.LifecycleState {
	if e.Lifecycle == nil {
		return inference.LifecycleState{}
	}
	e.LifecycleMu.Lock()
	defer e.LifecycleMu.Unlock()

	st := e.Lifecycle.Resolve(ctx)
	if st.Status != inference.StatusDownloaded {
		return st
	}
	active, ok, err := db.GetSetting(ctx, e.DB, inference.ActiveModelKey)
	if err != nil || !ok || active != "true" {
		return st
	}
	if err := e.Lifecycle.Activate(ctx); err != nil {
		log.Warn().Err(err).Str("model", st.ModelRef).Msg("could not reload active local model")
	}
	return e.Lifecycle.State()
}

// RememberModelActive records whether the local model should be loaded by
// later processes.
func (e *Engine) RememberModelActive(ctx context.Context, active bool) error {
	value := "false"
	if active {
		value = "true"
	}
	return db.SetSetting(ctx, e.DB, inference.ActiveModelKey, value)
}

// Close stops background work, drains the annotation queue, releases the
// backends and closes the store. A loaded local model stays resident.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.local != nil {
		e.local.Close()
	}
	if err := e.Queue.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain annotation queue: %w", err))
	}
	if err := e.Router.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}
