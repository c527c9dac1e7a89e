package inference

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/errors"
)

// LifecycleState is a snapshot of the local model state.
type LifecycleState struct {
	ModelRef  string      `json:"model_ref"`
	Status    ModelStatus `json:"status"`
	Progress  float64     `json:"progress"`
	LastError string      `json:"last_error,omitempty"`
}

// Lifecycle tracks the on-device model through
// not_downloaded -> downloading -> downloaded -> ready and back.
// Any failure moves it to error, from which Resolve or Download recover.
type Lifecycle struct {
	rt  Runtime
	ref string

	mu       sync.Mutex
	status   ModelStatus
	progress float64
	lastErr  string
}

// NewLifecycle creates a lifecycle for ref. The initial state is
// not_downloaded until Resolve probes the runtime.
func NewLifecycle(rt Runtime, ref string) *Lifecycle {
	return &Lifecycle{rt: rt, ref: ref, status: StatusNotDownloaded}
}

// ModelRef returns the managed model reference.
func (l *Lifecycle) ModelRef() string { return l.ref }

// State returns a snapshot of the current state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LifecycleState{ModelRef: l.ref, Status: l.status, Progress: l.progress, LastError: l.lastErr}
}

// Ready reports whether the model is loaded and can serve completions.
func (l *Lifecycle) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status == StatusReady
}

// Resolve re-derives the state from the runtime. A download in flight is left
// as it is. A model already resident in the runtime, including one loaded by
// another process, resolves to ready.
func (l *Lifecycle) Resolve(ctx context.Context) LifecycleState {
	l.mu.Lock()
	status := l.status
	l.mu.Unlock()
	if status == StatusDownloading {
		return l.State()
	}

	has, err := l.rt.HasModel(ctx, l.ref)
	switch {
	case err != nil:
		l.fail(err)
		return l.State()
	case !has:
		l.set(StatusNotDownloaded, 0)
		return l.State()
	}

	loaded, err := l.rt.Loaded(ctx, l.ref)
	switch {
	case err != nil:
		log.Debug().Err(err).Str("model", l.ref).Msg("could not list loaded models")
		l.set(StatusDownloaded, 1)
	case loaded:
		l.set(StatusReady, 1)
	default:
		l.set(StatusDownloaded, 1)
	}
	return l.State()
}

// Download pulls the model. Already downloaded or ready models are a no-op.
// progress, when non-nil, is called with values in [0,1].
func (l *Lifecycle) Download(ctx context.Context, progress func(float64)) error {
	l.mu.Lock()
	switch l.status {
	case StatusDownloading:
		l.mu.Unlock()
		return errors.NewLifecycleBusy("download")
	case StatusDownloaded, StatusReady:
		l.mu.Unlock()
		return nil
	}
	l.status = StatusDownloading
	l.progress = 0
	l.lastErr = ""
	l.mu.Unlock()

	log.Info().Str("model", l.ref).Msg("downloading model")
	err := l.rt.Pull(ctx, l.ref, func(p float64) {
		l.mu.Lock()
		l.progress = p
		l.mu.Unlock()
		if progress != nil {
			progress(p)
		}
	})
	if err != nil {
		l.fail(err)
		return errors.NewInferenceFailed(string(ModeLocal), err)
	}
	l.set(StatusDownloaded, 1)
	return nil
}

// Activate loads a downloaded model into memory.
func (l *Lifecycle) Activate(ctx context.Context) error {
	l.mu.Lock()
	status := l.status
	l.mu.Unlock()

	switch status {
	case StatusReady:
		return nil
	case StatusDownloading:
		return errors.NewLifecycleBusy("activate")
	case StatusDownloaded:
	default:
		return errors.NewModelNotDownloaded(l.ref, string(status))
	}

	if err := l.rt.Load(ctx, l.ref); err != nil {
		l.fail(err)
		return errors.NewInferenceFailed(string(ModeLocal), err)
	}
	l.set(StatusReady, 1)
	return nil
}

// Deactivate unloads a ready model; the weights stay on disk.
func (l *Lifecycle) Deactivate(ctx context.Context) error {
	l.mu.Lock()
	status := l.status
	l.mu.Unlock()

	switch status {
	case StatusDownloading:
		return errors.NewLifecycleBusy("deactivate")
	case StatusReady:
	default:
		return nil
	}

	if err := l.rt.Unload(ctx, l.ref); err != nil {
		l.fail(err)
		return errors.NewInferenceFailed(string(ModeLocal), err)
	}
	l.set(StatusDownloaded, 1)
	return nil
}

// Delete unloads and removes the model from disk.
func (l *Lifecycle) Delete(ctx context.Context) error {
	l.mu.Lock()
	status := l.status
	l.mu.Unlock()

	if status == StatusDownloading {
		return errors.NewLifecycleBusy("delete")
	}
	if status == StatusReady {
		if err := l.rt.Unload(ctx, l.ref); err != nil {
			log.Warn().Err(err).Str("model", l.ref).Msg("unload before delete failed")
		}
	}
	if err := l.rt.Remove(ctx, l.ref); err != nil {
		l.fail(err)
		return errors.NewInferenceFailed(string(ModeLocal), err)
	}
	l.set(StatusNotDownloaded, 0)
	return nil
}

func (l *Lifecycle) set(status ModelStatus, progress float64) {
	l.mu.Lock()
	l.status = status
	l.progress = progress
	l.lastErr = ""
	l.mu.Unlock()
}

func (l *Lifecycle) fail(err error) {
	log.Warn().Err(err).Str("model", l.ref).Msg("model lifecycle failure")
	l.mu.Lock()
	l.status = StatusError
	l.lastErr = err.Error()
	l.mu.Unlock()
}
