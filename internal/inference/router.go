package inference

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
)

// DefaultTimeout bounds every ChatComplete call.
const DefaultTimeout = 120 * time.Second

// RouterOptions wires a Router. Any backend may be nil; requests routed to a
// missing backend fail with BACKEND_NOT_REGISTERED.
type RouterOptions struct {
	Local     Backend
	Remote    Backend
	Lifecycle *Lifecycle
	Timeout   time.Duration
}

// Router delegates completions to the backend of the current mode.
// It never switches mode on its own.
type Router struct {
	db        *sql.DB
	lifecycle *Lifecycle
	timeout   time.Duration

	mu       sync.RWMutex
	mode     Mode
	backends map[Mode]Backend
}

// NewRouter creates a router in DefaultMode. Call LoadMode to restore the
// persisted mode.
func NewRouter(database *sql.DB, opts RouterOptions) *Router {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	backends := map[Mode]Backend{}
	if opts.Local != nil {
		backends[ModeLocal] = opts.Local
	}
	if opts.Remote != nil {
		backends[ModeRemote] = opts.Remote
	}
	return &Router{
		db:        database,
		lifecycle: opts.Lifecycle,
		timeout:   timeout,
		mode:      DefaultMode,
		backends:  backends,
	}
}

// LoadMode restores the persisted mode. Unknown values fall back to DefaultMode.
func (r *Router) LoadMode(ctx context.Context) (Mode, error) {
	raw, ok, err := db.GetSetting(ctx, r.db, SettingKey)
	if err != nil {
		return r.Mode(), err
	}
	mode := DefaultMode
	if ok && Mode(raw).Valid() {
		mode = Mode(raw)
	} else if ok {
		log.Warn().Str("ai_mode", raw).Msg("ignoring unknown persisted inference mode")
	}
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
	return mode, nil
}

// Mode returns the current mode.
func (r *Router) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Lifecycle returns the local model lifecycle, or nil when none is wired.
func (r *Router) Lifecycle() *Lifecycle { return r.lifecycle }

// SetMode persists and applies mode. Switching to local probes the model
// state so Status reflects it immediately.
func (r *Router) SetMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return errors.NewInvalidRequest("mode must be \"local\" or \"remote\"")
	}
	if err := db.SetSetting(ctx, r.db, SettingKey, string(mode)); err != nil {
		return err
	}
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()

	if mode == ModeLocal && r.lifecycle != nil {
		st := r.lifecycle.Resolve(ctx)
		log.Debug().Str("status", string(st.Status)).Msg("local model probed after mode switch")
	}
	return nil
}

func (r *Router) backend(mode Mode) Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[mode]
}

// ChatComplete sends messages to the current backend under the router timeout.
func (r *Router) ChatComplete(ctx context.Context, messages []Message, opts ...CallOption) (*Completion, error) {
	mode := r.Mode()
	b := r.backend(mode)
	if b == nil {
		return nil, errors.NewBackendNotRegistered(string(mode))
	}
	if mode == ModeLocal && r.lifecycle != nil {
		if st := r.lifecycle.State(); st.Status != StatusReady {
			return nil, errors.NewBackendNotReady(string(mode), string(st.Status))
		}
	}

	req := Request{Messages: messages}
	for _, opt := range opts {
		opt(&req)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		c   *Completion
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := b.Infer(callCtx, req)
		done <- result{c, err}
	}()

	// The select does not rely on the backend honouring ctx.
	select {
	case res := <-done:
		if res.err == nil {
			return res.c, nil
		}
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("inference")
		}
		if stderrors.Is(res.err, context.DeadlineExceeded) && callCtx.Err() != nil {
			return nil, errors.NewInferenceTimeout(string(mode), r.timeout)
		}
		if _, ok := errors.As(res.err); ok {
			return nil, res.err
		}
		return nil, errors.NewInferenceFailed(string(mode), res.err)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("inference")
		}
		log.Warn().Str("mode", string(mode)).Dur("timeout", r.timeout).Msg("inference timed out")
		return nil, errors.NewInferenceTimeout(string(mode), r.timeout)
	}
}

// CheckHealth reports whether the current backend is reachable.
func (r *Router) CheckHealth(ctx context.Context) bool {
	b := r.backend(r.Mode())
	if b == nil {
		return false
	}
	return b.IsAvailable(ctx)
}

// Status returns the user-facing configuration view.
func (r *Router) Status() Status {
	mode := r.Mode()
	st := Status{Mode: mode, Status: StatusNotDownloaded}
	if b := r.backend(mode); b != nil {
		st.Backend = b.Name()
	}
	if r.lifecycle != nil {
		ls := r.lifecycle.State()
		st.Status = ls.Status
		st.ModelRef = ls.ModelRef
		st.Progress = ls.Progress
		st.LastError = ls.LastError
	}
	return st
}

// Close disposes every backend.
func (r *Router) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, b := range r.backends {
		if err := b.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
