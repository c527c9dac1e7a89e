// Package inferencetest provides a scripted inference backend for tests.
package inferencetest

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/bodypress/internal/inference"
)

// Stub is an inference.Backend that answers from a script.
//
// Respond, when set, computes each answer; otherwise Text is returned.
// Delay blocks before answering (ignoring ctx when IgnoreContext is set, to
// model a backend that does not honour cancellation).
type Stub struct {
	NameValue     string
	Text          string
	Err           error
	Delay         time.Duration
	IgnoreContext bool
	Available     bool
	Respond       func(req inference.Request) (string, error)

	mu       sync.Mutex
	requests []inference.Request
	loaded   string
	disposed bool
}

// NewStub returns an available stub answering text.
func NewStub(text string) *Stub {
	return &Stub{NameValue: "stub", Text: text, Available: true}
}

func (s *Stub) Name() string {
	if s.NameValue == "" {
		return "stub"
	}
	return s.NameValue
}

func (s *Stub) IsAvailable(context.Context) bool { return s.Available }

func (s *Stub) LoadModel(_ context.Context, ref string) error {
	s.mu.Lock()
	s.loaded = ref
	s.mu.Unlock()
	return nil
}

func (s *Stub) UnloadModel(context.Context) error {
	s.mu.Lock()
	s.loaded = ""
	s.mu.Unlock()
	return nil
}

func (s *Stub) Infer(ctx context.Context, req inference.Request) (*inference.Completion, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.Delay > 0 {
		if s.IgnoreContext {
			time.Sleep(s.Delay)
		} else {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	text, err := s.Text, s.Err
	if s.Respond != nil {
		text, err = s.Respond(req)
	}
	if err != nil {
		return nil, err
	}
	return &inference.Completion{Text: text, Latency: s.Delay}, nil
}

func (s *Stub) Dispose() error {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	return nil
}

// Requests returns a copy of every request received so far.
func (s *Stub) Requests() []inference.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inference.Request(nil), s.requests...)
}

// Calls returns the number of Infer calls.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Disposed reports whether Dispose was called.
func (s *Stub) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// RemoteRouter returns a router in remote mode served by b.
func RemoteRouter(t testing.TB, database *sql.DB, b inference.Backend, timeout time.Duration) *inference.Router {
	t.Helper()
	r := inference.NewRouter(database, inference.RouterOptions{Remote: b, Timeout: timeout})
	if err := r.SetMode(context.Background(), inference.ModeRemote); err != nil {
		t.Fatalf("SetMode(remote): %v", err)
	}
	return r
}
