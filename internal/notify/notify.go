// Package notify is the producer side of capture notifications.
package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/capture"
)

// CaptureEvent describes a persisted background capture.
type CaptureEvent struct {
	CaptureID string         `json:"capture_id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    capture.Source `json:"source"`
	// Sources lists the data blocks present, e.g. ["health", "calendar"].
	Sources []string `json:"sources"`
	Errors  []string `json:"errors,omitempty"`
}

// Notifier receives capture outcomes. Implementations must not block.
type Notifier interface {
	CaptureComplete(ev CaptureEvent)
	CaptureError(err error)
}

// Log writes notifications to the structured log.
type Log struct{}

func (Log) CaptureComplete(ev CaptureEvent) {
	sources := "no data"
	if len(ev.Sources) > 0 {
		sources = strings.Join(ev.Sources, ", ")
	}
	log.Info().
		Str("capture_id", ev.CaptureID).
		Str("source", string(ev.Source)).
		Strs("errors", ev.Errors).
		Msgf("Capture complete: %s", sources)
}

func (Log) CaptureError(err error) {
	log.Warn().Err(err).Msg("Capture failed")
}

// Nop discards notifications.
type Nop struct{}

func (Nop) CaptureComplete(CaptureEvent) {}
func (Nop) CaptureError(error)           {}

// Recorder keeps notifications in memory. Used by tests and the status view.
type Recorder struct {
	mu       sync.Mutex
	complete []CaptureEvent
	errs     []error
}

func (r *Recorder) CaptureComplete(ev CaptureEvent) {
	r.mu.Lock()
	r.complete = append(r.complete, ev)
	r.mu.Unlock()
}

func (r *Recorder) CaptureError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// Completed returns a copy of the recorded completion events.
func (r *Recorder) Completed() []CaptureEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CaptureEvent(nil), r.complete...)
}

// Errors returns a copy of the recorded errors.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Multi fans out to several notifiers.
type Multi []Notifier

func (m Multi) CaptureComplete(ev CaptureEvent) {
	for _, n := range m {
		n.CaptureComplete(ev)
	}
}

func (m Multi) CaptureError(err error) {
	for _, n := range m {
		n.CaptureError(err)
	}
}
