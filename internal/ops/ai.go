package ops

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/inference"
)

// AIStatusOutput contains the result of the AIStatus operation.
type AIStatusOutput struct {
	inference.Status
	// Healthy is only probed when requested.
	Healthy *bool `json:"healthy,omitempty"`
}

// AIStatusInput contains parameters for the AIStatus operation.
type AIStatusInput struct {
	CheckHealth bool
}

// AIStatus reports the inference mode and local model state.
func AIStatus(ctx context.Context, e *engine.Engine, input AIStatusInput) *AIStatusOutput {
	out := &AIStatusOutput{Status: e.Router.Status()}
	if input.CheckHealth {
		ok := e.Router.CheckHealth(ctx)
		out.Healthy = &ok
	}
	return out
}

// SetAIModeInput contains parameters for the SetAIMode operation.
type SetAIModeInput struct {
	Mode string // local | remote
}

// SetAIMode persists the inference mode. The router never falls back on its
// own, so a remote mode without a configured endpoint is accepted here and
// reported when a completion is attempted.
func SetAIMode(ctx context.Context, e *engine.Engine, input SetAIModeInput) (*AIStatusOutput, error) {
	mode := inference.Mode(strings.ToLower(strings.TrimSpace(input.Mode)))
	if err := e.Router.SetMode(ctx, mode); err != nil {
		return nil, err
	}
	if mode == inference.ModeLocal {
		e.RestoreLocalModel(ctx)
	}
	return &AIStatusOutput{Status: e.Router.Status()}, nil
}

// ModelAction is a local model lifecycle operation.
type ModelAction string

const (
	ModelDownload   ModelAction = "download"
	ModelActivate   ModelAction = "activate"
	ModelDeactivate ModelAction = "deactivate"
	ModelDelete     ModelAction = "delete"
)

// ManageModelInput contains parameters for the ManageModel operation.
type ManageModelInput struct {
	Action ModelAction
	// Progress receives download progress in 0..1.
	Progress func(float64)
}

// ManageModel runs one lifecycle operation on the on-device model.
// Operations are serialized; a download in flight rejects the others.
func ManageModel(ctx context.Context, e *engine.Engine, input ManageModelInput) (*inference.LifecycleState, error) {
	lc := e.Lifecycle
	if lc == nil {
		return nil, errors.NewBackendNotRegistered(string(inference.ModeLocal))
	}

	e.LifecycleMu.Lock()
	defer e.LifecycleMu.Unlock()

	var err error
	switch input.Action {
	case ModelDownload:
		progress := input.Progress
		if progress == nil {
			progress = func(p float64) { log.Debug().Float64("progress", p).Msg("model download") }
		}
		err = lc.Download(ctx, progress)
	case ModelActivate:
		err = lc.Activate(ctx)
	case ModelDeactivate:
		err = lc.Deactivate(ctx)
	case ModelDelete:
		err = lc.Delete(ctx)
	default:
		return nil, errors.NewInvalidRequest("action must be one of: download, activate, deactivate, delete")
	}
	if err != nil {
		return nil, err
	}
	st := lc.State()
	if input.Action != ModelDownload {
		if err := e.RememberModelActive(ctx, st.Status == inference.StatusReady); err != nil {
			log.Warn().Err(err).Msg("could not persist local model activation")
		}
	}
	log.Info().Str("action", string(input.Action)).Str("status", string(st.Status)).Msg("local model lifecycle")
	return &st, nil
}
