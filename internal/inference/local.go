package inference

import (
	"context"
	"fmt"
)

// LocalBackend serves completions from the on-device runtime once its
// lifecycle reports ready.
type LocalBackend struct {
	rt        Runtime
	lifecycle *Lifecycle
}

// NewLocalBackend creates a local backend driving lc's model through rt.
func NewLocalBackend(rt Runtime, lc *Lifecycle) *LocalBackend {
	return &LocalBackend{rt: rt, lifecycle: lc}
}

func (b *LocalBackend) Name() string { return "local" }

// Lifecycle exposes the model lifecycle for status and management.
func (b *LocalBackend) Lifecycle() *Lifecycle { return b.lifecycle }

func (b *LocalBackend) IsAvailable(ctx context.Context) bool {
	return b.lifecycle.Ready() && b.rt.Ping(ctx) == nil
}

// LoadModel activates the lifecycle's model. ref must match it when given.
func (b *LocalBackend) LoadModel(ctx context.Context, ref string) error {
	if ref != "" && ref != b.lifecycle.ModelRef() {
		return fmt.Errorf("local backend manages %q, not %q", b.lifecycle.ModelRef(), ref)
	}
	return b.lifecycle.Activate(ctx)
}

func (b *LocalBackend) UnloadModel(ctx context.Context) error {
	return b.lifecycle.Deactivate(ctx)
}

func (b *LocalBackend) Infer(ctx context.Context, req Request) (*Completion, error) {
	if !b.lifecycle.Ready() {
		return nil, fmt.Errorf("local model %s is %s", b.lifecycle.ModelRef(), b.lifecycle.State().Status)
	}
	return b.rt.Chat(ctx, b.lifecycle.ModelRef(), req)
}

// Dispose leaves the model resident. The runtime is shared with later
// processes; only an explicit deactivate or delete unloads it.
func (b *LocalBackend) Dispose() error {
	return nil
}
