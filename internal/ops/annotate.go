package ops

import (
	"context"

	"github.com/hpungsan/bodypress/internal/annotate"
	"github.com/hpungsan/bodypress/internal/engine"
)

// AnnotatePendingInput contains parameters for the AnnotatePending operation.
type AnnotatePendingInput struct {
	Progress func(done, total int)
}

// AnnotatePending enriches every capture that has no metadata yet. Captures
// dropped by a full annotation queue are picked up here.
func AnnotatePending(ctx context.Context, e *engine.Engine, input AnnotatePendingInput) (*annotate.Summary, error) {
	sum, err := e.Annotator.AnnotateAll(ctx, input.Progress)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &sum, nil
}
