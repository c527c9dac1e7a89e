package ops

import (
	"context"

	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/inference"
	"github.com/hpungsan/bodypress/internal/schedule"
)

// StatsOutput contains the result of the Stats operation.
type StatsOutput struct {
	Captures    int `json:"captures"`
	Unprocessed int `json:"unprocessed"`
	Journals    int `json:"journals"`

	Background *schedule.Stats  `json:"background"`
	AI         inference.Status `json:"ai"`

	AnnotationPending   int   `json:"annotation_pending"`
	AnnotationProcessed int64 `json:"annotation_processed"`
	AnnotationDropped   int64 `json:"annotation_dropped"`
}

// Stats summarises the store, the scheduler and the inference state.
func Stats(ctx context.Context, e *engine.Engine) (*StatsOutput, error) {
	total, err := db.CountCaptures(ctx, e.DB, nil)
	if err != nil {
		return nil, err
	}
	unprocessed := false
	pending, err := db.CountCaptures(ctx, e.DB, &unprocessed)
	if err != nil {
		return nil, err
	}
	journals, err := db.CountJournals(ctx, e.DB)
	if err != nil {
		return nil, err
	}
	bg, err := e.Scheduler.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{
		Captures:            total,
		Unprocessed:         pending,
		Journals:            journals,
		Background:          bg,
		AI:                  e.Router.Status(),
		AnnotationPending:   e.Queue.Pending(),
		AnnotationProcessed: e.Queue.Processed(),
		AnnotationDropped:   e.Queue.Dropped(),
	}, nil
}
