package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/db"
)

// CaptureSummary is the list view of a capture.
type CaptureSummary struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Source      capture.Source `json:"source"`
	IsProcessed bool           `json:"is_processed"`
	Sources     []string       `json:"sources"`
	ErrorCount  int            `json:"error_count"`
	Annotated   bool           `json:"annotated"`
	Summary     string         `json:"summary,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// Summarize builds the list view of e.
func Summarize(e *capture.Entry) CaptureSummary {
	s := CaptureSummary{
		ID:          e.ID,
		Timestamp:   e.Timestamp,
		Source:      e.Source,
		IsProcessed: e.IsProcessed,
		Sources:     e.IncludedSources(),
		ErrorCount:  len(e.Errors),
		Annotated:   e.AIMetadata != nil,
		Tags:        e.Tags,
	}
	if s.Sources == nil {
		s.Sources = []string{}
	}
	if e.AIMetadata != nil {
		s.Summary = e.AIMetadata.Summary
		s.Tags = append(append([]string(nil), e.Tags...), e.AIMetadata.Tags...)
	}
	return s
}

// ListCapturesInput contains parameters for the ListCaptures operation.
type ListCapturesInput struct {
	Processed *bool // optional filter
	Limit     int   // default: 20, max: 100
	Offset    int   // default: 0
}

// ListCapturesOutput contains the result of the ListCaptures operation.
type ListCapturesOutput struct {
	Items      []CaptureSummary `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// ListCaptures returns capture summaries newest-first.
func ListCaptures(ctx context.Context, database *sql.DB, input ListCapturesInput) (*ListCapturesOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	entries, err := db.ListCaptures(ctx, database, db.CaptureFilter{Processed: input.Processed, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	total, err := db.CountCaptures(ctx, database, input.Processed)
	if err != nil {
		return nil, err
	}

	items := make([]CaptureSummary, 0, len(entries))
	for _, e := range entries {
		items = append(items, Summarize(e))
	}
	return &ListCapturesOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "timestamp_desc",
	}, nil
}
