package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
)

// FetchCaptureInput contains parameters for the FetchCapture operation.
type FetchCaptureInput struct {
	ID string
}

// FetchCapture retrieves a full capture by id.
func FetchCapture(ctx context.Context, database *sql.DB, input FetchCaptureInput) (*capture.Entry, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetCapture(ctx, database, id)
}
