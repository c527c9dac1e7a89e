package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
)

// DeleteCaptureInput contains parameters for the DeleteCapture operation.
type DeleteCaptureInput struct {
	ID string
}

// DeleteCaptureOutput contains the result of the DeleteCapture operation.
type DeleteCaptureOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteCapture permanently removes a capture. Journal entries already
// written from it are left as they are.
func DeleteCapture(ctx context.Context, database *sql.DB, input DeleteCaptureInput) (*DeleteCaptureOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := db.DeleteCapture(ctx, database, id); err != nil {
		return nil, err
	}
	return &DeleteCaptureOutput{Deleted: true, ID: id}, nil
}
