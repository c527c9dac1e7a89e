// Package ops holds the application operations shared by the CLI, MCP and
// web surfaces. Each operation takes an Input struct and returns an Output.
package ops

import (
	"time"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// normalizeDate validates a YYYY-MM-DD date; empty means today.
func normalizeDate(date, today string) (string, error) {
	if date == "" {
		return today, nil
	}
	if _, err := time.Parse(capture.DateLayout, date); err != nil {
		return "", errors.NewInvalidRequest("date must be YYYY-MM-DD")
	}
	return date, nil
}

// wrapErr keeps structured errors and hides anything else behind INTERNAL.
func wrapErr(err error) error {
	if pErr, ok := errors.As(err); ok {
		return pErr
	}
	return errors.NewInternal(err)
}
