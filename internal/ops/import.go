package ops

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/config"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeSkip  ImportMode = "skip"  // keep the stored capture
	ImportModeError ImportMode = "error" // import nothing if any id exists or any line is bad
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: skip
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one rejected line.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line  int
	entry *capture.Entry
}

// Import restores captures from an Export file. Processing state and
// annotations travel with the records.
func Import(ctx context.Context, database *sql.DB, exportsDir string, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeSkip
	}
	if input.Mode != ImportModeSkip && input.Mode != ImportModeError {
		return nil, errors.NewInvalidRequest("mode must be one of: skip, error")
	}
	if err := ValidatePath(input.Path, PathCheckRead, exportsDir, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, out, err := parseExport(file)
	if err != nil {
		return nil, err
	}

	var fresh []importRecord
	for _, r := range records {
		_, err := db.GetCapture(ctx, database, r.entry.ID)
		switch {
		case err == nil:
			out.Skipped++
			if input.Mode == ImportModeError {
				out.Errors = append(out.Errors, ImportError{Line: r.line, ID: r.entry.ID, Code: "COLLISION", Message: "capture already exists"})
			}
		case errors.Is(err, errors.ErrNotFound):
			fresh = append(fresh, r)
		default:
			return nil, err
		}
	}
	if input.Mode == ImportModeError && len(out.Errors) > 0 {
		out.Skipped = 0
		return out, nil
	}

	for _, r := range fresh {
		if err := db.SaveCapture(ctx, database, r.entry); err != nil {
			return nil, err
		}
		out.Imported++
	}
	return out, nil
}

func parseExport(file interface{ Read([]byte) (int, error) }) ([]importRecord, *ImportOutput, error) {
	out := &ImportOutput{Errors: []ImportError{}}
	var records []importRecord

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var header ExportHeader
		if err := json.Unmarshal(raw, &header); err == nil && header.BodypressExport {
			continue
		}

		var e capture.Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			out.Errors = append(out.Errors, ImportError{Line: line, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if e.ID == "" || e.Timestamp.IsZero() {
			out.Errors = append(out.Errors, ImportError{Line: line, ID: e.ID, Code: "INVALID_RECORD", Message: "id and timestamp are required"})
			continue
		}
		if e.Source != "" && !e.Source.Valid() {
			out.Errors = append(out.Errors, ImportError{Line: line, ID: e.ID, Code: "INVALID_RECORD", Message: fmt.Sprintf("unknown source %q", e.Source)})
			continue
		}
		records = append(records, importRecord{line: line, entry: &e})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.NewInternal(fmt.Errorf("read import file: %w", err))
	}
	return records, out, nil
}
