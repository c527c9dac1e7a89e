package sources

import (
	"context"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hpungsan/bodypress/internal/capture"
)

// healthExport is the document a companion sync writes to the health file.
type healthExport struct {
	UpdatedAt *time.Time `json:"updated_at"`
	capture.HealthData
}

// HealthFile reads health metrics from a JSON export. A missing or stale
// export means the source is unavailable.
type HealthFile struct {
	Path   string
	MaxAge time.Duration
	Now    func() time.Time
}

// ReadHealth implements collect.HealthReader.
func (h *HealthFile) ReadHealth(ctx context.Context) (*capture.HealthData, error) {
	var doc healthExport
	ok, err := readExport(ctx, h.Path, h.MaxAge, h.now(), &doc, func() *time.Time { return doc.UpdatedAt })
	if err != nil || !ok {
		return nil, err
	}
	data := doc.HealthData
	return &data, nil
}

func (h *HealthFile) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type calendarExport struct {
	UpdatedAt *time.Time `json:"updated_at"`
	Events    []struct {
		Title string    `json:"title"`
		Start time.Time `json:"start"`
	} `json:"events"`
}

// CalendarFile reads event titles from a JSON export.
type CalendarFile struct {
	Path     string
	MaxAge   time.Duration
	Location *time.Location
	Now      func() time.Time
}

// ReadEvents implements collect.CalendarReader. It returns an empty, non-nil
// slice when the export has no events on day.
func (c *CalendarFile) ReadEvents(ctx context.Context, day time.Time) ([]string, error) {
	var doc calendarExport
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	ok, err := readExport(ctx, c.Path, c.MaxAge, now, &doc, func() *time.Time { return doc.UpdatedAt })
	if err != nil || !ok {
		return nil, err
	}

	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	want := capture.DateKey(day, loc)
	titles := []string{}
	for _, ev := range doc.Events {
		if ev.Title != "" && capture.DateKey(ev.Start, loc) == want {
			titles = append(titles, ev.Title)
		}
	}
	return titles, nil
}

// readExport decodes path into dst. It reports false without error when the
// file does not exist or is older than maxAge. Freshness comes from the
// document's updated_at when present, else from the file's mtime.
func readExport(ctx context.Context, path string, maxAge time.Duration, now time.Time, dst any, updatedAt func() *time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}

	stamp := info.ModTime()
	if t := updatedAt(); t != nil {
		stamp = *t
	}
	if maxAge > 0 && now.Sub(stamp) > maxAge {
		return false, nil
	}
	return true, nil
}

// StaticLocation reports a fixed, configured location.
type StaticLocation struct {
	Latitude  float64
	Longitude float64
	Place     string
}

// ReadLocation implements collect.LocationReader.
func (s *StaticLocation) ReadLocation(context.Context) (*capture.LocationData, error) {
	return &capture.LocationData{Latitude: s.Latitude, Longitude: s.Longitude, Place: s.Place}, nil
}
