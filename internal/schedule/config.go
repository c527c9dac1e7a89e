// Package schedule decides when background captures run and records their outcome.
package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
)

// Settings keys owned by the scheduler.
const (
	ConfigKey       = "background_capture_config"
	LastCaptureKey  = "last_background_capture"
	SuccessCountKey = "bg_capture_success_count"
	FailureCountKey = "bg_capture_failure_count"
)

// DefaultMinInterval is the platform floor for periodic work.
const DefaultMinInterval = 15 * time.Minute

// TimeOfDay is a wall-clock time encoded as "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24-hour).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Config is the persisted background capture configuration.
type Config struct {
	Enabled              bool      `json:"enabled"`
	IntervalMinutes      int       `json:"interval_minutes"`
	IncludeHealth        bool      `json:"include_health"`
	IncludeEnvironment   bool      `json:"include_environment"`
	IncludeLocation      bool      `json:"include_location"`
	IncludeCalendar      bool      `json:"include_calendar"`
	QuietHoursStart      TimeOfDay `json:"quiet_hours_start"`
	QuietHoursEnd        TimeOfDay `json:"quiet_hours_end"`
	BatteryOptimization  bool      `json:"battery_optimization"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
}

// DefaultConfig is used until the user saves a configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:              false,
		IntervalMinutes:      60,
		IncludeHealth:        true,
		IncludeEnvironment:   true,
		IncludeLocation:      true,
		IncludeCalendar:      true,
		QuietHoursStart:      TimeOfDay{Hour: 22},
		QuietHoursEnd:        TimeOfDay{Hour: 7},
		BatteryOptimization:  true,
		NotificationsEnabled: true,
	}
}

// Include converts the include flags for the collector.
func (c Config) Include() collect.Include {
	return collect.Include{
		Health:      c.IncludeHealth,
		Environment: c.IncludeEnvironment,
		Location:    c.IncludeLocation,
		Calendar:    c.IncludeCalendar,
	}
}

// Interval returns the capture interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Clamp raises the interval to the platform floor.
func (c Config) Clamp(floor time.Duration) Config {
	if floor <= 0 {
		floor = DefaultMinInterval
	}
	floorMinutes := int(floor / time.Minute)
	if c.IntervalMinutes < floorMinutes {
		c.IntervalMinutes = floorMinutes
	}
	return c
}

// InQuietHours reports whether t falls inside [start, end) on the wall clock
// of t's location. A window whose end is not after its start wraps past
// midnight; start == end means no quiet hours.
func InQuietHours(t time.Time, start, end TimeOfDay) bool {
	s, e := start.minutes(), end.minutes()
	if s == e {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if s < e {
		return m >= s && m < e
	}
	return m >= s || m < e
}

// LoadConfig reads the persisted configuration, clamped to floor. A missing
// or unreadable blob yields the defaults.
func LoadConfig(ctx context.Context, database *sql.DB, floor time.Duration) (Config, error) {
	raw, ok, err := db.GetSetting(ctx, database, ConfigKey)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if ok {
		// Keys missing from an older blob keep their defaults.
		stored := DefaultConfig()
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			log.Warn().Err(err).Msg("ignoring unreadable background capture config")
		} else {
			cfg = stored
		}
	}
	return cfg.Clamp(floor), nil
}

// SaveConfig clamps and persists cfg, returning what was stored.
func SaveConfig(ctx context.Context, database *sql.DB, cfg Config, floor time.Duration) (Config, error) {
	if cfg.IntervalMinutes < 0 {
		return Config{}, errors.NewInvalidRequest("interval_minutes must not be negative")
	}
	cfg = cfg.Clamp(floor)
	data, err := json.Marshal(cfg)
	if err != nil {
		return Config{}, errors.NewInternal(err)
	}
	if err := db.SetSetting(ctx, database, ConfigKey, string(data)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
