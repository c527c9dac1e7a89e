package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/schedule"
)

// ScheduleStatusOutput contains the result of the ScheduleStatus operation.
type ScheduleStatusOutput struct {
	*schedule.Stats
	MinIntervalMinutes int `json:"min_interval_minutes"`
}

// ScheduleStatus reports the background capture configuration and counters.
func ScheduleStatus(ctx context.Context, e *engine.Engine) (*ScheduleStatusOutput, error) {
	st, err := e.Scheduler.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &ScheduleStatusOutput{Stats: st, MinIntervalMinutes: int(e.Config.PlatformMinInterval().Minutes())}, nil
}

// UpdateScheduleInput contains parameters for the UpdateSchedule operation.
// Nil fields keep their stored value.
type UpdateScheduleInput struct {
	Enabled              *bool
	IntervalMinutes      *int
	IncludeHealth        *bool
	IncludeEnvironment   *bool
	IncludeLocation      *bool
	IncludeCalendar      *bool
	QuietHoursStart      *string // HH:MM
	QuietHoursEnd        *string // HH:MM
	BatteryOptimization  *bool
	NotificationsEnabled *bool
}

// UpdateSchedule merges input over the stored configuration, persists it
// and re-registers periodic work. The interval is raised to the platform
// floor rather than rejected.
func UpdateSchedule(ctx context.Context, e *engine.Engine, input UpdateScheduleInput) (*schedule.Config, error) {
	cfg, err := e.Scheduler.Config(ctx)
	if err != nil {
		return nil, err
	}

	if input.IntervalMinutes != nil {
		if *input.IntervalMinutes <= 0 {
			return nil, errors.NewInvalidRequest("interval_minutes must be positive")
		}
		cfg.IntervalMinutes = *input.IntervalMinutes
	}
	if input.QuietHoursStart != nil {
		t, err := schedule.ParseTimeOfDay(strings.TrimSpace(*input.QuietHoursStart))
		if err != nil {
			return nil, errors.NewInvalidRequest("quiet_hours_start: " + err.Error())
		}
		cfg.QuietHoursStart = t
	}
	if input.QuietHoursEnd != nil {
		t, err := schedule.ParseTimeOfDay(strings.TrimSpace(*input.QuietHoursEnd))
		if err != nil {
			return nil, errors.NewInvalidRequest("quiet_hours_end: " + err.Error())
		}
		cfg.QuietHoursEnd = t
	}
	setBool(&cfg.Enabled, input.Enabled)
	setBool(&cfg.IncludeHealth, input.IncludeHealth)
	setBool(&cfg.IncludeEnvironment, input.IncludeEnvironment)
	setBool(&cfg.IncludeLocation, input.IncludeLocation)
	setBool(&cfg.IncludeCalendar, input.IncludeCalendar)
	setBool(&cfg.BatteryOptimization, input.BatteryOptimization)
	setBool(&cfg.NotificationsEnabled, input.NotificationsEnabled)

	saved, err := e.Scheduler.UpdateConfig(ctx, cfg)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &saved, nil
}

// TriggerSchedule asks the platform for an immediate background run.
func TriggerSchedule(ctx context.Context, e *engine.Engine) error {
	if err := e.Scheduler.TriggerNow(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
