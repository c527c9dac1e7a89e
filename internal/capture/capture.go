package capture

import "time"

// Source records what initiated a capture.
type Source string

const (
	SourceManual              Source = "manual"
	SourceBackgroundScheduled Source = "background_scheduled"
	SourceBackgroundTriggered Source = "background_triggered"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceBackgroundScheduled, SourceBackgroundTriggered:
		return true
	}
	return false
}

// Trigger records the condition that caused a background capture.
type Trigger string

const (
	TriggerTime     Trigger = "time"
	TriggerLocation Trigger = "location"
	TriggerActivity Trigger = "activity"
	TriggerManual   Trigger = "manual"
)

// Entry is one point-in-time, multi-source snapshot.
//
// Every data block is nullable: a nil block means the source was unavailable,
// failed, or timed out. Inner metric fields are pointers for the same reason,
// so a genuine zero reported by a source stays distinguishable from "missing".
type Entry struct {
	// ID is a ULID minted at collection start; lexical order matches creation order.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// IsProcessed and ProcessedAt are set once by journal synthesis, never unset.
	IsProcessed bool       `json:"is_processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	Source  Source   `json:"source"`
	Trigger *Trigger `json:"trigger,omitempty"`

	UserNote *string  `json:"user_note,omitempty"`
	UserMood *string  `json:"user_mood,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	Health      *HealthData      `json:"health,omitempty"`
	Environment *EnvironmentData `json:"environment,omitempty"`
	Location    *LocationData    `json:"location,omitempty"`

	// CalendarEvents is nil when the calendar was unavailable and empty when
	// the calendar reported no events.
	CalendarEvents []string `json:"calendar_events"`

	AIInsights *string `json:"ai_insights,omitempty"`

	// ExecutionDuration and Errors are operator diagnostics.
	ExecutionDuration *time.Duration `json:"execution_duration,omitempty"`
	Errors            []string       `json:"errors,omitempty"`
	BatteryLevel      *int           `json:"battery_level,omitempty"`

	// AIMetadata is written at most once; its presence is the annotation guard.
	AIMetadata *AIMetadata `json:"ai_metadata,omitempty"`
}

// HealthData holds health metrics as reported by the health reader.
type HealthData struct {
	Steps            *int     `json:"steps,omitempty"`
	HeartRate        *float64 `json:"heart_rate,omitempty"`
	RestingHeartRate *float64 `json:"resting_heart_rate,omitempty"`
	SleepHours       *float64 `json:"sleep_hours,omitempty"`
	ActiveEnergyKcal *float64 `json:"active_energy_kcal,omitempty"`
	DistanceKm       *float64 `json:"distance_km,omitempty"`
}

// EnvironmentData holds ambient conditions for a location.
type EnvironmentData struct {
	TemperatureC    *float64 `json:"temperature_c,omitempty"`
	Humidity        *float64 `json:"humidity,omitempty"`
	AirQualityIndex *int     `json:"air_quality_index,omitempty"`
	UVIndex         *float64 `json:"uv_index,omitempty"`
	Condition       string   `json:"condition,omitempty"`
	City            string   `json:"city,omitempty"`
}

// LocationData holds a single location fix.
type LocationData struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	AccuracyM *float64 `json:"accuracy_m,omitempty"`
	Place     string   `json:"place,omitempty"`
}

// AIMetadata is the structured enrichment attached by the annotator.
type AIMetadata struct {
	Summary     string    `json:"summary"`
	Tags        []string  `json:"tags"`
	Themes      []string  `json:"themes"`
	Activities  []string  `json:"activities,omitempty"`
	MoodHint    string    `json:"mood_hint,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Empty reports whether no data source contributed to the entry.
func (e *Entry) Empty() bool {
	return e.Health == nil && e.Environment == nil && e.Location == nil && e.CalendarEvents == nil
}

// IncludedSources lists the data blocks present on the entry, in fixed order.
func (e *Entry) IncludedSources() []string {
	var out []string
	if e.Health != nil {
		out = append(out, "health")
	}
	if e.Environment != nil {
		out = append(out, "environment")
	}
	if e.Location != nil {
		out = append(out, "location")
	}
	if e.CalendarEvents != nil {
		out = append(out, "calendar")
	}
	return out
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
