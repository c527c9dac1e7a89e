package capture

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the journal date key format.
const DateLayout = "2006-01-02"

// DaySnapshot aggregates the captures of one day.
//
// Cumulative counters (steps, energy, distance, sleep) take the highest value
// reported, heart rate is averaged over reporting captures, air quality keeps
// the worst reading, and temperature/condition keep the latest reading.
// Fields stay nil when no capture reported them.
type DaySnapshot struct {
	Date         string     `json:"date"`
	CaptureCount int        `json:"capture_count"`
	FirstCapture *time.Time `json:"first_capture,omitempty"`
	LastCapture  *time.Time `json:"last_capture,omitempty"`

	Steps            *int     `json:"steps,omitempty"`
	SleepHours       *float64 `json:"sleep_hours,omitempty"`
	HeartRate        *float64 `json:"heart_rate,omitempty"`
	RestingHeartRate *float64 `json:"resting_heart_rate,omitempty"`
	ActiveEnergyKcal *float64 `json:"active_energy_kcal,omitempty"`
	DistanceKm       *float64 `json:"distance_km,omitempty"`

	TemperatureC    *float64 `json:"temperature_c,omitempty"`
	AirQualityIndex *int     `json:"air_quality_index,omitempty"`
	Condition       string   `json:"condition,omitempty"`

	Places []string `json:"places,omitempty"`
	Events []string `json:"events,omitempty"`
}

// HasData reports whether any capture contributed a reading.
func (s *DaySnapshot) HasData() bool {
	if s == nil {
		return false
	}
	return s.Steps != nil || s.SleepHours != nil || s.HeartRate != nil ||
		s.RestingHeartRate != nil || s.ActiveEnergyKcal != nil || s.DistanceKm != nil ||
		s.TemperatureC != nil || s.AirQualityIndex != nil || s.Condition != "" ||
		len(s.Places) > 0 || len(s.Events) > 0
}

// Aggregate folds entries into a snapshot for date. Entries may arrive in any order.
func Aggregate(date string, entries []*Entry) *DaySnapshot {
	snap := &DaySnapshot{Date: date}

	sorted := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	snap.CaptureCount = len(sorted)
	if len(sorted) > 0 {
		first, last := sorted[0].Timestamp, sorted[len(sorted)-1].Timestamp
		snap.FirstCapture, snap.LastCapture = &first, &last
	}

	var hrSum, rhrSum float64
	var hrN, rhrN int
	seenPlace := map[string]bool{}
	seenEvent := map[string]bool{}

	for _, e := range sorted {
		if h := e.Health; h != nil {
			snap.Steps = maxInt(snap.Steps, h.Steps)
			snap.SleepHours = maxFloat(snap.SleepHours, h.SleepHours)
			snap.ActiveEnergyKcal = maxFloat(snap.ActiveEnergyKcal, h.ActiveEnergyKcal)
			snap.DistanceKm = maxFloat(snap.DistanceKm, h.DistanceKm)
			if h.HeartRate != nil {
				hrSum += *h.HeartRate
				hrN++
			}
			if h.RestingHeartRate != nil {
				rhrSum += *h.RestingHeartRate
				rhrN++
			}
		}
		if env := e.Environment; env != nil {
			if env.TemperatureC != nil {
				snap.TemperatureC = Float(*env.TemperatureC)
			}
			if env.Condition != "" {
				snap.Condition = env.Condition
			}
			snap.AirQualityIndex = maxInt(snap.AirQualityIndex, env.AirQualityIndex)
			if env.City != "" && !seenPlace[env.City] {
				seenPlace[env.City] = true
				snap.Places = append(snap.Places, env.City)
			}
		}
		if loc := e.Location; loc != nil && loc.Place != "" && !seenPlace[loc.Place] {
			seenPlace[loc.Place] = true
			snap.Places = append(snap.Places, loc.Place)
		}
		for _, ev := range e.CalendarEvents {
			if ev != "" && !seenEvent[ev] {
				seenEvent[ev] = true
				snap.Events = append(snap.Events, ev)
			}
		}
	}

	if hrN > 0 {
		snap.HeartRate = Float(round1(hrSum / float64(hrN)))
	}
	if rhrN > 0 {
		snap.RestingHeartRate = Float(round1(rhrSum / float64(rhrN)))
	}
	return snap
}

// DateKey formats t as a journal date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// DayBounds returns the half-open interval [start, end) covering date in loc.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", date, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

func maxInt(cur, v *int) *int {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		return Int(*v)
	}
	return cur
}

func maxFloat(cur, v *float64) *float64 {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		return Float(*v)
	}
	return cur
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
