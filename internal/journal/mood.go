package journal

import "github.com/hpungsan/bodypress/internal/capture"

// MoodPolicy infers the mood of a day from its aggregate.
type MoodPolicy interface {
	Mood(snap *capture.DaySnapshot) capture.Mood
}

// MoodFunc adapts a function to MoodPolicy.
type MoodFunc func(snap *capture.DaySnapshot) capture.Mood

func (f MoodFunc) Mood(snap *capture.DaySnapshot) capture.Mood { return f(snap) }

// Thresholds used by RuleCascade.
const (
	RestfulSleepHours = 7.0
	ShortSleepHours   = 6.0
	EnergisedSteps    = 7000
	ActiveSteps       = 10000
	RestingHRLow      = 50.0
	RestingHRHigh     = 85.0
	PoorAirQuality    = 100
)

// RuleCascade is the default policy: the first matching rule wins.
//
//	energised  sleep >= 7h, steps >= 7000, heart rate within 50..85
//	tired      sleep < 6h
//	active     steps >= 10000
//	cautious   AQI > 100
//	rested     sleep >= 7h
//	quiet      steps == 0 and active energy == 0, both reported
//	calm       otherwise
//
// A rule whose inputs were not reported does not match.
type RuleCascade struct{}

func (RuleCascade) Mood(s *capture.DaySnapshot) capture.Mood {
	if s == nil {
		return capture.MoodCalm
	}
	sleep, steps, hr := s.SleepHours, s.Steps, s.HeartRate

	switch {
	case sleep != nil && steps != nil && hr != nil &&
		*sleep >= RestfulSleepHours && *steps >= EnergisedSteps &&
		*hr >= RestingHRLow && *hr <= RestingHRHigh:
		return capture.MoodEnergised
	case sleep != nil && *sleep < ShortSleepHours:
		return capture.MoodTired
	case steps != nil && *steps >= ActiveSteps:
		return capture.MoodActive
	case s.AirQualityIndex != nil && *s.AirQualityIndex > PoorAirQuality:
		return capture.MoodCautious
	case sleep != nil && *sleep >= RestfulSleepHours:
		return capture.MoodRested
	case steps != nil && s.ActiveEnergyKcal != nil && *steps == 0 && *s.ActiveEnergyKcal == 0:
		return capture.MoodQuiet
	}
	return capture.MoodCalm
}
