package capture

import "time"

// Mood is the closed set of daily moods a journal entry can carry.
type Mood string

const (
	MoodEnergised Mood = "energised"
	MoodTired     Mood = "tired"
	MoodActive    Mood = "active"
	MoodCautious  Mood = "cautious"
	MoodRested    Mood = "rested"
	MoodQuiet     Mood = "quiet"
	MoodCalm      Mood = "calm"
)

var moodEmoji = map[Mood]string{
	MoodEnergised: "⚡",
	MoodTired:     "😴",
	MoodActive:    "🏃",
	MoodCautious:  "😷",
	MoodRested:    "🌿",
	MoodQuiet:     "🤫",
	MoodCalm:      "🙂",
}

// Valid reports whether m belongs to the closed set.
func (m Mood) Valid() bool {
	_, ok := moodEmoji[m]
	return ok
}

// Emoji returns the display emoji for m, or the calm emoji for unknown moods.
func (m Mood) Emoji() string {
	if e, ok := moodEmoji[m]; ok {
		return e
	}
	return moodEmoji[MoodCalm]
}

// JournalEntry is the synthesized artifact for one calendar date.
type JournalEntry struct {
	// Date is the primary key, formatted as YYYY-MM-DD.
	Date string `json:"date"`

	Headline  string   `json:"headline"`
	Summary   string   `json:"summary"`
	Body      string   `json:"body"`
	Mood      Mood     `json:"mood"`
	MoodEmoji string   `json:"mood_emoji"`
	Tags      []string `json:"tags"`

	UserNote *string `json:"user_note,omitempty"`
	UserMood *string `json:"user_mood,omitempty"`

	// AIGenerated is true when the persisted text came from an inference backend.
	AIGenerated bool `json:"ai_generated"`

	// Snapshot is the raw aggregate the entry was produced from.
	Snapshot     *DaySnapshot `json:"snapshot,omitempty"`
	CaptureCount int          `json:"capture_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
