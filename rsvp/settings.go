package rsvp

import (
	"math"
	"time"
)

// Reading-rate bounds in words per minute. Rates outside the range are
// clamped, never rejected.
const (
	MinWPM     = 60.0
	MaxWPM     = 1200.0
	DefaultWPM = 300.0
)

// Settings is a snapshot of everything that affects pacing. The engine
// pulls a fresh snapshot through its SettingsFunc each time it derives a
// duration, so changes take hold at the next unit boundary without any
// extra plumbing.
type Settings struct {
	// Rate is the target reading rate in words per minute.
	Rate float64

	// ChunkSize is how many words are grouped into one display unit.
	ChunkSize int

	// FixedTiming skips the per-unit length adjustment so every unit starts
	// from the same base beat. Punctuation holds still apply on top.
	FixedTiming bool

	// PunctuationPauses holds a little longer on units that close a clause
	// or a sentence. PauseDuration is the full-stop hold; partial stops
	// (commas, dashes and friends) hold for half of it.
	PunctuationPauses bool
	PauseDuration     time.Duration

	// WarmupEnabled ramps the effective rate from Rate*WarmupStartRatio up
	// to Rate over WarmupDuration at the start of fresh playback.
	WarmupEnabled    bool
	WarmupDuration   time.Duration
	WarmupStartRatio float64

	// AutoRestart replays the session from the top shortly after it
	// completes.
	AutoRestart bool

	// ComprehensionInterval is the approximate number of words between
	// comprehension checkpoints; zero disables them. The engine itself
	// never reads it. Front ends use it to build a gate, see
	// WordIntervalGate.
	ComprehensionInterval int

	// Tiers overrides the word-length thresholds of the duration model.
	// The zero value means DefaultTiers.
	Tiers TierThresholds
}

// SettingsFunc hands the engine the current Settings on demand.
type SettingsFunc func() Settings

// DefaultSettings returns the stock pacing configuration.
func DefaultSettings() Settings {
	return Settings{
		Rate:              DefaultWPM,
		ChunkSize:         1,
		PunctuationPauses: true,
		PauseDuration:     350 * time.Millisecond,
		WarmupEnabled:     true,
		WarmupDuration:    10 * time.Second,
		WarmupStartRatio:  0.5,
	}
}

// ClampRate forces a requested rate into [MinWPM, MaxWPM]. Values that are
// not finite numbers fall back to DefaultWPM.
func ClampRate(wpm float64) float64 {
	if math.IsNaN(wpm) || math.IsInf(wpm, 0) {
		return DefaultWPM
	}
	if wpm < MinWPM {
		return MinWPM
	}
	if wpm > MaxWPM {
		return MaxWPM
	}
	return wpm
}
