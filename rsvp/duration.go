package rsvp

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const millisPerMinute = 60_000.0

// TierThresholds sets the inclusive upper bounds of the short, medium and
// long word-length tiers. Anything longer counts as very long.
type TierThresholds struct {
	Short  int
	Medium int
	Long   int
}

// DefaultTiers are the word-length tier bounds used when Settings.Tiers is
// left zero.
var DefaultTiers = TierThresholds{Short: 4, Medium: 8, Long: 12}

// Length tier factors, short through very long.
const (
	tierShortFactor    = 1.0
	tierMediumFactor   = 1.1
	tierLongFactor     = 1.2
	tierVeryLongFactor = 1.4
)

func (t TierThresholds) factor(length int) float64 {
	if t == (TierThresholds{}) {
		t = DefaultTiers
	}
	switch {
	case length <= t.Short:
		return tierShortFactor
	case length <= t.Medium:
		return tierMediumFactor
	case length <= t.Long:
		return tierLongFactor
	default:
		return tierVeryLongFactor
	}
}

// isFullStop matches sentence-ending punctuation, including the fullwidth
// and CJK forms, the ellipsis, inverted Spanish marks and the interrobang
// family.
func isFullStop(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '‽', '⸘', '。', '．', '！', '？', '¡', '¿', '⁇', '⁈', '⁉':
		return true
	}
	return false
}

// isPartialStop matches clause punctuation, which earns half the hold of a
// full stop.
func isPartialStop(r rune) bool {
	switch r {
	case ',', ';', ':', '—', '–', '、', '，', '；', '：':
		return true
	}
	return false
}

func trailingRune(s string) rune {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

// ComputeDuration derives the presentation time of a single unit at the
// given rate in words per minute, rounded to a whole millisecond. An empty
// unit or a rate that is not a positive finite number yields zero.
//
// The base interval is one beat of the rate (60000/rate ms). Unless
// FixedTiming is set, the beat is stretched by the unit's length tier.
// With punctuation pauses enabled, a full or partial stop ending the unit
// adds the configured hold on top, whether or not the timing is fixed.
func ComputeDuration(unit DisplayUnit, rate float64, s Settings) time.Duration {
	if strings.TrimSpace(unit.SourceText) == "" {
		return 0
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}

	ms := millisPerMinute / rate
	if !s.FixedTiming {
		ms *= s.Tiers.factor(unit.MaxSignificantLength)
	}
	if s.PunctuationPauses {
		pause := float64(s.PauseDuration.Milliseconds())
		switch r := trailingRune(unit.SourceText); {
		case isFullStop(r):
			ms += pause
		case isPartialStop(r):
			ms += pause / 2
		}
	}
	return time.Duration(math.Round(ms)) * time.Millisecond
}
