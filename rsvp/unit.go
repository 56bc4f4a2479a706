package rsvp

import "time"

// DisplayUnit is one atomic step of a reading session: a word, or a small
// chunk of words shown together.
type DisplayUnit struct {
	// SourceText is the unit's text as it appears in the source.
	SourceText string

	// RenderForm is what a front end should draw for this unit. The engine
	// never interprets it; chunkers may pre-shape it without affecting
	// pacing.
	RenderForm string

	// MaxSignificantLength is the rune length of the longest word in the
	// unit after stripping punctuation from both ends. It selects the
	// length tier of the duration model.
	MaxSignificantLength int

	// WordCount is the number of words in the unit.
	WordCount int

	// Duration is the presentation time derived for the unit at the target
	// rate. It is filled in when a session is built and recomputed whenever
	// pacing settings change.
	Duration time.Duration
}
