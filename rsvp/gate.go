package rsvp

// GateFunc decides whether playback should hold for a comprehension check
// before leaving the unit just shown. The engine consults it with that
// unit's text and word count; returning true pauses playback and fires the
// comprehension callback. Each boundary is consulted at most once per
// visit, so resuming moves past a checkpoint without asking again.
type GateFunc func(unitText string, wordCount int) bool

// WordIntervalGate returns a gate that triggers roughly every interval
// words read. A non-positive interval returns nil, which disables gating.
func WordIntervalGate(interval int) GateFunc {
	if interval <= 0 {
		return nil
	}
	read := 0
	return func(_ string, wordCount int) bool {
		read += wordCount
		if read >= interval {
			read = 0
			return true
		}
		return false
	}
}
