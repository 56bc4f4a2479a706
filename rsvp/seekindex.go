package rsvp

import (
	"sort"
	"time"
)

// SeekIndex maps a point on the session timeline to the unit on screen at
// that point. It is a prefix-sum table over unit durations: entry i is the
// cumulative time before unit i starts, with one extra entry holding the
// total.
type SeekIndex struct {
	cum []time.Duration
}

// BuildSeekIndex computes the prefix sums for a slice of units.
func BuildSeekIndex(units []DisplayUnit) *SeekIndex {
	cum := make([]time.Duration, len(units)+1)
	for i, u := range units {
		cum[i+1] = cum[i] + u.Duration
	}
	return &SeekIndex{cum: cum}
}

// Len returns the number of units indexed.
func (x *SeekIndex) Len() int { return len(x.cum) - 1 }

// Total returns the summed duration of every unit.
func (x *SeekIndex) Total() time.Duration { return x.cum[len(x.cum)-1] }

// CumulativeAt returns the timeline time at which unit i starts. Indexes
// are clamped, so CumulativeAt(Len()) is the total duration.
func (x *SeekIndex) CumulativeAt(i int) time.Duration {
	if i < 0 {
		return 0
	}
	if i >= len(x.cum) {
		i = len(x.cum) - 1
	}
	return x.cum[i]
}

// IndexAtTime returns the index of the unit on screen at timeline time t.
// Times outside the timeline clamp to its ends, and a t landing exactly on
// a unit boundary resolves to the unit that starts there.
func (x *SeekIndex) IndexAtTime(t time.Duration) int {
	n := x.Len()
	if n == 0 || t <= 0 {
		return 0
	}
	if t >= x.Total() {
		return n - 1
	}
	i := sort.Search(len(x.cum), func(j int) bool { return x.cum[j] >= t })
	if x.cum[i] == t {
		return i
	}
	return i - 1
}
