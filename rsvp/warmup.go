package rsvp

import (
	"math"
	"time"
)

// Warmup ramps the effective reading rate from a fraction of the target up
// to the full target over a fixed wall-clock window, easing out so the tail
// of the ramp is gentle. It keeps no timer of its own; callers feed it the
// current time.
type Warmup struct {
	active     bool
	paused     bool
	start      time.Time     // zero while paused or inactive
	banked     time.Duration // ramp time accumulated before the last pause
	eased      float64       // eased progress in [0,1]; 1 whenever inactive
	window     time.Duration
	startRatio float64
}

// NewWarmup returns an idle ramp. EffectiveRate passes the target straight
// through until Start arms it.
func NewWarmup() *Warmup {
	return &Warmup{eased: 1}
}

// Start arms the ramp from the warmup fields of s. It is a no-op when s
// has warmup disabled; ForceStart ignores that switch.
func (w *Warmup) Start(now time.Time, s Settings) {
	if !s.WarmupEnabled {
		return
	}
	w.ForceStart(now, s)
}

// ForceStart arms the ramp even when s has warmup disabled.
func (w *Warmup) ForceStart(now time.Time, s Settings) {
	ratio := s.WarmupStartRatio
	if math.IsNaN(ratio) {
		ratio = 1
	}
	w.active = true
	w.paused = false
	w.start = now
	w.banked = 0
	w.eased = 0
	w.window = s.WarmupDuration
	w.startRatio = clamp01(ratio)
	if w.window <= 0 {
		w.Complete()
	}
}

// Pause freezes ramp progress. Repeated calls are no-ops.
func (w *Warmup) Pause(now time.Time) {
	if !w.active || w.paused {
		return
	}
	w.banked += now.Sub(w.start)
	w.start = time.Time{}
	w.paused = true
}

// Resume continues a paused ramp from where it froze.
func (w *Warmup) Resume(now time.Time) {
	if !w.active || !w.paused {
		return
	}
	w.start = now
	w.paused = false
}

// Update recomputes eased progress at the given time and reports it.
// Progress only moves while the ramp is active and unpaused; once linear
// progress reaches 1 the ramp completes itself.
func (w *Warmup) Update(now time.Time) float64 {
	if !w.active {
		return w.eased
	}
	elapsed := w.banked
	if !w.paused {
		elapsed += now.Sub(w.start)
	}
	t := float64(elapsed) / float64(w.window)
	if t >= 1 {
		w.Complete()
		return w.eased
	}
	if t < 0 {
		t = 0
	}
	w.eased = t * (2 - t)
	return w.eased
}

// EffectiveRate maps a target rate through the ramp: startRatio*target at
// the very beginning, the full target once the ramp completes.
func (w *Warmup) EffectiveRate(target float64) float64 {
	if !w.active {
		return target
	}
	ratio := w.startRatio + (1-w.startRatio)*w.eased
	return target * ratio
}

// Complete marks the ramp finished; the rate snaps to the full target.
func (w *Warmup) Complete() {
	w.active = false
	w.paused = false
	w.start = time.Time{}
	w.eased = 1
}

// Reset abandons any ramp in progress and returns to the idle pass-through
// state.
func (w *Warmup) Reset() {
	w.Complete()
	w.banked = 0
}

// Active reports whether the ramp is still adjusting the rate.
func (w *Warmup) Active() bool { return w.active }

// Paused reports whether an active ramp is frozen.
func (w *Warmup) Paused() bool { return w.active && w.paused }

// Progress returns the eased progress as of the last Update.
func (w *Warmup) Progress() float64 { return w.eased }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
