package rsvp

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// MaxDriftCarry bounds how much boundary overshoot rolls into the next
// unit. Anything beyond it is dropped so one long stall cannot eat the
// units that follow.
const MaxDriftCarry = 50 * time.Millisecond

// RestartDelay is how long a completed session sits before auto-restart
// replays it.
const RestartDelay = time.Second

// Callbacks are the engine's outbound notifications. They are invoked with
// the engine's lock held, so they must return quickly and must not call
// back into the Engine; hand the event to another goroutine instead (the
// bundled UI pushes onto a channel).
type Callbacks struct {
	// UnitChanged fires when a new unit should be drawn: on initial play,
	// on every advance and on every seek.
	UnitChanged func(unit DisplayUnit, index int)

	// StateChanged fires on every state transition and after anything that
	// moves or rescales the timeline (seeks, loads, rebuilds).
	StateChanged func(Snapshot)

	// ComprehensionDue fires when the gate holds playback for a check.
	ComprehensionDue func()
}

// Engine schedules display units against a clock: it advances through a
// loaded session at the configured rate, compensates for tick drift, and
// exposes play/pause/seek control. All methods are safe for concurrent
// use; every entry point, clock ticks included, serializes on one mutex.
type Engine struct {
	mu       sync.Mutex
	clock    ClockSource
	settings SettingsFunc
	cb       Callbacks
	gate     GateFunc

	sess        *session
	state       State
	index       int           // == sess.len() once completed
	elapsed     time.Duration // timeline time before units[index]
	curDur      time.Duration
	unitStart   time.Time
	pausedFrac  float64
	warmup      *Warmup
	interrupted bool
	gateHeld    int // index whose boundary the gate already held at; -1 otherwise

	tick       Handle // pending Schedule callback, 0 if none
	restart    Handle // pending auto-restart, 0 if none
	generation uint64 // bumped by Load; stale deferred work checks it
}

type session struct {
	units []DisplayUnit
	idx   *SeekIndex
	words int
}

func (s *session) len() int { return len(s.units) }

// New wires an engine to its clock and settings source. The callbacks may
// be partially or entirely nil.
func New(clock ClockSource, settings SettingsFunc, cb Callbacks) *Engine {
	if settings == nil {
		settings = DefaultSettings
	}
	return &Engine{
		clock:    clock,
		settings: settings,
		cb:       cb,
		warmup:   NewWarmup(),
		state:    StateIdle,
		gateHeld: -1,
	}
}

// SetGate installs or clears the comprehension gate.
func (e *Engine) SetGate(g GateFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = g
}

// Loaded reports whether a session is in place.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil
}

// Load replaces the session with a fresh set of units and resets playback
// to Idle at the first unit. Unit durations are derived here under the
// current settings. Deferred work belonging to the previous session is
// invalidated before it can run.
func (e *Engine) Load(units []DisplayUnit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(units) == 0 {
		return ErrTextTooShort
	}
	for i, u := range units {
		if strings.TrimSpace(u.SourceText) == "" {
			return fmt.Errorf("unit %d: %w", i, ErrInvalidUnit)
		}
	}

	e.generation++
	e.cancelTickLocked()
	e.cancelRestartLocked()

	s := e.settings()
	e.sess = buildSession(units, s)
	e.index = 0
	e.elapsed = 0
	e.curDur = e.sess.units[0].Duration
	e.pausedFrac = 0
	e.warmup.Reset()
	e.interrupted = false
	e.gateHeld = -1
	e.state = StateIdle
	log.Debug("session loaded",
		"units", e.sess.len(),
		"words", e.sess.words,
		"total", e.sess.idx.Total())
	e.notifyStateLocked()
	return nil
}

func buildSession(units []DisplayUnit, s Settings) *session {
	out := make([]DisplayUnit, len(units))
	copy(out, units)
	rate := ClampRate(s.Rate)
	words := 0
	for i := range out {
		if out[i].WordCount <= 0 {
			out[i].WordCount = len(strings.Fields(out[i].SourceText))
		}
		out[i].Duration = ComputeDuration(out[i], rate, s)
		words += out[i].WordCount
	}
	return &session{units: out, idx: BuildSeekIndex(out), words: words}
}

// Play starts or resumes playback. From Completed it restarts at the top.
// A fresh start from the first unit arms the warmup ramp; resuming from
// Paused restores the fraction of the unit already shown.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playLocked()
}

func (e *Engine) playLocked() {
	if e.sess == nil || e.state == StatePlaying {
		return
	}
	e.cancelRestartLocked()
	now := e.clock.Now()
	s := e.settings()
	resuming := e.state == StatePaused

	if e.state == StateCompleted {
		e.index = 0
		e.elapsed = 0
		e.pausedFrac = 0
		e.gateHeld = -1
	}

	if resuming {
		e.warmup.Resume(now)
		e.curDur = e.liveDurationLocked(e.index, now, s)
		offset := time.Duration(e.pausedFrac * float64(e.curDur))
		e.unitStart = now.Add(-offset)
		e.pausedFrac = 0
	} else {
		if e.index == 0 {
			e.warmup.Start(now, s)
		}
		e.curDur = e.liveDurationLocked(e.index, now, s)
		e.unitStart = now
	}

	e.interrupted = false
	e.state = StatePlaying
	log.Debug("playback started", "index", e.index, "resuming", resuming, "duration", e.curDur)
	e.notifyStateLocked()
	if !resuming {
		e.notifyUnitLocked()
	}
	e.scheduleTickLocked()
}

// Pause holds playback at the current unit, remembering how much of it has
// already been shown so Play resumes mid-unit.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked(e.clock.Now(), false)
}

func (e *Engine) pauseLocked(now time.Time, interrupted bool) {
	if e.sess == nil || e.state != StatePlaying {
		return
	}
	e.cancelTickLocked()
	frac := 1.0
	if e.curDur > 0 {
		frac = float64(now.Sub(e.unitStart)) / float64(e.curDur)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
	}
	e.pausedFrac = frac
	e.warmup.Pause(now)
	e.interrupted = interrupted
	e.state = StatePaused
	log.Debug("playback paused", "index", e.index, "fraction", frac, "interrupted", interrupted)
	e.notifyStateLocked()
}

// Toggle flips between Playing and Paused; from Idle or Completed it
// plays.
func (e *Engine) Toggle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePlaying {
		e.pauseLocked(e.clock.Now(), false)
	} else {
		e.playLocked()
	}
}

// Stop abandons playback and rewinds to the beginning.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || e.state == StateIdle {
		return
	}
	e.cancelTickLocked()
	e.cancelRestartLocked()
	e.index = 0
	e.elapsed = 0
	e.pausedFrac = 0
	e.curDur = e.sess.units[0].Duration
	e.warmup.Reset()
	e.interrupted = false
	e.gateHeld = -1
	e.state = StateIdle
	log.Debug("playback stopped")
	e.notifyStateLocked()
}

// Suspend is a pause imposed from outside, for focus loss and the like.
// The snapshot flags it as interrupted so front ends can tell it apart
// from a deliberate pause. No-op unless playing.
func (e *Engine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked(e.clock.Now(), true)
}

// Seek jumps to the unit at index i, clamped to the session. Elapsed time
// snaps to that unit's start on the timeline. Seeking while playing
// restarts the tick from the new unit; seeking a completed session demotes
// it to Paused so a later Play does not throw the jump away.
func (e *Engine) Seek(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seekLocked(i)
}

func (e *Engine) seekLocked(i int) {
	if e.sess == nil {
		return
	}
	n := e.sess.len()
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	if i == e.index && e.state != StateCompleted {
		return
	}
	e.cancelTickLocked()
	e.cancelRestartLocked()
	if e.state == StateCompleted {
		e.state = StatePaused
	}
	now := e.clock.Now()
	s := e.settings()
	e.index = i
	e.elapsed = e.sess.idx.CumulativeAt(i)
	e.curDur = e.liveDurationLocked(i, now, s)
	e.pausedFrac = 0
	e.gateHeld = -1
	if e.state == StatePlaying {
		e.unitStart = now
		e.scheduleTickLocked()
	}
	log.Debug("seek", "index", i, "elapsed", e.elapsed)
	e.notifyUnitLocked()
	e.notifyStateLocked()
}

// SeekToTime jumps to whichever unit is on screen at timeline time t.
func (e *Engine) SeekToTime(t time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	e.seekLocked(e.sess.idx.IndexAtTime(t))
}

// SeekBy jumps a relative number of units, so +1 and -1 are next and
// previous.
func (e *Engine) SeekBy(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	base := e.index
	if n := e.sess.len(); base > n-1 {
		base = n - 1
	}
	e.seekLocked(base + delta)
}

// Rebuild re-derives every unit duration and the seek index under the
// current settings, keeping the position and the fraction of the current
// unit already shown. Call it after a rate or pacing-settings change.
func (e *Engine) Rebuild() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	now := e.clock.Now()
	s := e.settings()

	frac := e.pausedFrac
	if e.state == StatePlaying && e.curDur > 0 {
		frac = float64(now.Sub(e.unitStart)) / float64(e.curDur)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
	}

	e.sess = buildSession(e.sess.units, s)
	n := e.sess.len()
	if e.index < n {
		e.elapsed = e.sess.idx.CumulativeAt(e.index)
		e.curDur = e.liveDurationLocked(e.index, now, s)
	} else {
		e.elapsed = e.sess.idx.Total()
		e.curDur = 0
	}
	switch e.state {
	case StatePlaying:
		e.unitStart = now.Add(-time.Duration(frac * float64(e.curDur)))
	case StatePaused:
		e.pausedFrac = frac
	}
	log.Debug("session rebuilt", "rate", s.Rate, "total", e.sess.idx.Total())
	e.notifyStateLocked()
}

// RestartWarmup re-arms the rate ramp right now, even when the settings
// have warmup disabled.
func (e *Engine) RestartWarmup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	now := e.clock.Now()
	s := e.settings()

	frac := e.pausedFrac
	if e.state == StatePlaying && e.curDur > 0 {
		frac = float64(now.Sub(e.unitStart)) / float64(e.curDur)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
	}

	e.warmup.ForceStart(now, s)
	switch e.state {
	case StatePlaying:
		e.curDur = e.liveDurationLocked(e.index, now, s)
		e.unitStart = now.Add(-time.Duration(frac * float64(e.curDur)))
	case StatePaused:
		e.warmup.Pause(now)
		e.curDur = e.liveDurationLocked(e.index, now, s)
		e.pausedFrac = frac
	}
	log.Debug("warmup restarted", "state", e.state)
	e.notifyStateLocked()
}

// Snapshot reports the engine's current position and phase.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        e.state,
		Index:        e.index,
		WarmupActive: e.warmup.Active(),
		Interrupted:  e.interrupted,
	}
	if e.sess == nil {
		return snap
	}
	snap.TotalUnits = e.sess.len()
	snap.TotalWords = e.sess.words

	total := e.sess.idx.Total()
	elapsed := e.elapsed
	switch e.state {
	case StatePlaying:
		in := e.clock.Now().Sub(e.unitStart)
		if in > e.curDur {
			in = e.curDur
		}
		if in < 0 {
			in = 0
		}
		elapsed += in
	case StatePaused:
		elapsed += time.Duration(e.pausedFrac * float64(e.curDur))
	}
	if elapsed > total {
		elapsed = total
	}
	snap.Elapsed = elapsed
	snap.Remaining = total - elapsed
	return snap
}

// UnitAt returns the unit at index i with its derived fields filled in.
func (e *Engine) UnitAt(i int) (DisplayUnit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || i < 0 || i >= e.sess.len() {
		return DisplayUnit{}, false
	}
	return e.sess.units[i], true
}

// liveDurationLocked derives what unit i should hold for right now: the
// stored duration normally, a warmup-adjusted one while the ramp is
// active.
func (e *Engine) liveDurationLocked(i int, now time.Time, s Settings) time.Duration {
	unit := e.sess.units[i]
	if !e.warmup.Active() {
		return unit.Duration
	}
	e.warmup.Update(now)
	return ComputeDuration(unit, e.warmup.EffectiveRate(ClampRate(s.Rate)), s)
}

func (e *Engine) scheduleTickLocked() {
	gen := e.generation
	ref := new(Handle)
	*ref = e.clock.Schedule(func(now time.Time) {
		e.onTick(ref, gen, now)
	})
	e.tick = *ref
}

func (e *Engine) onTick(ref *Handle, gen uint64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A canceled or superseded tick can still fire if the runtime had
	// already started it; the handle check drops it.
	if *ref != e.tick || gen != e.generation {
		return
	}
	e.tick = 0
	if e.state != StatePlaying || e.sess == nil {
		return
	}

	inUnit := now.Sub(e.unitStart)
	if inUnit < e.curDur {
		e.scheduleTickLocked()
		return
	}

	unit := e.sess.units[e.index]
	if e.gate != nil && e.gateHeld != e.index && e.gate(unit.SourceText, unit.WordCount) {
		e.gateHeld = e.index
		e.pauseLocked(now, false)
		e.notifyComprehensionLocked()
		return
	}

	overshoot := inUnit - e.curDur
	e.elapsed += e.curDur
	e.index++

	if e.index == e.sess.len() {
		e.elapsed = e.sess.idx.Total()
		e.state = StateCompleted
		log.Debug("session completed", "units", e.sess.len())
		e.notifyStateLocked()
		if e.settings().AutoRestart {
			e.scheduleRestartLocked()
		}
		return
	}

	s := e.settings()
	e.curDur = e.liveDurationLocked(e.index, now, s)
	carry := overshoot
	if carry > MaxDriftCarry {
		carry = MaxDriftCarry
	}
	e.unitStart = now.Add(-carry)
	e.notifyUnitLocked()
	e.scheduleTickLocked()
}

func (e *Engine) scheduleRestartLocked() {
	gen := e.generation
	ref := new(Handle)
	*ref = e.clock.After(RestartDelay, func(time.Time) {
		e.onRestart(ref, gen)
	})
	e.restart = *ref
}

func (e *Engine) onRestart(ref *Handle, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if *ref != e.restart || gen != e.generation {
		return
	}
	e.restart = 0
	if e.state != StateCompleted {
		return
	}
	log.Debug("auto-restart", "generation", gen)
	e.index = 0
	e.elapsed = 0
	e.pausedFrac = 0
	e.playLocked()
}

func (e *Engine) cancelTickLocked() {
	if e.tick != 0 {
		e.clock.Cancel(e.tick)
		e.tick = 0
	}
}

func (e *Engine) cancelRestartLocked() {
	if e.restart != 0 {
		e.clock.Cancel(e.restart)
		e.restart = 0
	}
}

func (e *Engine) notifyUnitLocked() {
	if e.cb.UnitChanged == nil || e.index < 0 || e.index >= e.sess.len() {
		return
	}
	e.cb.UnitChanged(e.sess.units[e.index], e.index)
}

func (e *Engine) notifyStateLocked() {
	if e.cb.StateChanged == nil {
		return
	}
	e.cb.StateChanged(e.snapshotLocked())
}

func (e *Engine) notifyComprehensionLocked() {
	if e.cb.ComprehensionDue == nil {
		return
	}
	e.cb.ComprehensionDue()
}
