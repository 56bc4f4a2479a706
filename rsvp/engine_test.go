package rsvp_test

import (
	"errors"
	"testing"
	"time"

	"github.com/skim-reader/skim/rsvp"
)

var engineStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	units         []int
	states        []rsvp.State
	comprehension int
}

func (r *recorder) callbacks() rsvp.Callbacks {
	return rsvp.Callbacks{
		UnitChanged: func(_ rsvp.DisplayUnit, i int) {
			r.units = append(r.units, i)
		},
		StateChanged: func(s rsvp.Snapshot) {
			r.states = append(r.states, s.State)
		},
		ComprehensionDue: func() {
			r.comprehension++
		},
	}
}

func (r *recorder) lastState() rsvp.State {
	if len(r.states) == 0 {
		return rsvp.StateIdle
	}
	return r.states[len(r.states)-1]
}

func words(texts ...string) []rsvp.DisplayUnit {
	units := make([]rsvp.DisplayUnit, len(texts))
	for i, txt := range texts {
		units[i] = rsvp.DisplayUnit{
			SourceText:           txt,
			RenderForm:           txt,
			MaxSignificantLength: len([]rune(txt)),
			WordCount:            1,
		}
	}
	return units
}

// fixedSettings pin every unit to exactly one beat of the rate.
func fixedSettings(rate float64) rsvp.Settings {
	return rsvp.Settings{Rate: rate, FixedTiming: true}
}

type harness struct {
	engine   *rsvp.Engine
	clock    *rsvp.MockClock
	rec      *recorder
	settings rsvp.Settings
}

func newHarness(t *testing.T, units []rsvp.DisplayUnit, s rsvp.Settings) *harness {
	t.Helper()
	h := &harness{
		clock:    rsvp.NewMockClock(engineStart),
		rec:      &recorder{},
		settings: s,
	}
	h.clock.SetTickInterval(10 * time.Millisecond)
	h.engine = rsvp.New(h.clock, func() rsvp.Settings { return h.settings }, h.rec.callbacks())
	if units != nil {
		if err := h.engine.Load(units); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	return h
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLoadValidation(t *testing.T) {
	h := newHarness(t, nil, fixedSettings(300))

	if err := h.engine.Load(nil); !errors.Is(err, rsvp.ErrTextTooShort) {
		t.Errorf("Load(nil) = %v, want ErrTextTooShort", err)
	}
	if h.engine.Loaded() {
		t.Error("engine reports loaded after a rejected load")
	}

	bad := words("one", "two")
	bad[1].SourceText = "   "
	if err := h.engine.Load(bad); !errors.Is(err, rsvp.ErrInvalidUnit) {
		t.Errorf("Load(blank unit) = %v, want ErrInvalidUnit", err)
	}

	if err := h.engine.Load(words("solo")); err != nil {
		t.Fatalf("Load(one unit) = %v, want nil", err)
	}
	snap := h.engine.Snapshot()
	if snap.State != rsvp.StateIdle || snap.Index != 0 || snap.TotalUnits != 1 {
		t.Errorf("snapshot after load = %+v", snap)
	}
}

// TestPlaybackAdvancesOnSchedule runs five 200ms units to completion and
// checks the boundary positions along the way.
func TestPlaybackAdvancesOnSchedule(t *testing.T) {
	h := newHarness(t, words("one", "two", "three", "four", "five"), fixedSettings(300))

	h.engine.Play()
	if !equalInts(h.rec.units, []int{0}) {
		t.Fatalf("units after Play = %v, want [0]", h.rec.units)
	}

	h.clock.Advance(450 * time.Millisecond)
	snap := h.engine.Snapshot()
	if snap.Index != 2 {
		t.Errorf("index at 450ms = %d, want 2", snap.Index)
	}
	if snap.Elapsed != 450*time.Millisecond {
		t.Errorf("elapsed at 450ms = %v, want 450ms", snap.Elapsed)
	}

	h.clock.Advance(550 * time.Millisecond)
	snap = h.engine.Snapshot()
	if snap.State != rsvp.StateCompleted {
		t.Fatalf("state at 1s = %v, want completed", snap.State)
	}
	if snap.Index != snap.TotalUnits {
		t.Errorf("completed index = %d, want %d", snap.Index, snap.TotalUnits)
	}
	if snap.Elapsed != time.Second || snap.Remaining != 0 {
		t.Errorf("completed timeline = %v elapsed, %v remaining", snap.Elapsed, snap.Remaining)
	}
	if !equalInts(h.rec.units, []int{0, 1, 2, 3, 4}) {
		t.Errorf("unit sequence = %v", h.rec.units)
	}
}

func TestSeekToTimeLandsMidUnit(t *testing.T) {
	h := newHarness(t, words("one", "two", "three", "four", "five"), fixedSettings(300))

	h.engine.SeekToTime(450 * time.Millisecond)
	snap := h.engine.Snapshot()
	if snap.Index != 2 {
		t.Errorf("index after seek to 450ms = %d, want 2", snap.Index)
	}
	if snap.Elapsed != 400*time.Millisecond {
		t.Errorf("elapsed after seek = %v, want 400ms", snap.Elapsed)
	}

	// A boundary time belongs to the unit that starts there.
	h.engine.SeekToTime(200 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Errorf("index after seek to 200ms = %d, want 1", got)
	}
}

// TestPauseResumeFinishesRemainder pauses 60% through a 500ms unit and
// checks that resuming spends exactly the remaining 200ms on it.
func TestPauseResumeFinishesRemainder(t *testing.T) {
	h := newHarness(t, words("first", "second"), fixedSettings(120))

	h.engine.Play()
	h.clock.Advance(300 * time.Millisecond)
	h.engine.Pause()

	snap := h.engine.Snapshot()
	if snap.State != rsvp.StatePaused {
		t.Fatalf("state = %v, want paused", snap.State)
	}
	if snap.Elapsed != 300*time.Millisecond {
		t.Errorf("paused elapsed = %v, want 300ms", snap.Elapsed)
	}

	// Time passing while paused changes nothing.
	h.clock.Advance(2 * time.Second)
	if got := h.engine.Snapshot().Elapsed; got != 300*time.Millisecond {
		t.Errorf("elapsed crept while paused: %v", got)
	}

	h.engine.Play()
	h.clock.Advance(190 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 0 {
		t.Fatalf("advanced early: index %d", got)
	}
	h.clock.Advance(10 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Errorf("index after remainder = %d, want 1", got)
	}
}

// TestDriftCarryIsCapped stalls the tick far past a boundary and checks
// that only the capped carry is credited to the next unit.
func TestDriftCarryIsCapped(t *testing.T) {
	h := newHarness(t, words("first", "second"), fixedSettings(600))
	h.clock.SetTickInterval(500 * time.Millisecond)

	h.engine.Play()
	h.clock.Advance(500 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Fatalf("index after stalled tick = %d, want 1", got)
	}

	// The boundary overshot by 400ms but at most MaxDriftCarry of it may
	// count toward the second unit: 100ms + 50ms, not 100ms + 100ms.
	h.engine.Pause()
	if got := h.engine.Snapshot().Elapsed; got != 150*time.Millisecond {
		t.Errorf("elapsed after capped carry = %v, want 150ms", got)
	}
}

func TestAutoRestartAfterCompletion(t *testing.T) {
	s := fixedSettings(600)
	s.AutoRestart = true
	h := newHarness(t, words("only"), s)

	h.engine.Play()
	h.clock.Advance(100 * time.Millisecond)
	if got := h.engine.Snapshot().State; got != rsvp.StateCompleted {
		t.Fatalf("state = %v, want completed", got)
	}

	h.clock.Advance(999 * time.Millisecond)
	if got := h.engine.Snapshot().State; got != rsvp.StateCompleted {
		t.Fatalf("restarted early: %v", got)
	}

	h.clock.Advance(1 * time.Millisecond)
	snap := h.engine.Snapshot()
	if snap.State != rsvp.StatePlaying || snap.Index != 0 {
		t.Errorf("after restart delay: state=%v index=%d, want playing at 0", snap.State, snap.Index)
	}
}

// TestReloadInvalidatesPendingRestart replaces the session between
// completion and the deferred restart; the stale restart must not fire.
func TestReloadInvalidatesPendingRestart(t *testing.T) {
	s := fixedSettings(600)
	s.AutoRestart = true
	h := newHarness(t, words("only"), s)

	h.engine.Play()
	h.clock.Advance(100 * time.Millisecond)

	if err := h.engine.Load(words("fresh", "text")); err != nil {
		t.Fatalf("reload: %v", err)
	}
	seen := len(h.rec.units)

	h.clock.Advance(5 * time.Second)
	snap := h.engine.Snapshot()
	if snap.State != rsvp.StateIdle {
		t.Errorf("state after stale restart window = %v, want idle", snap.State)
	}
	if len(h.rec.units) != seen {
		t.Errorf("stale restart advanced units: %v", h.rec.units[seen:])
	}
}

func TestStopCancelsPendingRestart(t *testing.T) {
	s := fixedSettings(600)
	s.AutoRestart = true
	h := newHarness(t, words("only"), s)

	h.engine.Play()
	h.clock.Advance(100 * time.Millisecond)
	h.engine.Stop()

	h.clock.Advance(5 * time.Second)
	if got := h.engine.Snapshot().State; got != rsvp.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestSuspendMarksInterrupted(t *testing.T) {
	h := newHarness(t, words("one", "two", "three"), fixedSettings(300))

	// Suspending before playback starts changes nothing.
	h.engine.Suspend()
	if got := h.engine.Snapshot().State; got != rsvp.StateIdle {
		t.Fatalf("suspend while idle moved state to %v", got)
	}

	h.engine.Play()
	h.clock.Advance(50 * time.Millisecond)
	h.engine.Suspend()

	snap := h.engine.Snapshot()
	if snap.State != rsvp.StatePaused || !snap.Interrupted {
		t.Errorf("after suspend: state=%v interrupted=%v, want paused+interrupted", snap.State, snap.Interrupted)
	}

	h.engine.Play()
	snap = h.engine.Snapshot()
	if snap.State != rsvp.StatePlaying || snap.Interrupted {
		t.Errorf("after resume: state=%v interrupted=%v", snap.State, snap.Interrupted)
	}
}

func TestComprehensionGateHoldsAtBoundary(t *testing.T) {
	chunk := func(txt string) rsvp.DisplayUnit {
		return rsvp.DisplayUnit{SourceText: txt, RenderForm: txt, MaxSignificantLength: 2, WordCount: 2}
	}
	h := newHarness(t, []rsvp.DisplayUnit{chunk("aa bb"), chunk("cc dd"), chunk("ee ff")}, fixedSettings(300))
	h.engine.SetGate(rsvp.WordIntervalGate(3))

	h.engine.Play()
	h.clock.Advance(200 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Fatalf("index = %d, want 1 (gate must not fire at 2 words)", got)
	}

	h.clock.Advance(200 * time.Millisecond)
	snap := h.engine.Snapshot()
	if snap.State != rsvp.StatePaused || h.rec.comprehension != 1 {
		t.Fatalf("gate at 4 words: state=%v fires=%d, want paused after 1 fire", snap.State, h.rec.comprehension)
	}
	if snap.Index != 1 {
		t.Errorf("gate advanced the unit: index %d", snap.Index)
	}

	// Resuming passes the held boundary without asking again.
	h.engine.Play()
	h.clock.Advance(10 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 2 {
		t.Errorf("index after resume = %d, want 2", got)
	}

	h.clock.Advance(400 * time.Millisecond)
	if got := h.engine.Snapshot().State; got != rsvp.StateCompleted {
		t.Errorf("state = %v, want completed", got)
	}
	if h.rec.comprehension != 1 {
		t.Errorf("comprehension fires = %d, want 1", h.rec.comprehension)
	}
}

// TestGateAlwaysTrueStillMakesProgress proves a pathological gate cannot
// wedge playback: each boundary holds once, then passes on resume.
func TestGateAlwaysTrueStillMakesProgress(t *testing.T) {
	h := newHarness(t, words("one", "two", "three"), fixedSettings(300))
	h.engine.SetGate(func(string, int) bool { return true })

	h.engine.Play()
	for i := 0; i < 10 && h.engine.Snapshot().State != rsvp.StateCompleted; i++ {
		h.clock.Advance(300 * time.Millisecond)
		if h.engine.Snapshot().State == rsvp.StatePaused {
			h.engine.Play()
		}
	}

	if got := h.engine.Snapshot().State; got != rsvp.StateCompleted {
		t.Fatalf("state = %v, want completed", got)
	}
	if h.rec.comprehension != 3 {
		t.Errorf("comprehension fires = %d, want 3", h.rec.comprehension)
	}
}

// TestWarmupSlowsEarlyUnits pins the ramp's effect on boundary times: at
// half start ratio the first unit takes two beats, and the second unit's
// duration reflects the eased progress at its entry.
func TestWarmupSlowsEarlyUnits(t *testing.T) {
	s := fixedSettings(300)
	s.WarmupEnabled = true
	s.WarmupDuration = time.Second
	s.WarmupStartRatio = 0.5
	h := newHarness(t, words("one", "two", "three"), s)
	h.clock.SetTickInterval(time.Millisecond)

	h.engine.Play()

	// Effective rate at start is 150 wpm, so the first unit runs 400ms.
	h.clock.Advance(399 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 0 {
		t.Fatalf("first unit ended early at index %d", got)
	}
	h.clock.Advance(1 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Fatalf("index at 400ms = %d, want 1", got)
	}

	// Entering unit two at 400ms: linear progress 0.4 eases to 0.64, so
	// the effective rate is 246 wpm and the unit runs 244ms.
	h.clock.Advance(243 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Fatalf("second unit ended early at index %d", got)
	}
	h.clock.Advance(1 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 2 {
		t.Errorf("index at 644ms = %d, want 2", got)
	}
}

// TestRebuildAfterRateChange doubles the rate mid-unit and verifies the
// remaining fraction is preserved under the new durations.
func TestRebuildAfterRateChange(t *testing.T) {
	h := newHarness(t, words("one", "two", "three"), fixedSettings(300))

	h.engine.Play()
	h.clock.Advance(250 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Fatalf("index = %d, want 1", got)
	}

	// 25% through the second unit; at 600 wpm its duration halves to
	// 100ms, so the remaining 75% is 75ms away.
	h.settings.Rate = 600
	h.engine.Rebuild()

	h.clock.Advance(70 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Fatalf("advanced early after rebuild: index %d", got)
	}
	h.clock.Advance(10 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 2 {
		t.Errorf("index after rebuild boundary = %d, want 2", got)
	}
}

func TestSeekWhilePlayingRestartsTiming(t *testing.T) {
	h := newHarness(t, words("one", "two", "three", "four", "five"), fixedSettings(300))

	h.engine.Play()
	h.clock.Advance(250 * time.Millisecond)

	h.engine.Seek(3)
	snap := h.engine.Snapshot()
	if snap.State != rsvp.StatePlaying || snap.Index != 3 {
		t.Fatalf("after seek: state=%v index=%d", snap.State, snap.Index)
	}

	// The sought unit gets its full duration from the moment of the seek.
	h.clock.Advance(190 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 3 {
		t.Fatalf("sought unit cut short: index %d", got)
	}
	h.clock.Advance(10 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 4 {
		t.Errorf("index = %d, want 4", got)
	}
}

func TestSeekSameIndexIsNoop(t *testing.T) {
	h := newHarness(t, words("one", "two", "three"), fixedSettings(300))

	h.engine.Seek(2)
	units, states := len(h.rec.units), len(h.rec.states)

	h.engine.Seek(2)
	if len(h.rec.units) != units || len(h.rec.states) != states {
		t.Errorf("repeat seek emitted callbacks: units=%v states=%v", h.rec.units, h.rec.states)
	}
}

func TestSeekOutOfRangeClamps(t *testing.T) {
	h := newHarness(t, words("one", "two", "three"), fixedSettings(300))

	h.engine.Seek(99)
	if got := h.engine.Snapshot().Index; got != 2 {
		t.Errorf("index after over-seek = %d, want 2", got)
	}
	h.engine.Seek(-7)
	if got := h.engine.Snapshot().Index; got != 0 {
		t.Errorf("index after under-seek = %d, want 0", got)
	}
}

// TestSeekAfterCompletionResumes seeks back into a finished session and
// plays on from there instead of rewinding to the top.
func TestSeekAfterCompletionResumes(t *testing.T) {
	h := newHarness(t, words("one", "two", "three"), fixedSettings(300))

	h.engine.Play()
	h.clock.Advance(600 * time.Millisecond)
	if got := h.engine.Snapshot().State; got != rsvp.StateCompleted {
		t.Fatalf("state = %v, want completed", got)
	}

	h.engine.Seek(1)
	snap := h.engine.Snapshot()
	if snap.State != rsvp.StatePaused || snap.Index != 1 {
		t.Fatalf("after seek from completed: state=%v index=%d, want paused at 1", snap.State, snap.Index)
	}

	h.engine.Play()
	h.clock.Advance(200 * time.Millisecond)
	if got := h.engine.Snapshot().Index; got != 2 {
		t.Errorf("index = %d, want 2 (play must not rewind a seek)", got)
	}
}

func TestSeekByStepsRelative(t *testing.T) {
	h := newHarness(t, words("one", "two", "three", "four"), fixedSettings(300))

	h.engine.SeekBy(1)
	h.engine.SeekBy(1)
	if got := h.engine.Snapshot().Index; got != 2 {
		t.Fatalf("index = %d, want 2", got)
	}
	h.engine.SeekBy(-1)
	if got := h.engine.Snapshot().Index; got != 1 {
		t.Errorf("index = %d, want 1", got)
	}
	h.engine.SeekBy(-10)
	if got := h.engine.Snapshot().Index; got != 0 {
		t.Errorf("index = %d, want 0", got)
	}
}

func TestStopRewinds(t *testing.T) {
	h := newHarness(t, words("one", "two", "three"), fixedSettings(300))

	h.engine.Play()
	h.clock.Advance(350 * time.Millisecond)
	h.engine.Stop()

	snap := h.engine.Snapshot()
	if snap.State != rsvp.StateIdle || snap.Index != 0 || snap.Elapsed != 0 {
		t.Errorf("after stop: %+v", snap)
	}
	if h.rec.lastState() != rsvp.StateIdle {
		t.Errorf("last state event = %v, want idle", h.rec.lastState())
	}
}

func TestOperationsWithoutSessionAreNoops(t *testing.T) {
	h := newHarness(t, nil, fixedSettings(300))

	h.engine.Play()
	h.engine.Pause()
	h.engine.Toggle()
	h.engine.Stop()
	h.engine.Seek(3)
	h.engine.SeekToTime(time.Second)
	h.engine.SeekBy(-1)
	h.engine.Rebuild()
	h.engine.Suspend()
	h.clock.Advance(time.Second)

	snap := h.engine.Snapshot()
	if snap.State != rsvp.StateIdle || snap.TotalUnits != 0 {
		t.Errorf("snapshot = %+v, want untouched idle", snap)
	}
	if len(h.rec.units) != 0 || len(h.rec.states) != 0 {
		t.Errorf("callbacks fired without a session: units=%v states=%v", h.rec.units, h.rec.states)
	}
}

func TestRedundantPlayAndPauseAreIdempotent(t *testing.T) {
	h := newHarness(t, words("one", "two"), fixedSettings(300))

	h.engine.Play()
	states := len(h.rec.states)
	h.engine.Play()
	if len(h.rec.states) != states {
		t.Error("second Play emitted a state event")
	}

	h.engine.Pause()
	states = len(h.rec.states)
	h.engine.Pause()
	if len(h.rec.states) != states {
		t.Error("second Pause emitted a state event")
	}
}

func TestToggleFlipsPlayback(t *testing.T) {
	h := newHarness(t, words("one", "two"), fixedSettings(300))

	h.engine.Toggle()
	if got := h.engine.Snapshot().State; got != rsvp.StatePlaying {
		t.Fatalf("state after first toggle = %v", got)
	}
	h.engine.Toggle()
	if got := h.engine.Snapshot().State; got != rsvp.StatePaused {
		t.Fatalf("state after second toggle = %v", got)
	}
	h.engine.Toggle()
	if got := h.engine.Snapshot().State; got != rsvp.StatePlaying {
		t.Errorf("state after third toggle = %v", got)
	}
}

func TestPlayAfterCompletionRestartsFromTop(t *testing.T) {
	h := newHarness(t, words("one", "two"), fixedSettings(300))

	h.engine.Play()
	h.clock.Advance(400 * time.Millisecond)
	if got := h.engine.Snapshot().State; got != rsvp.StateCompleted {
		t.Fatalf("state = %v, want completed", got)
	}

	h.engine.Play()
	snap := h.engine.Snapshot()
	if snap.State != rsvp.StatePlaying || snap.Index != 0 || snap.Elapsed != 0 {
		t.Errorf("replay snapshot = %+v, want playing from the top", snap)
	}
}
