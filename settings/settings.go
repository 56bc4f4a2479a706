// Package settings persists and serves the reader's pacing configuration.
// A Store is the single source of truth at runtime: the engine pulls
// snapshots from it, the UI mutates it, viper carries it to and from the
// config file.
package settings

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/skim-reader/skim/rsvp"
	"github.com/skim-reader/skim/rsvp/chunker"
)

const (
	keyRate             = "rate"
	keyChunk            = "chunk"
	keyFixedTiming      = "fixed_timing"
	keyPunctPauses      = "punctuation.pauses"
	keyPauseDuration    = "punctuation.pause_duration"
	keyWarmupEnabled    = "warmup.enabled"
	keyWarmupDuration   = "warmup.duration"
	keyWarmupStartRatio = "warmup.start_ratio"
	keyAutoRestart      = "auto_restart"
	keyComprehension    = "comprehension.interval"
)

// RateSteps is the ladder the rate keys walk. Arbitrary rates from flags
// or the config file are still honored; stepping just snaps to the
// nearest rung in the chosen direction.
var RateSteps = []float64{
	100, 150, 200, 250, 300, 350, 400, 450, 500, 550, 600, 700, 800, 900, 1000,
}

// Store guards a Settings value and mirrors changes into viper.
type Store struct {
	mu sync.RWMutex
	v  *viper.Viper
	s  rsvp.Settings
}

// New builds a store over the given viper; nil means the global one.
func New(v *viper.Viper) *Store {
	if v == nil {
		v = viper.GetViper()
	}
	return &Store{v: v, s: rsvp.DefaultSettings()}
}

// Load pulls the settings out of viper, applying defaults and clamps.
// Call it after the config file and flags have been bound.
func (st *Store) Load() {
	st.mu.Lock()
	defer st.mu.Unlock()
	setDefaults(st.v)
	st.s = rsvp.Settings{
		Rate:                  rsvp.ClampRate(st.v.GetFloat64(keyRate)),
		ChunkSize:             clampChunk(st.v.GetInt(keyChunk)),
		FixedTiming:           st.v.GetBool(keyFixedTiming),
		PunctuationPauses:     st.v.GetBool(keyPunctPauses),
		PauseDuration:         st.v.GetDuration(keyPauseDuration),
		WarmupEnabled:         st.v.GetBool(keyWarmupEnabled),
		WarmupDuration:        st.v.GetDuration(keyWarmupDuration),
		WarmupStartRatio:      clampRatio(st.v.GetFloat64(keyWarmupStartRatio)),
		AutoRestart:           st.v.GetBool(keyAutoRestart),
		ComprehensionInterval: st.v.GetInt(keyComprehension),
	}
	if st.s.PauseDuration < 0 {
		st.s.PauseDuration = 0
	}
	if st.s.WarmupDuration < 0 {
		st.s.WarmupDuration = 0
	}
	if st.s.ComprehensionInterval < 0 {
		st.s.ComprehensionInterval = 0
	}
	log.Debug("settings loaded", "rate", st.s.Rate, "chunk", st.s.ChunkSize)
}

// Snapshot returns the current settings by value. It satisfies the
// engine's SettingsFunc.
func (st *Store) Snapshot() rsvp.Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Update applies fn under the lock, re-clamps the result and mirrors it
// into viper so a later Save persists it. The applied settings are
// returned.
func (st *Store) Update(fn func(*rsvp.Settings)) rsvp.Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
	st.s.Rate = rsvp.ClampRate(st.s.Rate)
	st.s.ChunkSize = clampChunk(st.s.ChunkSize)
	st.s.WarmupStartRatio = clampRatio(st.s.WarmupStartRatio)
	if st.s.PauseDuration < 0 {
		st.s.PauseDuration = 0
	}
	if st.s.WarmupDuration < 0 {
		st.s.WarmupDuration = 0
	}
	if st.s.ComprehensionInterval < 0 {
		st.s.ComprehensionInterval = 0
	}
	st.mirrorLocked()
	return st.s
}

// SetRate clamps and applies a rate, returning what stuck.
func (st *Store) SetRate(wpm float64) float64 {
	return st.Update(func(s *rsvp.Settings) { s.Rate = wpm }).Rate
}

// StepRate walks the rate ladder: positive dir to the next rung up,
// negative down. The applied rate is returned.
func (st *Store) StepRate(dir int) float64 {
	return st.SetRate(NextStep(st.Snapshot().Rate, dir))
}

// NextStep returns the ladder rung adjacent to cur in direction dir,
// clamping at the ends.
func NextStep(cur float64, dir int) float64 {
	if dir >= 0 {
		for _, s := range RateSteps {
			if s > cur {
				return s
			}
		}
		return RateSteps[len(RateSteps)-1]
	}
	for i := len(RateSteps) - 1; i >= 0; i-- {
		if RateSteps[i] < cur {
			return RateSteps[i]
		}
	}
	return RateSteps[0]
}

// Save writes the mirrored settings to the config file in use. With no
// config file configured it is a quiet no-op.
func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.mirrorLocked()
	if st.v.ConfigFileUsed() == "" {
		log.Debug("no config file in use, settings not persisted")
		return nil
	}
	return st.v.WriteConfig()
}

func (st *Store) mirrorLocked() {
	st.v.Set(keyRate, st.s.Rate)
	st.v.Set(keyChunk, st.s.ChunkSize)
	st.v.Set(keyFixedTiming, st.s.FixedTiming)
	st.v.Set(keyPunctPauses, st.s.PunctuationPauses)
	st.v.Set(keyPauseDuration, st.s.PauseDuration)
	st.v.Set(keyWarmupEnabled, st.s.WarmupEnabled)
	st.v.Set(keyWarmupDuration, st.s.WarmupDuration)
	st.v.Set(keyWarmupStartRatio, st.s.WarmupStartRatio)
	st.v.Set(keyAutoRestart, st.s.AutoRestart)
	st.v.Set(keyComprehension, st.s.ComprehensionInterval)
}

func setDefaults(v *viper.Viper) {
	def := rsvp.DefaultSettings()
	v.SetDefault(keyRate, def.Rate)
	v.SetDefault(keyChunk, def.ChunkSize)
	v.SetDefault(keyFixedTiming, def.FixedTiming)
	v.SetDefault(keyPunctPauses, def.PunctuationPauses)
	v.SetDefault(keyPauseDuration, def.PauseDuration)
	v.SetDefault(keyWarmupEnabled, def.WarmupEnabled)
	v.SetDefault(keyWarmupDuration, def.WarmupDuration)
	v.SetDefault(keyWarmupStartRatio, def.WarmupStartRatio)
	v.SetDefault(keyAutoRestart, def.AutoRestart)
	v.SetDefault(keyComprehension, def.ComprehensionInterval)
}

func clampChunk(n int) int {
	if n < chunker.MinChunkSize {
		return chunker.MinChunkSize
	}
	if n > chunker.MaxChunkSize {
		return chunker.MaxChunkSize
	}
	return n
}

func clampRatio(v float64) float64 {
	switch {
	case v != v: // NaN
		return 1
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
