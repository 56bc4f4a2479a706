// Package rsvp implements the pacing core of a rapid serial visual
// presentation reader: it times display units at a words-per-minute rate,
// ramps the rate up after a cold start, keeps a seekable timeline of the
// session, and runs the playback state machine against a pluggable clock.
//
// The engine is presentation-agnostic. It emits callbacks when the unit on
// screen or the playback state changes and leaves drawing entirely to its
// caller.
package rsvp
