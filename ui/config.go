package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	ShowProgressBar bool
	MaxWidth        uint
	Watch           bool

	// Path of the document being read. Empty when the source came from
	// stdin or a URL.
	Path string

	// Note is the document name shown in the status bar.
	Note string

	// Plain disables markdown flattening before chunking.
	Plain bool

	// For debugging the UI
	TickInterval time.Duration `env:"SKIM_TICK_INTERVAL" envDefault:"33ms"`
}
