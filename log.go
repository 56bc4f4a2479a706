package main

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
)

// setupLog sets up a logfile when SKIM_LOGFILE is set, discarding log
// output otherwise so it cannot corrupt the reading view.
func setupLog() (func() error, error) {
	logFile := os.Getenv("SKIM_LOGFILE")
	if logFile == "" {
		log.SetOutput(io.Discard)
		return func() error { return nil }, nil
	}
	f, err := tea.LogToFileWith(logFile, "skim", log.Default())
	if err != nil {
		return nil, err
	}
	log.SetLevel(log.DebugLevel)
	return f.Close, nil
}
