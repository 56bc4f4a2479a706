package ui

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestWatchFileReturnsWhenWatcherCloses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("one two three"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Path: path, Note: "notes.md", Plain: true, Watch: true}
	m, _ := newTestModelWith(t, cfg, nil, "one two three")
	if m.watcher == nil {
		t.Fatal("watcher was not created")
	}

	// Bind the model copy before closing so the command sees the same
	// watcher the teardown closes.
	watch := m.watchFile
	done := make(chan tea.Msg, 1)
	go func() { done <- watch() }()

	time.Sleep(50 * time.Millisecond)
	m.unwatchFile()

	select {
	case msg := <-done:
		if msg != nil {
			t.Errorf("watchFile returned %v, want nil after close", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchFile still running after the watcher closed")
	}
}

func TestWatchFileWithoutWatcherReturnsNil(t *testing.T) {
	m, _ := newTestModel(t, "one two three")
	if m.watcher != nil {
		t.Fatal("watcher should be off by default")
	}
	if msg := m.watchFile(); msg != nil {
		t.Errorf("watchFile returned %v, want nil without a watcher", msg)
	}
}
