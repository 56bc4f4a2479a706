package settings

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// MaxHistoryEntries caps the reading history. Past it, the documents
// read longest ago are evicted.
const MaxHistoryEntries = 500

// HistoryEntry records where a reading session left off in a document.
type HistoryEntry struct {
	Path     string
	Note     string
	Position float64 // timeline fraction completed, 0 for the top, 1 for done
	Rate     float64
	Words    int
	LastRead time.Time
}

// History is the per-document position store behind "resume where you
// left off". Entries are keyed by absolute document path and persisted
// as a single gob file next to the config.
type History struct {
	mu      sync.Mutex
	path    string
	entries map[string]HistoryEntry
	dirty   bool
}

// OpenHistory loads the history file at path. A missing or unreadable
// file yields an empty history; the next Save recreates it.
func OpenHistory(path string) *History {
	h := &History{path: path, entries: make(map[string]HistoryEntry)}
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debug("could not open history", "path", path, "error", err)
		}
		return h
	}
	defer f.Close() //nolint:errcheck
	if err := gob.NewDecoder(f).Decode(&h.entries); err != nil {
		log.Debug("could not decode history, starting fresh", "path", path, "error", err)
		h.entries = make(map[string]HistoryEntry)
	}
	return h
}

// Lookup returns the stored entry for a document path.
func (h *History) Lookup(docPath string) (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[docPath]
	return e, ok
}

// Record stores an entry under its path, stamping it with the current
// time. Entries without a path are dropped; stdin and URLs have no
// stable identity to resume from.
func (h *History) Record(e HistoryEntry) {
	if e.Path == "" {
		return
	}
	if e.Position < 0 {
		e.Position = 0
	}
	if e.Position > 1 {
		e.Position = 1
	}
	e.LastRead = time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[e.Path] = e
	for len(h.entries) > MaxHistoryEntries {
		h.evictOldestLocked()
	}
	h.dirty = true
}

// Len reports how many documents are tracked.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Save writes the history to disk via a temp file and rename. It is a
// no-op when nothing was recorded since the last save.
func (h *History) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err != nil {
		return err
	}

	tmp := h.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(h.entries)
	closeErr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	if err := os.Rename(tmp, h.path); err != nil {
		return err
	}

	h.dirty = false
	return nil
}

func (h *History) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	for key, e := range h.entries {
		if oldestKey == "" || e.LastRead.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.LastRead
		}
	}
	if oldestKey != "" {
		delete(h.entries, oldestKey)
	}
}
