package ui

import (
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

func (m *model) initWatcher() {
	if !m.cfg.Watch || m.document.path == "" {
		return
	}
	var err error
	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
	}
}

// watchFile blocks until the document changes on disk. The watch covers the
// parent directory rather than the file so editors that replace the file on
// save keep triggering events.
func (m model) watchFile() tea.Msg {
	if m.watcher == nil {
		return nil
	}
	dir := m.localDir()

	if err := m.watcher.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "error", err)
		return nil
	}

	log.Info("fsnotify watching dir", "dir", dir)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != m.document.path {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			return reloadMsg{}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func (m *model) unwatchFile() {
	if m.watcher == nil {
		return
	}
	if err := m.watcher.Close(); err != nil {
		log.Error("error closing fsnotify watcher", "error", err)
	}
	m.watcher = nil
}

func (m model) localDir() string {
	return filepath.Dir(m.document.path)
}
