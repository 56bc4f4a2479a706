// Package ui provides the terminal reading interface for skim.
package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/termenv"
	"golang.org/x/time/rate"

	"github.com/skim-reader/skim/rsvp"
	"github.com/skim-reader/skim/rsvp/chunker"
	"github.com/skim-reader/skim/settings"
)

const (
	statusMessageTimeout = time.Second * 2 // how long to show status messages like "copied!"
	ellipsis             = "…"
	keyEsc               = "esc"

	// how many units the shift-arrow jump covers
	jumpUnits = 10

	// engine callbacks are buffered here until the program loop drains
	// them; a slow terminal drops events rather than stalling the clock
	eventBufferSize = 64

	// minimum delay between disk reloads triggered by fsnotify
	reloadInterval = 500 * time.Millisecond
)

var config Config

// GENERAL MESSAGES

type (
	unitChangedMsg struct {
		unit  rsvp.DisplayUnit
		index int
	}
	playStateMsg            rsvp.Snapshot
	comprehensionMsg        struct{}
	statusMessageTimeoutMsg struct{}
	editorFinishedMsg       struct{ err error }
	reloadMsg               struct{}
)

// documentLoadedMsg is sent once a document has been chunked and handed to
// the engine. text is non-empty when the document was re-read from disk.
type documentLoadedMsg struct {
	units    []rsvp.DisplayUnit
	words    int
	text     string
	reloaded bool
	resumed  bool
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type readerState int

const (
	readerStateReading readerState = iota
	readerStateStatusMessage
)

type readerStatusMessage struct {
	message string
	isError bool
}

type document struct {
	path string
	note string
	text string
}

type model struct {
	cfg     Config
	store   *settings.Store
	history *settings.History
	engine  *rsvp.Engine

	document document

	width  int
	height int

	state    readerState
	showHelp bool

	// Mirror of the engine's last reported display state. The engine is
	// the source of truth; these exist so View never has to lock it.
	unit  rsvp.DisplayUnit
	index int
	snap  rsvp.Snapshot
	units []rsvp.DisplayUnit

	statusMessage      string
	statusIsError      bool
	statusMessageTimer *time.Timer

	progress progress.Model

	// Engine callbacks land here; waitForEngineEvent feeds them back into
	// the program loop.
	events chan tea.Msg

	watcher *fsnotify.Watcher
	reloads *rate.Limiter

	fatalErr error
}

// NewProgram returns a program that reads the given document text.
// history may be nil when position tracking is off.
func NewProgram(cfg Config, store *settings.Store, history *settings.History, text string) *tea.Program {
	log.Debug("starting reader", "path", cfg.Path, "watch", cfg.Watch)
	config = cfg
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithReportFocus()}
	m := newModel(cfg, store, history, text, rsvp.NewTimerClock(cfg.TickInterval))
	return tea.NewProgram(m, opts...)
}

func newModel(cfg Config, store *settings.Store, history *settings.History, text string, clock rsvp.ClockSource) model {
	events := make(chan tea.Msg, eventBufferSize)
	engine := rsvp.New(clock, store.Snapshot, rsvp.Callbacks{
		UnitChanged: func(u rsvp.DisplayUnit, i int) {
			sendEvent(events, unitChangedMsg{unit: u, index: i})
		},
		StateChanged: func(s rsvp.Snapshot) {
			sendEvent(events, playStateMsg(s))
		},
		ComprehensionDue: func() {
			sendEvent(events, comprehensionMsg{})
		},
	})
	engine.SetGate(rsvp.WordIntervalGate(store.Snapshot().ComprehensionInterval))

	m := model{
		cfg:      cfg,
		store:    store,
		history:  history,
		engine:   engine,
		document: document{path: cfg.Path, note: cfg.Note, text: text},
		state:    readerStateReading,
		progress: newProgressBar(),
		events:   events,
		reloads:  rate.NewLimiter(rate.Every(reloadInterval), 1),
	}
	m.initWatcher()
	return m
}

// sendEvent forwards an engine callback to the program loop. Callbacks run
// under the engine lock, so the send must never block; a full buffer drops
// the event and the next state report catches the UI up.
func sendEvent(events chan<- tea.Msg, msg tea.Msg) {
	select {
	case events <- msg:
	default:
		log.Debug("dropping engine event", "type", fmt.Sprintf("%T", msg))
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.waitForEngineEvent,
		loadDocument(m.engine, m.chunkOptions(), m.document.text, m.initialLoadOptions()),
	}
	if m.cfg.Watch && m.document.path != "" && m.watcher != nil {
		cmds = append(cmds, m.watchFile)
	}
	return tea.Batch(cmds...)
}

// initialLoadOptions starts playback from the top, or from the position
// a previous session on this document recorded. Finished and untouched
// documents start over.
func (m model) initialLoadOptions() loadOptions {
	lo := loadOptions{play: true}
	if m.history == nil || m.document.path == "" {
		return lo
	}
	if e, ok := m.history.Lookup(m.document.path); ok && e.Position > 0 && e.Position < 1 {
		lo.resumeAt = e.Position
		lo.resumed = true
	}
	return lo
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", keyEsc, "ctrl+c":
			m.unload()
			return m, tea.Quit

		case " ":
			m.engine.Toggle()

		case "right", "l":
			m.engine.SeekBy(1)

		case "left", "h":
			m.engine.SeekBy(-1)

		case "shift+right", "L":
			m.engine.SeekBy(jumpUnits)

		case "shift+left", "H":
			m.engine.SeekBy(-jumpUnits)

		case "home", "g":
			m.engine.Seek(0)

		case "end", "G":
			m.engine.Seek(m.snap.TotalUnits - 1)

		case "up", "k", "+", "=":
			return m.adjustRate(1)

		case "down", "j", "-", "_":
			return m.adjustRate(-1)

		case "]":
			return m.adjustChunk(1)

		case "[":
			return m.adjustChunk(-1)

		case "w":
			m.engine.RestartWarmup()
			cmds = append(cmds, m.showStatusMessage(readerStatusMessage{"Warmup restarted", false}))

		case "c":
			// Copy using OSC 52
			termenv.Copy(m.document.text)
			// Copy using native system clipboard
			_ = clipboard.WriteAll(m.document.text)
			cmds = append(cmds, m.showStatusMessage(readerStatusMessage{"Copied contents", false}))

		case "e":
			if m.document.path != "" {
				log.Info("opening editor", "file", m.document.path)
				return m, openEditor(m.document.path)
			}

		case "r":
			return m.reload()

		case "?":
			m.toggleHelp()
		}

	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)

	case tea.FocusMsg:
		// Focus regain never resumes playback on its own; offer the
		// choice when the focus loss is what paused it.
		snap := m.engine.Snapshot()
		if snap.State == rsvp.StatePaused && snap.Interrupted {
			cmds = append(cmds, m.showStatusMessage(readerStatusMessage{"Paused while away: space to resume", false}))
		}

	case tea.BlurMsg:
		m.engine.Suspend()

	case unitChangedMsg:
		m.unit = msg.unit
		m.index = msg.index
		m.snap = m.engine.Snapshot()
		cmds = append(cmds, m.waitForEngineEvent)

	case playStateMsg:
		m.snap = rsvp.Snapshot(msg)
		cmds = append(cmds, m.waitForEngineEvent)

	case comprehensionMsg:
		cmds = append(cmds,
			m.showStatusMessage(readerStatusMessage{"Comprehension check: space to continue", false}),
			m.waitForEngineEvent)

	case documentLoadedMsg:
		if msg.text != "" {
			m.document.text = msg.text
		}
		m.units = msg.units
		m.snap = m.engine.Snapshot()
		if msg.reloaded {
			note := fmt.Sprintf("Reloaded: %s words", humanize.Comma(int64(msg.words)))
			cmds = append(cmds, m.showStatusMessage(readerStatusMessage{note, false}))
		}
		if msg.resumed {
			note := fmt.Sprintf("Resuming at %.0f%%", m.progressFrac()*100)
			cmds = append(cmds, m.showStatusMessage(readerStatusMessage{note, false}))
		}

	case reloadMsg:
		cmds = append(cmds, m.watchFile)
		if m.reloads.Allow() {
			var cmd tea.Cmd
			m, cmd = m.reload()
			cmds = append(cmds, cmd)
		}

	case statusMessageTimeoutMsg:
		m.state = readerStateReading

	case editorFinishedMsg:
		if msg.err != nil {
			log.Error("editor failed", "error", msg.err)
			cmds = append(cmds, m.showStatusMessage(readerStatusMessage{"Editor failed", true}))
			break
		}
		return m.reload()

	case errMsg:
		m.fatalErr = msg.err
		m.unload()
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

// FatalErr reports the error that forced the reader to exit, if any.
func (m model) FatalErr() error { return m.fatalErr }

func (m model) waitForEngineEvent() tea.Msg {
	return <-m.events
}

func (m model) adjustRate(dir int) (model, tea.Cmd) {
	wpm := m.store.StepRate(dir)
	m.engine.Rebuild()
	m.snap = m.engine.Snapshot()
	return m, m.showStatusMessage(readerStatusMessage{fmt.Sprintf("%.0f wpm", wpm), false})
}

func (m model) adjustChunk(delta int) (model, tea.Cmd) {
	s := m.store.Update(func(s *rsvp.Settings) {
		s.ChunkSize += delta
	})
	cmds := []tea.Cmd{
		m.showStatusMessage(readerStatusMessage{fmt.Sprintf("Chunk size %d", s.ChunkSize), false}),
		loadDocument(m.engine, m.chunkOptions(), m.document.text, m.resumeOptions()),
	}
	return m, tea.Batch(cmds...)
}

// reload re-reads the document from disk, or rewinds to the top for
// sources that have no file behind them.
func (m model) reload() (model, tea.Cmd) {
	if m.document.path == "" {
		m.engine.Stop()
		m.engine.Play()
		return m, nil
	}
	opts := m.resumeOptions()
	opts.reloaded = true
	return m, reloadDocument(m.engine, m.chunkOptions(), m.document.path, opts)
}

// resumeOptions captures the current timeline position so a rebuilt
// session can continue where this one is.
func (m model) resumeOptions() loadOptions {
	snap := m.engine.Snapshot()
	opts := loadOptions{play: snap.State == rsvp.StatePlaying}
	if total := snap.Elapsed + snap.Remaining; total > 0 {
		opts.resumeAt = float64(snap.Elapsed) / float64(total)
	}
	return opts
}

func (m model) chunkOptions() chunker.Options {
	return chunker.Options{
		ChunkSize: m.store.Snapshot().ChunkSize,
		Markdown:  !m.cfg.Plain,
	}
}

func (m *model) showStatusMessage(msg readerStatusMessage) tea.Cmd {
	m.state = readerStateStatusMessage
	m.statusMessage = msg.message
	m.statusIsError = msg.isError
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m *model) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.width, m.height)
}

func (m *model) setSize(w, h int) {
	m.width = w
	m.height = h
	m.progress.Width = max(0, m.contentWidth()-4)
}

// contentWidth is the width the reading line may occupy.
func (m model) contentWidth() int {
	w := m.width
	if m.cfg.MaxWidth > 0 && int(m.cfg.MaxWidth) < w { //nolint:gosec
		w = int(m.cfg.MaxWidth) //nolint:gosec
	}
	return w
}

func (m *model) unload() {
	log.Debug("unload")
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.recordPosition()
	m.engine.Stop()
	m.unwatchFile()
}

// recordPosition notes where this session stopped so the next open of
// the document can pick up there. Must run before the engine resets.
func (m *model) recordPosition() {
	if m.history == nil || m.document.path == "" {
		return
	}
	snap := m.engine.Snapshot()
	var frac float64
	if total := snap.Elapsed + snap.Remaining; total > 0 {
		frac = float64(snap.Elapsed) / float64(total)
	}
	m.history.Record(settings.HistoryEntry{
		Path:     m.document.path,
		Note:     m.document.note,
		Position: frac,
		Rate:     m.store.Snapshot().Rate,
		Words:    snap.TotalWords,
	})
}

// COMMANDS

// loadOptions control where playback lands after a (re)load.
type loadOptions struct {
	play     bool
	resumeAt float64 // timeline fraction to restore, 0 for the top
	reloaded bool
	resumed  bool // position came from the reading history
}

func loadDocument(engine *rsvp.Engine, opts chunker.Options, text string, lo loadOptions) tea.Cmd {
	return func() tea.Msg {
		units := chunker.New(opts).Chunk(text)
		if err := engine.Load(units); err != nil {
			return errMsg{err}
		}
		if lo.resumeAt > 0 {
			snap := engine.Snapshot()
			total := snap.Elapsed + snap.Remaining
			engine.SeekToTime(time.Duration(lo.resumeAt * float64(total)))
		}
		if lo.play {
			engine.Play()
		}
		snap := engine.Snapshot()
		return documentLoadedMsg{
			units:    units,
			words:    snap.TotalWords,
			reloaded: lo.reloaded,
			resumed:  lo.resumed,
		}
	}
}

func reloadDocument(engine *rsvp.Engine, opts chunker.Options, path string, lo loadOptions) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return errMsg{err}
		}
		text := chunker.StripFrontmatter(string(data))
		msg := loadDocument(engine, opts, text, lo)()
		if loaded, ok := msg.(documentLoadedMsg); ok {
			loaded.text = text
			return loaded
		}
		return msg
	}
}

func openEditor(path string) tea.Cmd {
	c, err := editor.Cmd("Skim", path)
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return editorFinishedMsg{err}
	})
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}
