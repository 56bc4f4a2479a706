package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/skim-reader/skim/rsvp"
)

const statusBarHeight = 1

// contextRadius is how many units either side of the current one the
// paused context line shows.
const contextRadius = 3

var (
	readerHelpHeight int

	fuchsia   = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	darkRed   = lipgloss.AdaptiveColor{Light: "#C74665", Dark: "#76323F"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true)

	statusBarPosStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarMessagePosStyle = lipgloss.NewStyle().
					Foreground(mintGreen).
					Background(darkGreen).
					Render

	statusBarMessageHelpStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#B6FFE4")).
					Background(darkGreen).
					Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFD2D2")).
				Background(darkRed).
				Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render

	unitStyle = lipgloss.NewStyle().
			Bold(true)

	faintStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg)

	contextCurrentStyle = lipgloss.NewStyle().
				Underline(true)

	completedStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true)
)

func skimLogoView() string {
	return logoStyle.Render(" Skim ")
}

func newProgressBar() progress.Model {
	return progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
}

func (m model) View() string {
	if m.fatalErr != nil {
		return "\n  " + statusBarErrorStyle(" ERROR ") + "  " + m.fatalErr.Error() + "\n\n"
	}

	var b strings.Builder
	fmt.Fprint(&b, m.readingView()+"\n")

	// Footer
	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}

	return b.String()
}

// readingView renders the unit currently on display, centered in the space
// above the status bar.
func (m model) readingView() string {
	h := m.height - statusBarHeight
	if m.showHelp {
		if readerHelpHeight == 0 {
			readerHelpHeight = strings.Count(m.helpView(), "\n")
		}
		h -= statusBarHeight + readerHelpHeight
	}
	if h < 1 {
		h = 1
	}

	content := m.unitView()
	if ctx := m.contextView(); ctx != "" {
		content += "\n\n" + ctx
	}
	if config.ShowProgressBar && m.snap.TotalUnits > 0 {
		content += "\n\n" + m.progress.ViewAs(m.progressFrac())
	}

	return lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center, content)
}

func (m model) unitView() string {
	switch {
	case m.snap.TotalUnits == 0:
		return faintStyle.Render("Loading" + ellipsis)
	case m.snap.State == rsvp.StateCompleted:
		words := humanize.Comma(int64(m.snap.TotalWords))
		return completedStyle.Render(fmt.Sprintf("Read %s words", words))
	case m.snap.State == rsvp.StateIdle:
		return faintStyle.Render("Press space to begin")
	}

	text := m.unit.RenderForm
	if text == "" {
		text = m.unit.SourceText
	}
	if w := max(1, m.contentWidth()-2); runewidth.StringWidth(text) > w {
		text = wordwrap.String(text, w)
	}
	return unitStyle.Render(text)
}

// contextView lines up the units around the current one so a paused
// reader can reorient. Empty while playing.
func (m model) contextView() string {
	if m.snap.State != rsvp.StatePaused || len(m.units) == 0 {
		return ""
	}

	lo := max(0, m.index-contextRadius)
	hi := min(len(m.units)-1, m.index+contextRadius)
	parts := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		text := m.units[i].SourceText
		if i == m.index {
			parts = append(parts, contextCurrentStyle.Render(text))
			continue
		}
		parts = append(parts, faintStyle.Render(text))
	}

	line := strings.Join(parts, " ")
	if w := m.contentWidth() - 2; w > 0 {
		line = wordwrap.String(line, w)
	}
	return line
}

func (m model) progressFrac() float64 {
	total := m.snap.Elapsed + m.snap.Remaining
	if total <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, float64(m.snap.Elapsed)/float64(total)))
}

func (m model) statusBarView(b *strings.Builder) {
	const (
		minPercent               float64 = 0.0
		maxPercent               float64 = 1.0
		percentToStringMagnitude float64 = 100.0
	)

	showStatusMessage := m.state == readerStateStatusMessage
	showError := showStatusMessage && m.statusIsError

	// Logo
	logo := skimLogoView()

	// Timeline position
	percent := math.Max(minPercent, math.Min(maxPercent, m.progressFrac()))
	position := fmt.Sprintf(" %3.f%% ", percent*percentToStringMagnitude)
	switch {
	case showError:
		position = statusBarErrorStyle(position)
	case showStatusMessage:
		position = statusBarMessagePosStyle(position)
	default:
		position = statusBarPosStyle(position)
	}

	// "Help" note
	var helpNote string
	switch {
	case showError:
		helpNote = statusBarErrorStyle(" ? Help ")
	case showStatusMessage:
		helpNote = statusBarMessageHelpStyle(" ? Help ")
	default:
		helpNote = statusBarHelpStyle(" ? Help ")
	}

	// Note
	var note string
	if showStatusMessage {
		note = m.statusMessage
	} else {
		note = m.playbackNote()
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(position)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	switch {
	case showError:
		note = statusBarErrorStyle(note)
	case showStatusMessage:
		note = statusBarMessageStyle(note)
	default:
		note = statusBarNoteStyle(note)
	}

	// Empty space
	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(position)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := strings.Repeat(" ", padding)
	switch {
	case showError:
		emptySpace = statusBarErrorStyle(emptySpace)
	case showStatusMessage:
		emptySpace = statusBarMessageStyle(emptySpace)
	default:
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		position,
		helpNote,
	)
}

// playbackNote summarizes playback for the status bar.
func (m model) playbackNote() string {
	note := m.document.note
	if note == "" {
		note = "stdin"
	}
	total := m.snap.TotalUnits
	pos := min(m.index+1, total)

	switch m.snap.State {
	case rsvp.StatePlaying:
		wpm := m.store.Snapshot().Rate
		s := fmt.Sprintf("%s | Playing (%d/%d) %.0f wpm", note, pos, total, wpm)
		if m.snap.WarmupActive {
			s += " | warming up"
		}
		return fmt.Sprintf("%s | %s left", s, formatDuration(m.snap.Remaining))
	case rsvp.StatePaused:
		if m.snap.Interrupted {
			return fmt.Sprintf("%s | Paused (%d/%d) | focus lost", note, pos, total)
		}
		return fmt.Sprintf("%s | Paused (%d/%d)", note, pos, total)
	case rsvp.StateCompleted:
		return fmt.Sprintf("%s | Done | %s words", note, humanize.Comma(int64(m.snap.TotalWords)))
	default:
		return note + " | Stopped"
	}
}

func (m model) helpView() (s string) {
	col1 := []string{
		"g/home  restart",
		"G/end   jump to end",
		"w       replay warmup",
		"c       copy contents",
		"e       edit this document",
		"r       reload this document",
		"q       quit",
	}

	s += "\n"
	s += "space    play/pause          " + col1[0] + "\n"
	s += "h/←      back one            " + col1[1] + "\n"
	s += "l/→      forward one         " + col1[2] + "\n"
	s += "H/L      jump ten            " + col1[3] + "\n"
	s += "k/↑      faster              " + col1[4] + "\n"
	s += "j/↓      slower              " + col1[5] + "\n"
	s += "[/]      chunk size          " + col1[6]

	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}

		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
