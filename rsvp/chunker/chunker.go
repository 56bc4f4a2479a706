// Package chunker turns source text into the display units the rsvp
// engine paces. Markdown sources are flattened to plain prose first; the
// words are then grouped into fixed-size chunks.
package chunker

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/skim-reader/skim/rsvp"
)

// Chunk size bounds in words per display unit.
const (
	MinChunkSize = 1
	MaxChunkSize = 10
)

// Options configure a Chunker.
type Options struct {
	// ChunkSize is how many words go into one display unit, clamped to
	// [MinChunkSize, MaxChunkSize].
	ChunkSize int

	// Markdown flattens markdown structure to plain prose before
	// chunking. Code blocks are dropped entirely in that mode.
	Markdown bool
}

// Chunker splits source text into display units.
type Chunker struct {
	size     int
	markdown bool
}

// New returns a chunker for the given options.
func New(opts Options) *Chunker {
	size := opts.ChunkSize
	if size < MinChunkSize {
		size = MinChunkSize
	}
	if size > MaxChunkSize {
		size = MaxChunkSize
	}
	return &Chunker{size: size, markdown: opts.Markdown}
}

// Chunk produces the unit sequence for src. Word counts and significant
// lengths are filled in; durations are derived later, when the engine
// loads the session.
func (c *Chunker) Chunk(src string) []rsvp.DisplayUnit {
	if c.markdown {
		src = StripMarkdown(src)
	}
	fields := strings.Fields(src)
	if len(fields) == 0 {
		return nil
	}

	units := make([]rsvp.DisplayUnit, 0, (len(fields)+c.size-1)/c.size)
	for start := 0; start < len(fields); start += c.size {
		end := start + c.size
		if end > len(fields) {
			end = len(fields)
		}
		group := fields[start:end]

		longest := 0
		for _, w := range group {
			if n := SignificantLength(w); n > longest {
				longest = n
			}
		}

		joined := strings.Join(group, " ")
		units = append(units, rsvp.DisplayUnit{
			SourceText:           joined,
			RenderForm:           joined,
			MaxSignificantLength: longest,
			WordCount:            len(group),
		})
	}
	return units
}

// SignificantLength counts the runes of a word once punctuation is
// stripped from both ends. Interior punctuation still counts, so "don't"
// is five and "(word)" is four.
func SignificantLength(word string) int {
	trimmed := strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return len([]rune(trimmed))
}

// StripMarkdown flattens markdown to the prose a reader would pace
// through: headings, emphasis, links and list items keep their text, code
// blocks and raw HTML disappear, and whitespace is normalized.
func StripMarkdown(src string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(src))
	doc := md.Parser().Parse(reader)

	var buf strings.Builder
	flatten(doc, reader.Source(), &buf)

	return strings.Join(strings.Fields(buf.String()), " ")
}

func flatten(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		// Inline code is usually a word in the sentence; keep its text.
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.AutoLink:
		buf.Write(n.URL(source))
		return

	case *ast.Image:
		// Show the alt text, if any; the image itself has no prose.
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			flatten(c, source, buf)
		}
		buf.WriteByte(' ')
		return
	}

	// Everything else contributes its children's text. Block-level nodes
	// get a trailing separator so adjacent blocks do not fuse into one
	// word.
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		flatten(c, source, buf)
	}
	if node.Type() == ast.TypeBlock {
		buf.WriteByte(' ')
	}
}

// StripFrontmatter drops a leading YAML frontmatter block, fences
// included.
func StripFrontmatter(src string) string {
	const fence = "---"
	rest, ok := strings.CutPrefix(src, fence)
	if !ok || (!strings.HasPrefix(rest, "\n") && !strings.HasPrefix(rest, "\r\n")) {
		return src
	}
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return src
	}
	after := rest[end+1+len(fence):]
	if i := strings.IndexByte(after, '\n'); i >= 0 {
		return after[i+1:]
	}
	return ""
}
