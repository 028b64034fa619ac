package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/slopwatch/internal/classifier"
	"github.com/Zuo-Peng/slopwatch/internal/watcher"
)

const (
	colorReset   = "\033[0m"
	colorSlop    = "\033[1;31m" // bold red
	colorGenuine = "\033[1;32m" // bold green
	colorInfo    = "\033[1;34m" // bold blue
	colorDim     = "\033[2m"
	colorHit     = "\033[43m" // yellow background
)

type Options struct {
	Width int    // wrap width (0 = no wrap)
	Color bool   // emit ANSI colors
	Query string // terms to highlight in post text
}

// highlightKeywords wraps case-insensitive matches of query terms in the hit color.
func highlightKeywords(text, query string) string {
	if query == "" {
		return text
	}
	for _, term := range strings.Fields(query) {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			orig := text[pos : pos+len(term)]
			replacement := colorHit + orig + colorReset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// indentLines prepends each line of text with the given prefix.
func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// Truncate shortens s to fit width columns, appending "…" when cut.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

func paint(color, s string, on bool) string {
	if !on {
		return s
	}
	return color + s + colorReset
}

// VerdictLabel is the upper-case verdict tag shown next to a post.
func VerdictLabel(v classifier.Verdict) string {
	if v == classifier.Flagged {
		return "SLOP"
	}
	return "GENUINE"
}

// Event formats one watcher event as a single log-style line.
func Event(e watcher.Event, opts Options) string {
	ts := paint(colorDim, e.Time.Format("15:04:05"), opts.Color)
	width := opts.Width
	if width <= 0 {
		width = 100
	}
	snippet := func() string { return Truncate(e.Text, width/2) }

	switch e.Kind {
	case watcher.EventPass:
		return fmt.Sprintf("%s %s %d new, %d seen, %d in flight", ts,
			paint(colorInfo, "PASS", opts.Color), e.NewPosts, e.LedgerSize, e.InFlight)
	case watcher.EventSkipped:
		return fmt.Sprintf("%s %s %s (%s)", ts, paint(colorDim, "SKIP", opts.Color), e.PostID, e.Reason)
	case watcher.EventClassified:
		color := colorGenuine
		if e.Verdict == classifier.Flagged {
			color = colorSlop
		}
		return fmt.Sprintf("%s %s %s %s", ts, paint(color, VerdictLabel(e.Verdict), opts.Color), e.PostID, snippet())
	case watcher.EventAnnotateFailed:
		return fmt.Sprintf("%s %s %s annotate failed: %s", ts, paint(colorSlop, "SLOP", opts.Color), e.PostID, e.Reason)
	case watcher.EventRestored:
		return fmt.Sprintf("%s %s %s", ts, paint(colorInfo, "RESTORED", opts.Color), e.PostID)
	case watcher.EventState:
		return fmt.Sprintf("%s %s %s", ts, paint(colorInfo, "STATE", opts.Color), e.State)
	case watcher.EventCredential:
		return fmt.Sprintf("%s %s api key updated", ts, paint(colorInfo, "KEY", opts.Color))
	default:
		return fmt.Sprintf("%s %s", ts, e.Kind)
	}
}

// Post renders a classified post for the preview pane: a header line followed
// by the full text, indented and wrapped to opts.Width.
func Post(e watcher.Event, opts Options) string {
	var b strings.Builder
	writeLine := func(s string) {
		for _, wl := range wrapLine(s, opts.Width) {
			b.WriteString(wl)
			b.WriteString("\n")
		}
	}

	label := VerdictLabel(e.Verdict)
	color := colorGenuine
	switch e.Kind {
	case watcher.EventSkipped:
		label, color = "SKIPPED ("+e.Reason+")", colorDim
	case watcher.EventRestored:
		label, color = "RESTORED", colorInfo
	default:
		if e.Verdict == classifier.Flagged {
			color = colorSlop
		}
	}

	writeLine(fmt.Sprintf("%s %s", paint(color, label, opts.Color), paint(colorDim, string(e.PostID), opts.Color)))
	writeLine(paint(colorDim, e.Time.Format("2006-01-02 15:04:05"), opts.Color))
	writeLine("")

	text := e.Text
	if text == "" {
		text = "(no text)"
	}
	if opts.Color {
		text = highlightKeywords(text, opts.Query)
	}
	for _, tl := range strings.Split(indentLines(text, "  "), "\n") {
		writeLine(tl)
	}
	return b.String()
}

// Summary is the closing report of a one-shot scan.
type Summary struct {
	Passes   int
	Posts    int
	Skipped  int
	Slop     int
	Genuine  int
	Failures int
}

// Add folds e into the summary.
func (s *Summary) Add(e watcher.Event) {
	switch e.Kind {
	case watcher.EventPass:
		s.Passes++
		s.Posts += e.NewPosts
	case watcher.EventSkipped:
		s.Skipped++
	case watcher.EventClassified:
		if e.Verdict == classifier.Flagged {
			s.Slop++
		} else {
			s.Genuine++
		}
	case watcher.EventAnnotateFailed:
		s.Slop++
		s.Failures++
	}
}

func (s Summary) String() string {
	line := fmt.Sprintf("%d posts: %d slop, %d genuine, %d skipped", s.Posts, s.Slop, s.Genuine, s.Skipped)
	if s.Failures > 0 {
		line += fmt.Sprintf(" (%d could not be annotated)", s.Failures)
	}
	return line
}
