package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/slopwatch/internal/classifier"
	"github.com/Zuo-Peng/slopwatch/internal/render"
	"github.com/Zuo-Peng/slopwatch/internal/watcher"
)

// linesPerItem is the number of terminal lines each post occupies.
const linesPerItem = 2

// renderList renders the left panel: the visible posts, newest first.
func (m model) renderList(width, height int) string {
	if len(m.visible) == 0 {
		msg := "Waiting for posts"
		if m.query != "" || m.slopOnly {
			msg = "No matching posts"
		}
		return lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(msg)
	}

	var lines []string
	for i, idx := range m.visible {
		if i < m.listOffset {
			continue
		}
		if len(lines)+linesPerItem > height {
			break
		}
		lines = append(lines, formatEntry(m.entries[idx], width, i == m.cursor)...)
	}

	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func verdictTag(e entry) string {
	switch {
	case e.restored:
		return styleVerdictOther.Render("RESTORED")
	case e.ev.Kind == watcher.EventSkipped:
		return styleVerdictOther.Render("SKIP")
	case e.ev.Verdict == classifier.Flagged:
		return styleVerdictSlop.Render("SLOP")
	default:
		return styleVerdictGenuine.Render("OK")
	}
}

// formatEntry formats a post as two lines:
//
//	line 1: [>] verdict  time  post id
//	line 2:    snippet (dimmed)
func formatEntry(e entry, width int, selected bool) []string {
	id := string(e.ev.PostID)
	idMax := width - 2 - 9 - 9
	if idMax < 0 {
		idMax = 0
	}
	if runewidth.StringWidth(id) > idMax {
		id = runewidth.TruncateLeft(id, runewidth.StringWidth(id)-idMax, "")
	}

	line1 := fmt.Sprintf("%s %s %s", verdictTag(e), e.ev.Time.Format("15:04:05"), id)
	if selected {
		line1 = styleListSelected.Render("> ") + line1
	} else {
		line1 = "  " + line1
	}

	snippet := e.ev.Text
	if snippet == "" {
		snippet = "(" + e.ev.Reason + ")"
	}
	snippetMax := width - 4
	if snippetMax < 0 {
		snippetMax = 0
	}
	snippet = render.Truncate(snippet, snippetMax)
	line2 := "    " + lipgloss.NewStyle().Foreground(colorDim).Render(snippet)

	return []string{line1, line2}
}

// adjustListScroll keeps the cursor visible within the list viewport.
func (m *model) adjustListScroll(listHeight int) {
	visibleItems := listHeight / linesPerItem
	if visibleItems < 1 {
		visibleItems = 1
	}
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+visibleItems {
		m.listOffset = m.cursor - visibleItems + 1
	}
}
