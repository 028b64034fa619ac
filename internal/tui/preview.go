package tui

import (
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/Zuo-Peng/slopwatch/internal/render"
	"github.com/Zuo-Peng/slopwatch/internal/watcher"
)

// newViewport creates a new viewport model with the given dimensions.
func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.Style = stylePanelBorder
	return vp
}

// refreshPreview shows the selected post in the preview pane. It only
// re-renders when the selection or its state changed.
func (m *model) refreshPreview() {
	e, ok := m.selected()
	if !ok {
		m.preview.SetContent("")
		m.previewKey = ""
		return
	}
	key := previewCacheKey(e, m.query)
	if key == m.previewKey {
		return
	}

	ev := e.ev
	if e.restored {
		ev.Kind = watcher.EventRestored
	}
	m.preview.SetContent(render.Post(ev, render.Options{
		Width: m.previewWidth(),
		Color: true,
		Query: m.query,
	}))
	m.preview.GotoTop()
	m.previewKey = key
}

func previewCacheKey(e entry, query string) string {
	k := string(e.ev.PostID) + "|" + query
	if e.restored {
		k += "|restored"
	}
	return k
}
