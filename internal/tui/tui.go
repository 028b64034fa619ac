package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zuo-Peng/slopwatch/internal/classifier"
	"github.com/Zuo-Peng/slopwatch/internal/ledger"
	"github.com/Zuo-Peng/slopwatch/internal/render"
	"github.com/Zuo-Peng/slopwatch/internal/watcher"
)

// Restorer undoes the annotation on a flagged post.
type Restorer interface {
	Restore(ctx context.Context, id ledger.PostID) error
}

// message types

type eventMsg watcher.Event

type restoreDoneMsg struct {
	id  ledger.PostID
	err error
}

type copyDoneMsg struct {
	id  ledger.PostID
	err error
}

// entry is a post shown in the list.
type entry struct {
	ev       watcher.Event
	restored bool
}

// model

type model struct {
	ctx      context.Context
	restorer Restorer

	entries    []entry // arrival order
	visible    []int   // indices into entries, newest first
	cursor     int
	listOffset int

	filterInput textinput.Model
	query       string
	slopOnly    bool
	preview     viewport.Model
	previewKey  string

	state      watcher.State
	summary    render.Summary
	ledgerSize int
	inFlight   int
	notice     string

	width    int
	height   int
	ready    bool
	quitting bool
}

func newModel(ctx context.Context, r Restorer) model {
	ti := textinput.New()
	ti.Placeholder = "Filter..."
	ti.Focus()
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = 256

	return model{
		ctx:         ctx,
		restorer:    r,
		filterInput: ti,
		preview:     viewport.New(0, 0),
	}
}

// Dashboard is the live view of a watch session.
type Dashboard struct {
	p *tea.Program
}

func New(ctx context.Context, r Restorer) *Dashboard {
	m := newModel(ctx, r)
	return &Dashboard{
		p: tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx)),
	}
}

// Send forwards a watcher event to the dashboard. It is safe to call from
// any goroutine and returns without effect once the dashboard has exited.
func (d *Dashboard) Send(e watcher.Event) {
	d.p.Send(eventMsg(e))
}

// Run blocks until the user quits or the context is cancelled.
func (d *Dashboard) Run() error {
	if _, err := d.p.Run(); err != nil && !isContextDone(err) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func isContextDone(err error) bool {
	return errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled)
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.preview = newViewport(m.previewWidth(), m.panelHeight())
		m.previewKey = ""
		m.refreshPreview()
		return m, nil

	case eventMsg:
		m.apply(watcher.Event(msg))
		return m, nil

	case restoreDoneMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("restore %s: %v", msg.id, msg.err)
		} else {
			m.notice = fmt.Sprintf("restored %s", msg.id)
		}
		return m, nil

	case copyDoneMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("clipboard unavailable: %s", msg.id)
		} else {
			m.notice = fmt.Sprintf("copied %s", msg.id)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Enter):
			if e, ok := m.selected(); ok {
				return m, copyCmd(e.ev.PostID)
			}
			return m, nil

		case key.Matches(msg, keys.Restore):
			e, ok := m.selected()
			if !ok {
				return m, nil
			}
			if e.ev.Verdict != classifier.Flagged || e.restored {
				m.notice = "nothing to restore"
				return m, nil
			}
			return m, m.restoreCmd(e.ev.PostID)

		case key.Matches(msg, keys.SlopOnly):
			m.slopOnly = !m.slopOnly
			m.refilter()
			return m, nil

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustListScroll(m.panelHeight())
				m.refreshPreview()
			}
			return m, nil

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.visible)-1 {
				m.cursor++
				m.adjustListScroll(m.panelHeight())
				m.refreshPreview()
			}
			return m, nil

		case key.Matches(msg, keys.PreviewUp):
			m.preview.LineUp(m.panelHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PreviewDn):
			m.preview.LineDown(m.panelHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PageUp):
			m.preview.LineUp(m.panelHeight())
			return m, nil

		case key.Matches(msg, keys.PageDown):
			m.preview.LineDown(m.panelHeight())
			return m, nil
		}

		// remaining keys go to the filter input
		var tiCmd tea.Cmd
		m.filterInput, tiCmd = m.filterInput.Update(msg)
		cmds = append(cmds, tiCmd)

		if q := m.filterInput.Value(); q != m.query {
			m.query = q
			m.refilter()
		}
		return m, tea.Batch(cmds...)

	case tea.MouseMsg:
		if !m.ready || len(m.visible) == 0 {
			return m, nil
		}

		region, itemIdx := m.hitTest(msg.X, msg.Y)

		switch {
		case region == regionList && msg.Button == tea.MouseButtonWheelUp:
			if m.listOffset > 0 {
				m.listOffset--
			}
			return m, nil

		case region == regionList && msg.Button == tea.MouseButtonWheelDown:
			maxOffset := len(m.visible) - m.panelHeight()/linesPerItem
			if maxOffset < 0 {
				maxOffset = 0
			}
			if m.listOffset < maxOffset {
				m.listOffset++
			}
			return m, nil

		case region == regionList && msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
			if itemIdx >= 0 && itemIdx < len(m.visible) && m.cursor != itemIdx {
				m.cursor = itemIdx
				m.adjustListScroll(m.panelHeight())
				m.refreshPreview()
			}
			return m, nil

		case region == regionPreview && (msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown):
			var vpCmd tea.Cmd
			m.preview, vpCmd = m.preview.Update(msg)
			return m, vpCmd
		}
		return m, nil
	}

	return m, tea.Batch(cmds...)
}

// apply folds a watcher event into the model.
func (m *model) apply(e watcher.Event) {
	m.summary.Add(e)

	switch e.Kind {
	case watcher.EventPass:
		m.ledgerSize = e.LedgerSize
		m.inFlight = e.InFlight
		return
	case watcher.EventState:
		m.state = e.State
		return
	case watcher.EventCredential:
		m.notice = "api key updated"
		return
	case watcher.EventRestored:
		for i := range m.entries {
			if m.entries[i].ev.PostID == e.PostID {
				m.entries[i].restored = true
			}
		}
		m.refreshPreview()
		return
	case watcher.EventClassified, watcher.EventAnnotateFailed:
		if m.inFlight > 0 {
			m.inFlight--
		}
	}

	m.entries = append(m.entries, entry{ev: e})
	var selectedID ledger.PostID
	if cur, ok := m.selected(); ok && m.cursor > 0 {
		selectedID = cur.ev.PostID
	}
	m.refilter()
	// at the top the cursor follows new posts; elsewhere it stays on its post
	if selectedID != "" {
		for i, idx := range m.visible {
			if m.entries[idx].ev.PostID == selectedID {
				m.cursor = i
				m.adjustListScroll(m.panelHeight())
				break
			}
		}
	}
}

func (m *model) matches(e entry) bool {
	if m.slopOnly && e.ev.Verdict != classifier.Flagged {
		return false
	}
	if m.query == "" {
		return true
	}
	q := strings.ToLower(m.query)
	return strings.Contains(strings.ToLower(e.ev.Text), q) ||
		strings.Contains(strings.ToLower(string(e.ev.PostID)), q)
}

// refilter rebuilds the visible list, newest first.
func (m *model) refilter() {
	m.visible = m.visible[:0]
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.matches(m.entries[i]) {
			m.visible = append(m.visible, i)
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.adjustListScroll(m.panelHeight())
	m.refreshPreview()
}

func (m model) selected() (entry, bool) {
	if len(m.visible) == 0 || m.cursor >= len(m.visible) {
		return entry{}, false
	}
	return m.entries[m.visible[m.cursor]], true
}

func (m model) restoreCmd(id ledger.PostID) tea.Cmd {
	ctx, r := m.ctx, m.restorer
	return func() tea.Msg {
		return restoreDoneMsg{id: id, err: r.Restore(ctx, id)}
	}
}

func copyCmd(id ledger.PostID) tea.Cmd {
	return func() tea.Msg {
		return copyDoneMsg{id: id, err: clipboard.WriteAll(string(id))}
	}
}

func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	listW := m.listWidth()
	previewW := m.previewWidth()
	panelH := m.panelHeight()

	inputRow := m.filterInput.View()

	listPanel := stylePanelBorder.
		Width(listW).
		Height(panelH).
		Render(m.renderList(listW, panelH))

	m.preview.Width = previewW
	m.preview.Height = panelH
	previewPanel := styleActiveBorder.
		Width(previewW).
		Height(panelH).
		Render(m.preview.View())

	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, previewPanel)
	return lipgloss.JoinVertical(lipgloss.Left, inputRow, panels, m.statusBar())
}

// helper methods

func (m model) listWidth() int {
	if m.width <= 0 {
		return 40
	}
	w := m.width*40/100 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) previewWidth() int {
	if m.width <= 0 {
		return 60
	}
	w := m.width*60/100 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	// input row (1) + status bar (1) + borders (4)
	h := m.height - 6
	if h < 5 {
		h = 5
	}
	return h
}

type mouseRegion int

const (
	regionNone mouseRegion = iota
	regionList
	regionPreview
)

// hitTest maps terminal coordinates to a panel region and list item index.
func (m model) hitTest(x, y int) (mouseRegion, int) {
	pH := m.panelHeight()
	contentYStart := 2 // input row (1) + top border (1)
	contentYEnd := contentYStart + pH - 1

	if y < contentYStart || y > contentYEnd {
		return regionNone, -1
	}
	relY := y - contentYStart

	lw := m.listWidth()
	listBoxRight := lw + 1

	if x >= 1 && x <= lw {
		return regionList, m.listOffset + (relY / linesPerItem)
	}
	if x > listBoxRight+1 {
		return regionPreview, -1
	}
	return regionNone, -1
}

func (m model) statusBar() string {
	state := styleStateIdle.Render(m.state.String())
	if m.state == watcher.Monitoring {
		state = styleStateMonitoring.Render(m.state.String())
	}
	parts := []string{
		state,
		fmt.Sprintf("%d seen", m.ledgerSize),
		fmt.Sprintf("%d slop", m.summary.Slop),
		fmt.Sprintf("%d genuine", m.summary.Genuine),
		fmt.Sprintf("%d in flight", m.inFlight),
	}
	if m.notice != "" {
		parts = append(parts, m.notice)
	} else {
		parts = append(parts, "Enter copy id", "C-r show original", "Tab slop only", "Esc quit")
	}
	return styleStatusBar.Render(strings.Join(parts, " | "))
}
