package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/slopwatch/internal/classifier"
	"github.com/Zuo-Peng/slopwatch/internal/ledger"
	"github.com/Zuo-Peng/slopwatch/internal/watcher"
)

type fakeRestorer struct {
	ids []ledger.PostID
}

func (r *fakeRestorer) Restore(_ context.Context, id ledger.PostID) error {
	r.ids = append(r.ids, id)
	return nil
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

func seeded(t *testing.T, r Restorer) model {
	t.Helper()
	m := newModel(context.Background(), r)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for _, e := range []watcher.Event{
		{Kind: watcher.EventState, State: watcher.Monitoring},
		{Kind: watcher.EventPass, NewPosts: 3, LedgerSize: 3, InFlight: 2},
		{Kind: watcher.EventSkipped, PostID: "urn:1", Reason: watcher.ReasonTooShort, Text: "Hi", Time: now},
		{Kind: watcher.EventClassified, PostID: "urn:2", Verdict: classifier.Flagged, Text: "Agree? I hired a barista", Time: now},
		{Kind: watcher.EventClassified, PostID: "urn:3", Verdict: classifier.NotFlagged, Text: "Quarterly report is out", Time: now},
	} {
		m, _ = update(t, m, eventMsg(e))
	}
	return m
}

func TestModel_EventsNewestFirst(t *testing.T) {
	m := seeded(t, &fakeRestorer{})

	require.Len(t, m.visible, 3)
	e, ok := m.selected()
	require.True(t, ok)
	assert.Equal(t, ledger.PostID("urn:3"), e.ev.PostID)
	assert.Equal(t, watcher.Monitoring, m.state)
	assert.Equal(t, 3, m.ledgerSize)
	assert.Equal(t, 0, m.inFlight)
	assert.Equal(t, 1, m.summary.Slop)
	assert.Contains(t, m.View(), "monitoring")
}

func TestModel_FilterAndSlopOnly(t *testing.T) {
	m := seeded(t, &fakeRestorer{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("barista")})
	require.Len(t, m.visible, 1)
	e, _ := m.selected()
	assert.Equal(t, ledger.PostID("urn:2"), e.ev.PostID)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.True(t, m.slopOnly)
	assert.Len(t, m.visible, 1)

	m = seeded(t, &fakeRestorer{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Len(t, m.visible, 1)
	e, _ = m.selected()
	assert.Equal(t, ledger.PostID("urn:2"), e.ev.PostID)
}

func TestModel_RestoreSelected(t *testing.T) {
	r := &fakeRestorer{}
	m := seeded(t, r)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	e, _ := m.selected()
	require.Equal(t, ledger.PostID("urn:2"), e.ev.PostID)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, []ledger.PostID{"urn:2"}, r.ids)
	assert.Equal(t, "restored urn:2", m.notice)

	m, _ = update(t, m, eventMsg(watcher.Event{Kind: watcher.EventRestored, PostID: "urn:2"}))
	e, _ = m.selected()
	assert.True(t, e.restored)

	// a restored post cannot be restored again
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Nil(t, cmd)
	assert.Equal(t, "nothing to restore", m.notice)
}

func TestModel_CursorFollowsSelection(t *testing.T) {
	m := seeded(t, &fakeRestorer{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, eventMsg(watcher.Event{Kind: watcher.EventClassified, PostID: "urn:4", Text: "New arrival post"}))

	e, _ := m.selected()
	assert.Equal(t, ledger.PostID("urn:2"), e.ev.PostID)
	assert.Len(t, m.visible, 4)
}
