//go:build integration

package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBrowserDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	browser, pg, err := OpenPage(ctx, BrowserOptions{Headless: true}, srv.URL)
	require.NoError(t, err)
	defer browser.Close()

	doc := NewBrowserDocument(pg, zaptest.NewLogger(t))
	defer doc.Close()

	u, err := doc.Location()
	require.NoError(t, err)
	assert.False(t, IsFeedSurface(u))

	posts, err := Discover(doc, "")
	require.NoError(t, err)
	require.Len(t, posts, 2)

	urn, ok := posts[0].Attr(URNAttr)
	assert.True(t, ok)
	assert.Equal(t, "urn:li:activity:1", urn)

	textEl, ok, err := posts[0].Find(DefaultTextSelector)
	require.NoError(t, err)
	require.True(t, ok)
	text, err := textEl.Text()
	require.NoError(t, err)
	assert.Equal(t, "First post", text)

	require.NoError(t, textEl.SetText("replaced"))
	text, _ = textEl.Text()
	assert.Equal(t, "replaced", text)

	require.NoError(t, posts[0].AddClass("flagged"))
	has, err := posts[0].HasClass("flagged")
	require.NoError(t, err)
	assert.True(t, has)

	var clicks atomic.Int32
	ctl, err := textEl.InsertControlAfter("Show Original", "restore", func() { clicks.Add(1) })
	require.NoError(t, err)
	btn, err := pg.Element("button.restore")
	require.NoError(t, err)
	require.NoError(t, btn.Click("left", 1))
	require.Eventually(t, func() bool { return clicks.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, ctl.Remove())

	var mutations atomic.Int32
	stop, err := doc.Observe(ctx, func() { mutations.Add(1) })
	require.NoError(t, err)
	defer stop()
	_, err = pg.Eval(`() => document.querySelector('main').appendChild(document.createElement('div'))`)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mutations.Load() > 0 }, 5*time.Second, 20*time.Millisecond)

	// a reload drops the observer script, and OnLoad says so
	var loads atomic.Int32
	stopLoad, err := doc.OnLoad(ctx, func() { loads.Add(1) })
	require.NoError(t, err)
	defer stopLoad()
	require.NoError(t, pg.Reload())
	require.Eventually(t, func() bool { return loads.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	var again atomic.Int32
	stopAgain, err := doc.Observe(ctx, func() { again.Add(1) })
	require.NoError(t, err)
	defer stopAgain()
	_, err = pg.Eval(`() => document.querySelector('main').appendChild(document.createElement('div'))`)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return again.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
}
