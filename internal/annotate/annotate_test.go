package annotate

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/slopwatch/internal/feed"
)

const page = `<html><body><main>
<div class="feed-shared-update-v2" data-urn="urn:1">
  <div class="update-components-text">
    <span class="feed-shared-inline-show-more-text">  I asked my 5 year old what leadership means. Her answer changed my career forever.  </span>
  </div>
</div>
</main></body></html>`

func loadPost(t *testing.T) (*feed.HTMLDocument, feed.Node, feed.Node) {
	t.Helper()
	doc, err := feed.NewHTMLDocument(strings.NewReader(page), feed.DefaultFeedURL)
	require.NoError(t, err)
	posts, err := feed.Discover(doc, feed.DefaultPostSelector)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	textEl, ok, err := posts[0].Find(feed.DefaultTextSelector)
	require.NoError(t, err)
	require.True(t, ok)
	return doc, posts[0], textEl
}

func TestAnnotateAndRestore(t *testing.T) {
	doc, post, textEl := loadPost(t)
	original, err := textEl.Text()
	require.NoError(t, err)

	a, err := Annotate(post, textEl, nil)
	require.NoError(t, err)

	text, _ := textEl.Text()
	assert.Equal(t, Warning, text)
	marked, _ := post.HasClass(MarkerClass)
	assert.True(t, marked)
	assert.Equal(t, 1, doc.Count("button."+ControlClass))
	assert.Equal(t, original, a.Original())

	// the control sits right after the text element
	var buf bytes.Buffer
	require.NoError(t, doc.Render(&buf))
	assert.Contains(t, buf.String(), `</span><button type="button" class="slop-restore-btn">Show Original</button>`)

	require.Equal(t, 1, doc.Click("."+ControlClass))

	text, _ = textEl.Text()
	assert.Equal(t, original, text)
	marked, _ = post.HasClass(MarkerClass)
	assert.False(t, marked)
	assert.Zero(t, doc.Count("."+ControlClass))
	assert.True(t, a.Restored())
}

func TestRestoreIdempotent(t *testing.T) {
	_, post, textEl := loadPost(t)
	original, _ := textEl.Text()

	a, err := Annotate(post, textEl, nil)
	require.NoError(t, err)

	require.NoError(t, a.Restore())
	require.NoError(t, a.Restore())

	text, _ := textEl.Text()
	assert.Equal(t, original, text)
}

type failingNode struct {
	feed.Node
	failInsert bool
	text       string
	classes    map[string]bool
}

func (n *failingNode) Text() (string, error)      { return n.text, nil }
func (n *failingNode) SetText(s string) error     { n.text = s; return nil }
func (n *failingNode) AddClass(c string) error    { n.classes[c] = true; return nil }
func (n *failingNode) RemoveClass(c string) error { delete(n.classes, c); return nil }
func (n *failingNode) InsertControlAfter(string, string, func()) (feed.Control, error) {
	if n.failInsert {
		return nil, errors.New("detached")
	}
	return nil, nil
}

func TestAnnotateRollsBack(t *testing.T) {
	post := &failingNode{classes: map[string]bool{}}
	textEl := &failingNode{text: "original text", failInsert: true, classes: map[string]bool{}}

	_, err := Annotate(post, textEl, nil)
	require.Error(t, err)
	assert.Equal(t, "original text", textEl.text)
	assert.Empty(t, post.classes)
}

func TestAnnotateRoutesClicks(t *testing.T) {
	doc, post, textEl := loadPost(t)

	var clicked *Annotation
	a, err := Annotate(post, textEl, func(a *Annotation) { clicked = a })
	require.NoError(t, err)

	require.Equal(t, 1, doc.Click("."+ControlClass))
	assert.Same(t, a, clicked)
	// the handler decides when to restore
	assert.False(t, a.Restored())
	text, _ := textEl.Text()
	assert.Equal(t, Warning, text)

	require.NoError(t, clicked.Restore())
	assert.Zero(t, doc.Count("."+ControlClass))
}
