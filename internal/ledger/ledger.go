// Package ledger records which feed posts have already been handed to the
// classifier during the current session.
package ledger

import (
	"encoding/base64"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/Zuo-Peng/slopwatch/internal/feed"
)

// PostID identifies a post within one session. It is not stable across reloads.
type PostID string

const (
	snippetLen     = 50
	synthesizedLen = 20
)

// Identify returns the post's platform identifier, or synthesizes one from the
// leading text and the current time when the platform does not provide it.
//
// The encoded form is cut to 20 characters, so for posts with at least 15 bytes
// of text only the text prefix survives and the same post yields the same ID on
// every scan. Two posts sharing that prefix collide; this is accepted.
func Identify(post feed.Node, now time.Time) PostID {
	if urn, ok := post.Attr(feed.URNAttr); ok && urn != "" {
		return PostID(urn)
	}
	text, _ := post.Text()
	return synthesize(text, now)
}

func synthesize(text string, now time.Time) PostID {
	raw := headRunes(text, snippetLen) + strconv.FormatInt(now.UnixMilli(), 10)
	enc := base64.StdEncoding.EncodeToString([]byte(raw))
	if len(enc) > synthesizedLen {
		enc = enc[:synthesizedLen]
	}
	return PostID(enc)
}

func headRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Ledger is the set of seen post IDs. Entries are never removed.
// It is not safe for concurrent use; the watcher loop owns it.
type Ledger struct {
	seen map[PostID]struct{}
}

func New() *Ledger {
	return &Ledger{seen: make(map[PostID]struct{})}
}

func (l *Ledger) IsNew(id PostID) bool {
	_, ok := l.seen[id]
	return !ok
}

func (l *Ledger) MarkSeen(id PostID) {
	l.seen[id] = struct{}{}
}

func (l *Ledger) Seen(id PostID) bool {
	return !l.IsNew(id)
}

func (l *Ledger) Len() int {
	return len(l.seen)
}
