// Package annotate replaces a flagged post's text with a warning and lets the
// reader bring the original back.
package annotate

import (
	"fmt"
	"sync"

	"github.com/Zuo-Peng/slopwatch/internal/feed"
)

const (
	MarkerClass  = "slop-detected"
	ControlClass = "slop-restore-btn"
	ControlLabel = "Show Original"
	Warning      = "🚫 SLOP DETECTED: This post appears to be engagement bait or low-quality content designed to boost algorithmic reach."
)

// Annotation is an applied warning on one post. It keeps the original text
// for as long as the annotation exists.
type Annotation struct {
	post     feed.Node
	textEl   feed.Node
	original string

	mu       sync.Mutex
	control  feed.Control
	restored bool
}

// Annotate marks post, swaps textEl's content for the warning and inserts the
// restore control after textEl. On error nothing is left applied.
//
// A click on the control calls onActivate with the annotation, or restores it
// directly when onActivate is nil.
func Annotate(post, textEl feed.Node, onActivate func(*Annotation)) (*Annotation, error) {
	original, err := textEl.Text()
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	a := &Annotation{post: post, textEl: textEl, original: original}

	if err := post.AddClass(MarkerClass); err != nil {
		return nil, fmt.Errorf("mark post: %w", err)
	}
	if err := textEl.SetText(Warning); err != nil {
		_ = post.RemoveClass(MarkerClass)
		return nil, fmt.Errorf("replace text: %w", err)
	}
	control, err := textEl.InsertControlAfter(ControlLabel, ControlClass, func() {
		if onActivate != nil {
			onActivate(a)
			return
		}
		_ = a.Restore()
	})
	if err != nil {
		_ = textEl.SetText(original)
		_ = post.RemoveClass(MarkerClass)
		return nil, fmt.Errorf("insert control: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.control = control
	if a.restored {
		// clicked before we got here
		_ = control.Remove()
	}
	return a, nil
}

// Original is the post text as it was before annotation.
func (a *Annotation) Original() string {
	return a.original
}

// Restore puts the original text back, removes the control and clears the
// marker. Calling it again is a no-op.
func (a *Annotation) Restore() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.restored {
		return nil
	}

	if err := a.textEl.SetText(a.original); err != nil {
		return fmt.Errorf("restore text: %w", err)
	}
	if a.control != nil {
		if err := a.control.Remove(); err != nil {
			return fmt.Errorf("remove control: %w", err)
		}
	}
	if err := a.post.RemoveClass(MarkerClass); err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}
	a.restored = true
	return nil
}

func (a *Annotation) Restored() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restored
}
