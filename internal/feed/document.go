package feed

import (
	"context"
	"net/url"
)

// Document is the page a watcher works against.
type Document interface {
	// Location is the URL the document was loaded from.
	Location() (*url.URL, error)
	// QueryAll returns every element matching selector, in document order.
	QueryAll(selector string) ([]Node, error)
	// Observe calls fn after each structural change (child list, whole subtree)
	// of the document body. The returned func detaches the observer.
	Observe(ctx context.Context, fn func()) (stop func(), err error)
	// OnLoad calls fn each time a new document finishes loading, after a
	// reload or a full navigation. Observers attached to the previous
	// document do not survive the load.
	OnLoad(ctx context.Context, fn func()) (stop func(), err error)
}

// Node is a single element of a Document.
type Node interface {
	Attr(name string) (string, bool)
	// Text is the element's text content, untrimmed.
	Text() (string, error)
	SetText(text string) error
	// Find returns the first descendant matching selector.
	Find(selector string) (Node, bool, error)
	AddClass(name string) error
	RemoveClass(name string) error
	HasClass(name string) (bool, error)
	// InsertControlAfter inserts a button as the next sibling of the node.
	// onActivate runs when the button is clicked.
	InsertControlAfter(label, class string, onActivate func()) (Control, error)
}

// Control is a button inserted into a document.
type Control interface {
	Activate()
	Remove() error
}
