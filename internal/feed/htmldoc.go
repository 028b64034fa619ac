package feed

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLDocument is a Document over a parsed, in-memory HTML page.
// Structural changes made through Mutate notify observers the way a
// browser MutationObserver would. Safe for concurrent use.
type HTMLDocument struct {
	mu        sync.Mutex
	doc       *goquery.Document
	location  *url.URL
	observers map[int]func()
	loads     map[int]func()
	nextObs   int
	controls  map[*html.Node]*htmlControl
}

func NewHTMLDocument(r io.Reader, location string) (*HTMLDocument, error) {
	doc, u, err := parsePage(r, location)
	if err != nil {
		return nil, err
	}
	return &HTMLDocument{
		doc:       doc,
		location:  u,
		observers: make(map[int]func()),
		loads:     make(map[int]func()),
		controls:  make(map[*html.Node]*htmlControl),
	}, nil
}

func parsePage(r io.Reader, location string) (*goquery.Document, *url.URL, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, nil, fmt.Errorf("parse location %q: %w", location, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, u, nil
}

// Load replaces the whole page, the way a reload or a full navigation does.
// Observers and controls belong to the old page and are dropped before the
// load listeners run.
func (d *HTMLDocument) Load(r io.Reader, location string) error {
	doc, u, err := parsePage(r, location)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.doc = doc
	d.location = u
	clear(d.observers)
	clear(d.controls)
	loads := make([]func(), 0, len(d.loads))
	for _, fn := range d.loads {
		loads = append(loads, fn)
	}
	d.mu.Unlock()

	for _, fn := range loads {
		fn()
	}
	return nil
}

func (d *HTMLDocument) Location() (*url.URL, error) {
	d.mu.Lock()
	u := *d.location
	d.mu.Unlock()
	return &u, nil
}

// Navigate changes the reported location without touching the content.
func (d *HTMLDocument) Navigate(location string) error {
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("parse location %q: %w", location, err)
	}
	d.mu.Lock()
	d.location = u
	d.mu.Unlock()
	return nil
}

func (d *HTMLDocument) QueryAll(selector string) ([]Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel := d.doc.Find(selector)
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &htmlNode{doc: d, sel: s})
	})
	return nodes, nil
}

func (d *HTMLDocument) Observe(ctx context.Context, fn func()) (func(), error) {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.mu.Unlock()

	return d.detachOnDone(ctx, d.observers, id), nil
}

func (d *HTMLDocument) OnLoad(ctx context.Context, fn func()) (func(), error) {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.loads[id] = fn
	d.mu.Unlock()

	return d.detachOnDone(ctx, d.loads, id), nil
}

func (d *HTMLDocument) detachOnDone(ctx context.Context, set map[int]func(), id int) func() {
	var once sync.Once
	stop := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(set, id)
			d.mu.Unlock()
		})
	}
	context.AfterFunc(ctx, stop)
	return stop
}

// ObserverCount is the number of attached observers.
func (d *HTMLDocument) ObserverCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

// Mutate applies fn to the underlying document and then notifies observers.
func (d *HTMLDocument) Mutate(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	fn(d.doc)
	observers := make([]func(), 0, len(d.observers))
	for _, o := range d.observers {
		observers = append(observers, o)
	}
	d.mu.Unlock()

	for _, o := range observers {
		o()
	}
}

// AppendHTML appends markup to every element matching selector, e.g. a new
// batch of posts loaded by infinite scroll.
func (d *HTMLDocument) AppendHTML(selector, markup string) {
	d.Mutate(func(doc *goquery.Document) {
		doc.Find(selector).AppendHtml(markup)
	})
}

// Count returns how many elements match selector.
func (d *HTMLDocument) Count(selector string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Find(selector).Length()
}

// Click activates every inserted control matching selector and returns how many were clicked.
func (d *HTMLDocument) Click(selector string) int {
	d.mu.Lock()
	var hits []*htmlControl
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if c, ok := d.controls[s.Nodes[0]]; ok {
			hits = append(hits, c)
		}
	})
	d.mu.Unlock()

	for _, c := range hits {
		c.Activate()
	}
	return len(hits)
}

// Render writes the current document as HTML.
func (d *HTMLDocument) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return err
		}
	}
	return nil
}

type htmlNode struct {
	doc *HTMLDocument
	sel *goquery.Selection
}

func (n *htmlNode) Attr(name string) (string, bool) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.sel.Attr(name)
}

func (n *htmlNode) Text() (string, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.sel.Text(), nil
}

func (n *htmlNode) SetText(text string) error {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.sel.SetText(text)
	return nil
}

func (n *htmlNode) Find(selector string) (Node, bool, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	found := n.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, false, nil
	}
	return &htmlNode{doc: n.doc, sel: found}, true, nil
}

func (n *htmlNode) AddClass(name string) error {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.sel.AddClass(name)
	return nil
}

func (n *htmlNode) RemoveClass(name string) error {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	n.sel.RemoveClass(name)
	return nil
}

func (n *htmlNode) HasClass(name string) (bool, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.sel.HasClass(name), nil
}

func (n *htmlNode) InsertControlAfter(label, class string, onActivate func()) (Control, error) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()

	target := n.sel.Nodes[0]
	if target.Parent == nil {
		return nil, fmt.Errorf("insert control: element has no parent")
	}
	btn := &html.Node{
		Type:     html.ElementNode,
		Data:     "button",
		DataAtom: atom.Button,
		Attr: []html.Attribute{
			{Key: "type", Val: "button"},
			{Key: "class", Val: class},
		},
	}
	btn.AppendChild(&html.Node{Type: html.TextNode, Data: label})
	target.Parent.InsertBefore(btn, target.NextSibling)

	c := &htmlControl{doc: n.doc, node: btn, onActivate: onActivate}
	n.doc.controls[btn] = c
	return c, nil
}

type htmlControl struct {
	doc        *HTMLDocument
	node       *html.Node
	onActivate func()
}

func (c *htmlControl) Activate() {
	if c.onActivate != nil {
		c.onActivate()
	}
}

func (c *htmlControl) Remove() error {
	c.doc.mu.Lock()
	defer c.doc.mu.Unlock()
	if c.node.Parent != nil {
		c.node.Parent.RemoveChild(c.node)
	}
	delete(c.doc.controls, c.node)
	return nil
}
