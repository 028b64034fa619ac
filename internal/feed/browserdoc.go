package feed

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
)

const restoreBinding = "__slopwatchRestore"

// BrowserDocument is a Document backed by a live Chrome page.
type BrowserDocument struct {
	page *rod.Page
	log  *zap.Logger

	mu        sync.Mutex
	controls  map[string]func()
	nextID    int
	nextObs   int
	bound     bool
	stopBinds []func() error
}

func NewBrowserDocument(page *rod.Page, log *zap.Logger) *BrowserDocument {
	return &BrowserDocument{
		page:     page,
		log:      log,
		controls: make(map[string]func()),
	}
}

func (d *BrowserDocument) Location() (*url.URL, error) {
	info, err := d.page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}
	return url.Parse(info.URL)
}

func (d *BrowserDocument) QueryAll(selector string) ([]Node, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(els))
	for _, el := range els {
		nodes = append(nodes, &browserNode{doc: d, el: el})
	}
	return nodes, nil
}

const observeJS = `(binding) => {
	const o = new MutationObserver((mutations) => {
		if (mutations.some((m) => m.type === 'childList')) {
			window[binding]();
		}
	});
	o.observe(document.body, { childList: true, subtree: true });
	window[binding + 'Observer'] = o;
}`

const disconnectJS = `(binding) => {
	const o = window[binding + 'Observer'];
	if (o) {
		o.disconnect();
		delete window[binding + 'Observer'];
	}
}`

func (d *BrowserDocument) Observe(ctx context.Context, fn func()) (func(), error) {
	d.mu.Lock()
	binding := fmt.Sprintf("__slopwatchMutation%d", d.nextObs)
	d.nextObs++
	d.mu.Unlock()

	// binding callbacks arrive on rod's event goroutine; never block it
	stopExpose, err := d.page.Expose(binding, func(gson.JSON) (interface{}, error) {
		go fn()
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("expose %s: %w", binding, err)
	}
	if _, err := d.page.Eval(observeJS, binding); err != nil {
		_ = stopExpose()
		return nil, fmt.Errorf("attach mutation observer: %w", err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if _, err := d.page.Eval(disconnectJS, binding); err != nil {
				d.log.Debug("disconnect mutation observer", zap.Error(err))
			}
			if err := stopExpose(); err != nil {
				d.log.Debug("unbind mutation observer", zap.Error(err))
			}
		})
	}
	context.AfterFunc(ctx, stop)
	return stop, nil
}

// OnLoad fires on every load event of the page's main frame. Exposed bindings
// are re-installed by rod on each new document; the observer script and the
// controls are not.
func (d *BrowserDocument) OnLoad(ctx context.Context, fn func()) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	wait := d.page.Context(ctx).EachEvent(func(*proto.PageLoadEventFired) {
		d.mu.Lock()
		clear(d.controls)
		d.mu.Unlock()
		go fn()
	})
	go wait()
	return cancel, nil
}

func (d *BrowserDocument) bindRestore() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bound {
		return nil
	}
	stop, err := d.page.Expose(restoreBinding, func(arg gson.JSON) (interface{}, error) {
		id := arg.Str()
		d.mu.Lock()
		fn := d.controls[id]
		d.mu.Unlock()
		if fn != nil {
			go fn()
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose %s: %w", restoreBinding, err)
	}
	d.bound = true
	d.stopBinds = append(d.stopBinds, stop)
	return nil
}

// Close removes the page bindings installed by the document.
func (d *BrowserDocument) Close() error {
	d.mu.Lock()
	stops := d.stopBinds
	d.stopBinds = nil
	d.bound = false
	d.mu.Unlock()

	var firstErr error
	for _, stop := range stops {
		if err := stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type browserNode struct {
	doc *BrowserDocument
	el  *rod.Element
}

func (n *browserNode) Attr(name string) (string, bool) {
	v, err := n.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (n *browserNode) Text() (string, error) {
	res, err := n.el.Eval(`() => this.textContent`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (n *browserNode) SetText(text string) error {
	_, err := n.el.Eval(`(t) => { this.textContent = t; }`, text)
	return err
}

func (n *browserNode) Find(selector string) (Node, bool, error) {
	// Elements does not wait for a match, unlike Element
	els, err := n.el.Elements(selector)
	if err != nil {
		return nil, false, err
	}
	if len(els) == 0 {
		return nil, false, nil
	}
	return &browserNode{doc: n.doc, el: els.First()}, true, nil
}

func (n *browserNode) AddClass(name string) error {
	_, err := n.el.Eval(`(c) => this.classList.add(c)`, name)
	return err
}

func (n *browserNode) RemoveClass(name string) error {
	_, err := n.el.Eval(`(c) => this.classList.remove(c)`, name)
	return err
}

func (n *browserNode) HasClass(name string) (bool, error) {
	res, err := n.el.Eval(`(c) => this.classList.contains(c)`, name)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

const insertControlJS = `(label, cls, id, binding) => {
	const b = document.createElement('button');
	b.type = 'button';
	b.textContent = label;
	b.className = cls;
	b.dataset.slopwatchId = id;
	b.onclick = () => window[binding](id);
	this.parentNode.insertBefore(b, this.nextSibling);
}`

func (n *browserNode) InsertControlAfter(label, class string, onActivate func()) (Control, error) {
	if err := n.doc.bindRestore(); err != nil {
		return nil, err
	}

	d := n.doc
	d.mu.Lock()
	id := fmt.Sprintf("slopwatch-%d", d.nextID)
	d.nextID++
	d.controls[id] = onActivate
	d.mu.Unlock()

	if _, err := n.el.Eval(insertControlJS, label, class, id, restoreBinding); err != nil {
		d.mu.Lock()
		delete(d.controls, id)
		d.mu.Unlock()
		return nil, fmt.Errorf("insert control: %w", err)
	}
	return &browserControl{doc: d, id: id}, nil
}

type browserControl struct {
	doc *BrowserDocument
	id  string
}

func (c *browserControl) Activate() {
	c.doc.mu.Lock()
	fn := c.doc.controls[c.id]
	c.doc.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *browserControl) Remove() error {
	c.doc.mu.Lock()
	delete(c.doc.controls, c.id)
	c.doc.mu.Unlock()

	_, err := c.doc.page.Eval(`(id) => {
		const b = document.querySelector('[data-slopwatch-id="' + id + '"]');
		if (b) b.remove();
	}`, c.id)
	return err
}
