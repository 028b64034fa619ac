// Package watcher drives the feed pipeline: discover posts, skip the ones
// already seen, classify the rest and annotate the ones flagged as slop.
package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Zuo-Peng/slopwatch/internal/annotate"
	"github.com/Zuo-Peng/slopwatch/internal/classifier"
	"github.com/Zuo-Peng/slopwatch/internal/feed"
	"github.com/Zuo-Peng/slopwatch/internal/ledger"
	"github.com/Zuo-Peng/slopwatch/internal/metrics"
)

var ErrNotAnnotated = errors.New("post is not annotated")

// CredentialStore is the part of the credential store the watcher reads.
type CredentialStore interface {
	Get() (string, bool, error)
	OnChange(fn func(string))
}

type Classifier interface {
	Classify(ctx context.Context, text string) classifier.Verdict
}

type Options struct {
	PostSelector string
	TextSelector string
	MaxInFlight  int // 0 = unbounded
	Metrics      *metrics.Metrics
	// OnEvent runs on the watcher loop; it must not call back into the watcher.
	OnEvent func(Event)
	Now     func() time.Time
}

// task is a post waiting for its verdict.
type task struct {
	id     ledger.PostID
	text   string
	post   feed.Node
	textEl feed.Node
}

type result struct {
	task    *task
	verdict classifier.Verdict
}

type restoreReq struct {
	id    ledger.PostID
	reply chan error
}

type Watcher struct {
	doc     feed.Document
	session *Session
	creds   CredentialStore
	cls     Classifier
	log     *zap.Logger
	opts    Options
	sem     *semaphore.Weighted

	state atomic.Int32

	// owned by the loop goroutine
	tasks       map[ledger.PostID]*task
	annotations map[ledger.PostID]*annotate.Annotation
	stopObserve func()
	stopLoad    func()

	scanCh    chan struct{}
	loadCh    chan struct{}
	credCh    chan string
	resultCh  chan result
	restoreCh chan restoreReq
	wg        sync.WaitGroup
}

func New(doc feed.Document, session *Session, creds CredentialStore, cls Classifier, log *zap.Logger, opts Options) *Watcher {
	if opts.PostSelector == "" {
		opts.PostSelector = feed.DefaultPostSelector
	}
	if opts.TextSelector == "" {
		opts.TextSelector = feed.DefaultTextSelector
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{
		doc:         doc,
		session:     session,
		creds:       creds,
		cls:         cls,
		log:         log.With(zap.String("session", session.ID)),
		opts:        opts,
		tasks:       make(map[ledger.PostID]*task),
		annotations: make(map[ledger.PostID]*annotate.Annotation),
		scanCh:      make(chan struct{}, 1),
		loadCh:      make(chan struct{}, 1),
		credCh:      make(chan string),
		resultCh:    make(chan result),
		restoreCh:   make(chan restoreReq),
	}
	if opts.MaxInFlight > 0 {
		w.sem = semaphore.NewWeighted(int64(opts.MaxInFlight))
	}
	return w
}

func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Rescan schedules a discovery pass. Requests made while one is already
// pending are merged into it.
func (w *Watcher) Rescan() {
	select {
	case w.scanCh <- struct{}{}:
	default:
	}
}

func (w *Watcher) loaded() {
	select {
	case w.loadCh <- struct{}{}:
	default:
	}
}

// Restore undoes the annotation on a flagged post, as if its control was clicked.
func (w *Watcher) Restore(ctx context.Context, id ledger.PostID) error {
	req := restoreReq{id: id, reply: make(chan error, 1)}
	select {
	case w.restoreCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run monitors the feed until ctx is done. Without a credential it waits
// idle for one to be stored.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer w.shutdown(cancel)

	w.creds.OnChange(func(key string) {
		select {
		case w.credCh <- key:
		case <-ctx.Done():
		}
	})
	if stop, err := w.doc.OnLoad(ctx, w.loaded); err != nil {
		w.log.Warn("watch page loads", zap.Error(err))
	} else {
		w.stopLoad = stop
	}
	w.loadCredential(ctx, true)

	for {
		select {
		case <-ctx.Done():
			return nil
		case key := <-w.credCh:
			w.credentialChanged(ctx, key)
		case <-w.scanCh:
			if w.State() == Monitoring {
				w.pass(ctx)
			}
		case <-w.loadCh:
			w.reload(ctx)
		case r := <-w.resultCh:
			w.apply(ctx, r)
		case req := <-w.restoreCh:
			req.reply <- w.restore(req.id)
		}
	}
}

// RunOnce makes a single discovery pass and returns once every post it
// sent for classification has been handled.
func (w *Watcher) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer w.shutdown(cancel)

	w.loadCredential(ctx, false)
	for len(w.tasks) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-w.resultCh:
			w.apply(ctx, r)
		case req := <-w.restoreCh:
			req.reply <- w.restore(req.id)
		}
	}
	return nil
}

func (w *Watcher) shutdown(cancel context.CancelFunc) {
	cancel()
	if w.stopLoad != nil {
		w.stopLoad()
		w.stopLoad = nil
	}
	if w.stopObserve != nil {
		w.stopObserve()
		w.stopObserve = nil
	}
	w.wg.Wait()
}

func (w *Watcher) loadCredential(ctx context.Context, observe bool) {
	key, ok, err := w.creds.Get()
	if err != nil {
		w.log.Error("load credential", zap.Error(err))
	}
	if !ok {
		w.log.Info("no api key stored, waiting")
		return
	}
	w.session.SetCredential(key)
	w.log.Info("api key loaded")
	w.activate(ctx, observe)
}

func (w *Watcher) credentialChanged(ctx context.Context, key string) {
	w.session.SetCredential(key)
	w.emit(Event{Kind: EventCredential})
	if key == "" {
		w.log.Info("api key removed")
		return
	}
	w.log.Info("api key updated")
	w.activate(ctx, true)
}

// activate moves Idle to Monitoring: one pass, then the structural observer.
// It is a no-op when already monitoring.
func (w *Watcher) activate(ctx context.Context, observe bool) {
	if w.State() == Monitoring {
		return
	}
	u, err := w.doc.Location()
	if err != nil {
		w.log.Warn("read page location", zap.Error(err))
		return
	}
	if !feed.IsFeedSurface(u) {
		w.log.Info("not on the feed, staying idle", zap.String("url", u.String()))
		return
	}

	w.log.Info("monitoring feed", zap.String("url", u.String()))
	w.pass(ctx)

	if observe {
		stop, err := w.doc.Observe(ctx, w.Rescan)
		if err != nil {
			w.log.Error("attach observer", zap.Error(err))
			return
		}
		w.stopObserve = stop
	}
	w.state.Store(int32(Monitoring))
	w.emit(Event{Kind: EventState, State: Monitoring})
}

// reload starts over on a freshly loaded page. The old document took its
// observer, annotations and pending posts with it, so the ledger goes too.
func (w *Watcher) reload(ctx context.Context) {
	if w.stopObserve != nil {
		w.stopObserve()
		w.stopObserve = nil
	}
	clear(w.tasks)
	clear(w.annotations)
	w.session.Ledger = ledger.New()
	if w.State() == Monitoring {
		w.state.Store(int32(Idle))
		w.emit(Event{Kind: EventState, State: Idle})
	}
	if w.session.Credential() == "" {
		return
	}
	w.log.Info("page loaded, starting over")
	w.activate(ctx, true)
}

func (w *Watcher) pass(ctx context.Context) {
	w.opts.Metrics.Pass()
	posts, err := feed.Discover(w.doc, w.opts.PostSelector)
	if err != nil {
		w.log.Warn("discovery pass failed", zap.Error(err))
		return
	}

	now := w.opts.Now()
	fresh := 0
	for _, post := range posts {
		// an annotated post shows the warning, not its own text
		if marked, err := post.HasClass(annotate.MarkerClass); err != nil || marked {
			continue
		}
		id := ledger.Identify(post, now)
		if !w.session.Ledger.IsNew(id) {
			continue
		}
		// mark before the classification starts, not when it ends
		w.session.Ledger.MarkSeen(id)
		fresh++
		w.opts.Metrics.Discovered()
		w.dispatch(ctx, id, post)
	}

	w.emit(Event{
		Kind:       EventPass,
		NewPosts:   fresh,
		LedgerSize: w.session.Ledger.Len(),
		InFlight:   len(w.tasks),
	})
}

func (w *Watcher) dispatch(ctx context.Context, id ledger.PostID, post feed.Node) {
	if w.session.Credential() == "" {
		w.skip(id, "", ReasonNoCredential)
		return
	}
	textEl, ok, err := post.Find(w.opts.TextSelector)
	if err != nil || !ok {
		w.skip(id, "", ReasonNoText)
		return
	}
	raw, err := textEl.Text()
	if err != nil {
		w.skip(id, "", ReasonNoText)
		return
	}
	text := strings.TrimSpace(raw)
	if classifier.TooShort(text) {
		w.skip(id, text, ReasonTooShort)
		return
	}

	w.log.Debug("analyzing post", zap.String("post", string(id)), zap.String("text", snippet(text, 100)))
	t := &task{id: id, text: text, post: post, textEl: textEl}
	w.tasks[id] = t
	w.wg.Add(1)
	go w.classify(ctx, t)
}

func (w *Watcher) classify(ctx context.Context, t *task) {
	defer w.wg.Done()
	if w.sem != nil {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer w.sem.Release(1)
	}

	done := w.opts.Metrics.Track()
	verdict := w.cls.Classify(ctx, t.text)
	done()

	select {
	case w.resultCh <- result{task: t, verdict: verdict}:
	case <-ctx.Done():
	}
}

func (w *Watcher) apply(ctx context.Context, r result) {
	t := r.task
	// results for a page that has since been reloaded are dropped
	if w.tasks[t.id] != t {
		return
	}
	// the post record is dropped with the task
	delete(w.tasks, t.id)
	w.opts.Metrics.Verdict(r.verdict.String())

	ev := Event{Kind: EventClassified, PostID: t.id, Text: t.text, Verdict: r.verdict}
	if r.verdict == classifier.Flagged {
		a, err := annotate.Annotate(t.post, t.textEl, w.clicked(ctx, t.id))
		if err != nil {
			w.log.Warn("annotate post", zap.String("post", string(t.id)), zap.Error(err))
			ev.Kind = EventAnnotateFailed
			ev.Reason = err.Error()
		} else {
			w.log.Info("slop detected", zap.String("post", string(t.id)))
			w.annotations[t.id] = a
		}
	} else {
		w.log.Debug("genuine post", zap.String("post", string(t.id)))
	}
	w.emit(ev)
}

// clicked handles the in-page restore control. Clicks go through the loop so
// they are reported like any other restore; once the loop is gone the post is
// restored in place.
func (w *Watcher) clicked(ctx context.Context, id ledger.PostID) func(*annotate.Annotation) {
	return func(a *annotate.Annotation) {
		err := w.Restore(ctx, id)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			err = a.Restore()
		}
		if err != nil {
			w.log.Warn("restore post", zap.String("post", string(id)), zap.Error(err))
		}
	}
}

func (w *Watcher) restore(id ledger.PostID) error {
	a, ok := w.annotations[id]
	if !ok {
		return ErrNotAnnotated
	}
	if err := a.Restore(); err != nil {
		return err
	}
	delete(w.annotations, id)
	w.emit(Event{Kind: EventRestored, PostID: id, Text: a.Original()})
	return nil
}

func (w *Watcher) skip(id ledger.PostID, text, reason string) {
	w.opts.Metrics.Skipped(reason)
	w.emit(Event{Kind: EventSkipped, PostID: id, Text: text, Reason: reason})
}

func (w *Watcher) emit(e Event) {
	if w.opts.OnEvent == nil {
		return
	}
	e.Time = w.opts.Now()
	w.opts.OnEvent(e)
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
