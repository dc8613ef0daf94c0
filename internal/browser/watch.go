package browser

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"

	"xagent/internal/feed"
	"xagent/internal/logging"
	"xagent/internal/selector"
)

// observerJS hooks a MutationObserver over the feed container and counts
// newly attached item articles. The count is drained by each poll.
const observerJS = `
() => {
	const w = window;
	if (w.__xagentHooked) return true;
	w.__xagentHooked = true;
	w.__xagentNewItems = 1; // force one initial sweep

	const matchItem = (node) =>
		node.matches && (node.matches('article[data-testid="tweet"]') || node.matches('article[role="article"]'));

	const obs = new MutationObserver((mutations) => {
		mutations.forEach((m) => {
			m.addedNodes.forEach((node) => {
				if (node.nodeType !== 1) return;
				if (matchItem(node)) w.__xagentNewItems++;
				if (node.querySelectorAll) {
					w.__xagentNewItems += node.querySelectorAll('article[data-testid="tweet"], article[role="article"]').length;
				}
			});
		});
	});
	const container = document.querySelector('main') || document.querySelector('[role="main"]') || document.body;
	obs.observe(container, { childList: true, subtree: true });
	return true;
}`

const drainJS = `
() => {
	const n = window.__xagentNewItems || 0;
	window.__xagentNewItems = 0;
	return n;
}`

// Sink receives records for feed items not seen before.
type Sink interface {
	OnItem(ctx context.Context, rec feed.ItemRecord)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec feed.ItemRecord)

func (f SinkFunc) OnItem(ctx context.Context, rec feed.ItemRecord) { f(ctx, rec) }

// FeedWatcher observes the session page for new feed items. Mutations are
// detected push-based inside the page; this side polls only the pending
// counter and snapshots the page when something actually changed.
type FeedWatcher struct {
	session *Session
	sink    Sink
	poll    time.Duration

	seen map[string]bool
}

// NewFeedWatcher builds a watcher delivering unseen items to sink.
func NewFeedWatcher(session *Session, poll time.Duration, sink Sink) *FeedWatcher {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &FeedWatcher{
		session: session,
		sink:    sink,
		poll:    poll,
		seen:    make(map[string]bool),
	}
}

// Install injects the mutation hook into the current page. Safe to call
// again after navigation.
func (w *FeedWatcher) Install(ctx context.Context) error {
	_, err := w.session.Page().Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           observerJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	return err
}

// Run polls until the context ends, delivering each newly rendered item to
// the sink exactly once. Handlers run synchronously on this goroutine.
func (w *FeedWatcher) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryBrowser)
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pending, err := w.drain(ctx)
			if err != nil {
				log.Debugw("mutation drain failed", "error", err)
				continue
			}
			if pending == 0 {
				continue
			}
			if err := w.sweep(ctx); err != nil {
				log.Warnw("feed sweep failed", "error", err)
			}
		}
	}
}

func (w *FeedWatcher) drain(ctx context.Context) (int, error) {
	res, err := w.session.Page().Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      drainJS,
		ByValue: true,
	})
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// sweep snapshots the page, extracts every rendered item, and emits the
// ones not delivered before.
func (w *FeedWatcher) sweep(ctx context.Context) error {
	content, err := w.session.HTML(ctx)
	if err != nil {
		return err
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return err
	}

	for _, item := range selector.ResolveAll(doc, selector.RoleFeedItem) {
		rec := feed.Extract(doc, item)
		if rec.AuthorHandle == "" && rec.BodyText == "" {
			continue
		}
		if w.markSeen(itemKey(rec)) {
			continue
		}
		w.sink.OnItem(ctx, rec)
	}
	return nil
}

// markSeen records key and reports whether it was already delivered. The
// set resets at the same bound the notification watcher uses rather than
// grow forever on a long session.
func (w *FeedWatcher) markSeen(key string) bool {
	if w.seen[key] {
		return true
	}
	if len(w.seen) >= seenLimit {
		w.seen = make(map[string]bool, seenLimit)
	}
	w.seen[key] = true
	return false
}

// itemKey identifies an item across sweeps: author plus a body prefix.
func itemKey(rec feed.ItemRecord) string {
	body := rec.BodyText
	if len(body) > 80 {
		body = body[:80]
	}
	return strings.ToLower(rec.AuthorHandle) + "|" + body
}
