package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"

	"xagent/internal/ledger"
	"xagent/internal/logging"
	"xagent/internal/store"
)

// renderTicksJS paints a small dot next to each visible author's name:
// green when replied within 24 hours, red when the reply is older or
// missing. Receives a map of lowercased handle to last-reply epoch millis.
const renderTicksJS = `
(replied, freshMs) => {
	const now = Date.now();
	document.querySelectorAll('article[data-testid="tweet"], article[role="article"]').forEach((item) => {
		let names = item.querySelector('[data-testid="User-Name"]') ||
			item.querySelector('[data-testid="User-Names"]');
		if (!names) {
			for (const link of item.querySelectorAll('a[role="link"]')) {
				if (link.href && link.href.includes('x.com/') && !link.href.includes('/status/')) {
					names = link.parentElement;
					break;
				}
			}
		}
		if (!names) return;

		let handle = '';
		for (const span of item.querySelectorAll('span')) {
			const t = span.textContent || '';
			if (t.startsWith('@')) { handle = t.slice(1).toLowerCase(); break; }
		}
		if (!handle) return;

		const ts = replied[handle];
		const fresh = ts !== undefined && ts !== 0 && (now - ts) < freshMs;

		let tick = item.querySelector('.author-reply-tick');
		if (!tick) {
			tick = document.createElement('span');
			tick.className = 'author-reply-tick';
			tick.style.cssText = 'margin-left: 4px; font-size: 10px; cursor: help; vertical-align: middle;';
			names.appendChild(tick);
		}
		tick.innerText = '●';
		tick.style.color = fresh ? '#00BA7C' : '#F4212E';
		tick.title = fresh ? 'Replied within 24h'
			: (ts !== undefined ? 'Reply older than 24h' : 'Not replied yet');
	});
	return true;
}`

// TickRenderer keeps the freshness dots on screen in sync with the ledger.
// It re-renders on ledger change notifications and on a slow safety
// interval, since Fresh decays to Stale purely by time passing.
type TickRenderer struct {
	session *Session
	store   *store.Store
	ledger  *ledger.Ledger

	refresh chan struct{}
}

// NewTickRenderer wires the renderer to ledger change notifications.
func NewTickRenderer(session *Session, st *store.Store, lg *ledger.Ledger) *TickRenderer {
	r := &TickRenderer{
		session: session,
		store:   st,
		ledger:  lg,
		refresh: make(chan struct{}, 1),
	}
	lg.Subscribe(func() {
		select {
		case r.refresh <- struct{}{}:
		default:
		}
	})
	return r
}

// Render paints ticks for the current page content.
func (r *TickRenderer) Render(ctx context.Context) error {
	authors, err := r.store.AuthorReplies()
	if err != nil {
		return err
	}
	replied := make(map[string]int64, len(authors))
	for _, a := range authors {
		replied[a.Handle] = a.LastReplyMS
	}

	_, err = r.session.Page().Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           renderTicksJS,
		JSArgs:       []interface{}{replied, ledger.FreshWindow.Milliseconds()},
		ByValue:      true,
		AwaitPromise: true,
	})
	return err
}

// Run re-renders on every ledger change and once a minute so stale decay
// shows without any write happening.
func (r *TickRenderer) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryLedger)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.refresh:
		case <-ticker.C:
		}
		if err := r.Render(ctx); err != nil {
			log.Debugw("tick render failed", "error", err)
		}
	}
}
