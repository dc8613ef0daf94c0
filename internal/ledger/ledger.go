// Package ledger tracks which authors have been replied to and how recently.
// It wraps the persistent store with a live three-state freshness
// classification and publishes change notifications so presentation layers
// can re-render without polling.
package ledger

import (
	"sync"
	"time"

	"xagent/internal/logging"
	"xagent/internal/store"
)

// FreshWindow is how long a reply keeps an author classified Fresh.
const FreshWindow = 24 * time.Hour

// Freshness is the reply status of an author at a point in time.
type Freshness int

const (
	// Never means no reply to this author is on record.
	Never Freshness = iota
	// Fresh means the last reply was under 24 hours ago.
	Fresh
	// Stale means the last reply was 24 hours or more ago. Legacy records
	// with timestamp 0 always classify Stale.
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "never"
	}
}

// Ledger is the process-wide reply ledger. The reply-completion path is the
// only writer; everything else reads snapshots and subscribes to changes.
type Ledger struct {
	store *store.Store
	now   func() time.Time

	mu   sync.Mutex
	subs []func()
}

// New builds a Ledger over the given store.
func New(s *store.Store) *Ledger {
	return &Ledger{store: s, now: time.Now}
}

// Subscribe registers fn to run after every ledger mutation. Callbacks run
// synchronously on the writing goroutine and must be quick.
func (l *Ledger) Subscribe(fn func()) {
	l.mu.Lock()
	l.subs = append(l.subs, fn)
	l.mu.Unlock()
}

func (l *Ledger) notify() {
	l.mu.Lock()
	subs := make([]func(), len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// RecordReply stamps handle with the current time and appends a history
// entry carrying the tone used.
func (l *Ledger) RecordReply(handle, tone string) error {
	ts := l.now().UnixMilli()
	if err := l.store.UpsertAuthorReply(handle, ts); err != nil {
		return err
	}
	if err := l.store.AppendHistory(ts, handle, tone); err != nil {
		return err
	}
	logging.Get(logging.CategoryLedger).Infow("reply recorded", "author", handle, "tone", tone)
	l.notify()
	return nil
}

// Classify returns the author's freshness, computed from the wall clock at
// call time. Fresh decays to Stale purely by time passing, so the result is
// never cached.
func (l *Ledger) Classify(handle string) (Freshness, error) {
	ts, found, err := l.store.LastReply(handle)
	if err != nil {
		return Never, err
	}
	if !found {
		return Never, nil
	}
	if l.now().Sub(time.UnixMilli(ts)) < FreshWindow {
		return Fresh, nil
	}
	return Stale, nil
}

// History returns up to limit history entries, newest first.
func (l *Ledger) History(limit int) ([]store.HistoryEntry, error) {
	return l.store.History(limit)
}

// ReplyCount returns the number of distinct authors replied to.
func (l *Ledger) ReplyCount() (int, error) {
	return l.store.ReplyCount()
}

// Clear wipes all reply records and history.
func (l *Ledger) Clear() error {
	if err := l.store.ClearHistory(); err != nil {
		return err
	}
	l.notify()
	return nil
}
