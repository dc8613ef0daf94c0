// Package queue drives the two background work queues: inbound mentions
// handled on a slow recurring tick, and bulk target lists started and
// stopped on demand. Progress is persisted as a cursor so a restart neither
// reprocesses nor skips items.
package queue

import (
	"context"
	"sync"
	"time"

	"xagent/internal/logging"
	"xagent/internal/store"
)

// Queue names used as persistence keys.
const (
	MentionQueue = "mentions"
	BulkQueue    = "bulk"
)

// MentionInterval is how often the mention queue consumes one item.
const MentionInterval = 30 * time.Minute

// Handler processes one queue item.
type Handler func(ctx context.Context, item string) error

// Status is a snapshot of a queue's progress.
type Status struct {
	Total    int
	Cursor   int
	Running  bool
	Complete bool
}

// Processor consumes one persisted queue, one item per tick.
type Processor struct {
	name     string
	store    *store.Store
	handler  Handler
	interval time.Duration
	category logging.Category

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New builds a processor for the named queue. interval is the spacing
// between ticks once started.
func New(name string, st *store.Store, interval time.Duration, handler Handler) *Processor {
	cat := logging.CategoryBulk
	if name == MentionQueue {
		cat = logging.CategoryMentions
	}
	return &Processor{
		name:     name,
		store:    st,
		handler:  handler,
		interval: interval,
		category: cat,
	}
}

// Load replaces the queue contents and resets the cursor to zero.
func (p *Processor) Load(items []string) error {
	return p.store.SaveQueue(p.name, store.QueueState{Items: items, Cursor: 0})
}

// Push appends one item to the persisted queue.
func (p *Processor) Push(item string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.store.LoadQueue(p.name)
	if err != nil {
		return err
	}
	state.Items = append(state.Items, item)
	return p.store.SaveQueue(p.name, state)
}

// Status reports the queue's persisted progress.
func (p *Processor) Status() (Status, error) {
	state, err := p.store.LoadQueue(p.name)
	if err != nil {
		return Status{}, err
	}
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return Status{
		Total:    len(state.Items),
		Cursor:   state.Cursor,
		Running:  running,
		Complete: state.Cursor >= len(state.Items),
	}, nil
}

// Tick consumes exactly one item: advance and persist the cursor, then hand
// the item to the handler. The cursor moves forward even when the handler
// fails, so a poisoned item cannot wedge the queue. Returns whether an item
// was consumed.
func (p *Processor) Tick(ctx context.Context) (bool, error) {
	log := logging.Get(p.category)

	state, err := p.store.LoadQueue(p.name)
	if err != nil {
		return false, err
	}
	if state.Cursor >= len(state.Items) {
		return false, nil
	}

	item := state.Items[state.Cursor]
	state.Cursor++
	if err := p.store.SaveQueue(p.name, state); err != nil {
		return false, err
	}

	log.Infow("processing queue item", "queue", p.name, "cursor", state.Cursor, "total", len(state.Items))
	if err := p.handler(ctx, item); err != nil {
		log.Warnw("queue item failed", "queue", p.name, "item", item, "error", err)
	}
	return true, nil
}

// Start begins ticking on the configured interval. Idempotent: starting a
// running processor is a no-op.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})

	stop := p.stop
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.Tick(ctx); err != nil {
					logging.Get(p.category).Errorw("queue tick failed", "queue", p.name, "error", err)
				}
			}
		}
	}()
	logging.Get(p.category).Infow("queue started", "queue", p.name, "interval", p.interval)
}

// Stop halts ticking and clears the pending continuation. Idempotent:
// stopping a stopped processor is a no-op.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	logging.Get(p.category).Infow("queue stopped", "queue", p.name)
}
