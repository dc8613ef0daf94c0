// Package agent assembles the full engagement pipeline: browser session,
// feed observation, targeting, reply orchestration, freshness ticks, and
// the mention and bulk queues.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"xagent/internal/brain"
	"xagent/internal/browser"
	"xagent/internal/config"
	"xagent/internal/feed"
	"xagent/internal/genqueue"
	"xagent/internal/ledger"
	"xagent/internal/logging"
	"xagent/internal/orchestrator"
	"xagent/internal/queue"
	"xagent/internal/selector"
	"xagent/internal/store"
	"xagent/internal/target"
)

// Agent owns every long-lived component and their shutdown order.
type Agent struct {
	confWatch *config.Watcher
	store     *store.Store
	ledger    *ledger.Ledger
	genq      *genqueue.Queue
	brain     *brain.GeminiClient
	session   *browser.Session
	orch      *orchestrator.Orchestrator

	feedWatch  *browser.FeedWatcher
	ticks      *browser.TickRenderer
	notifWatch *browser.NotificationWatcher
	mentions   *queue.Processor
	bulk       *queue.Processor
	runBulk    bool

	// newSurface builds the action surface for one item. Tests substitute
	// a fake so no browser is needed.
	newSurface func(ctx context.Context, rec feed.ItemRecord) orchestrator.Surface

	// pageMu serializes everything that drives or navigates the session
	// page: feed replies, mention handling, and bulk target handling.
	pageMu sync.Mutex
}

// New wires an agent from the config file at path. The browser is not
// touched until Run.
func New(configPath string) (*Agent, error) {
	confWatch, err := config.NewWatcher(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := confWatch.Current()
	if err := cfg.Validate(); err != nil {
		_ = confWatch.Close()
		return nil, err
	}

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		_ = confWatch.Close()
		return nil, fmt.Errorf("store: %w", err)
	}
	if cfg.Store.LegacyStatePath != "" {
		n, err := st.ImportLegacy(cfg.Store.LegacyStatePath)
		if err != nil {
			logging.Get(logging.CategoryBoot).Warnw("legacy import failed", "path", cfg.Store.LegacyStatePath, "error", err)
		} else if n > 0 {
			logging.Get(logging.CategoryBoot).Infow("imported legacy state", "records", n)
		}
	}

	a := &Agent{
		confWatch: confWatch,
		store:     st,
		ledger:    ledger.New(st),
		genq:      genqueue.New(cfg.GetMinSpacing(), cfg.LLM.MaxPerMinute),
		session:   browser.NewSession(confWatch.Current),
	}
	a.brain = brain.NewGeminiClient(confWatch.Current, a.genq)
	a.orch = orchestrator.New(a.brain, confWatch.Current, a.ledger)
	a.feedWatch = browser.NewFeedWatcher(a.session,
		time.Duration(cfg.Browser.EventPollMs)*time.Millisecond,
		browser.SinkFunc(a.onFeedItem))
	a.ticks = browser.NewTickRenderer(a.session, st, a.ledger)
	a.mentions = queue.New(queue.MentionQueue, st, queue.MentionInterval, a.handleMention)
	a.bulk = queue.New(queue.BulkQueue, st, cfg.ActionDelay(), a.handleBulkTarget)
	a.notifWatch = browser.NewNotificationWatcher(a.session, a.mentions)
	a.newSurface = func(ctx context.Context, rec feed.ItemRecord) orchestrator.Surface {
		return browser.NewItemSurface(ctx, a.session.Page(), rec)
	}
	return a, nil
}

// Run connects the browser and drives every component until ctx ends. The
// bulk queue only starts here, after the session is up, and only when
// EnableBulk was called first.
func (a *Agent) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryBoot)

	if err := a.session.Connect(ctx); err != nil {
		a.shutdown(log)
		return err
	}
	if err := a.session.OpenFeed(ctx); err != nil {
		a.shutdown(log)
		return err
	}
	if err := a.feedWatch.Install(ctx); err != nil {
		a.shutdown(log)
		return fmt.Errorf("install feed hook: %w", err)
	}
	if err := a.ticks.Render(ctx); err != nil {
		log.Debugw("initial tick render failed", "error", err)
	}

	a.mentions.Start(ctx)
	if a.runBulk {
		a.bulk.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.feedWatch.Run(gctx) })
	g.Go(func() error { return a.ticks.Run(gctx) })
	g.Go(func() error { return a.notifWatch.Run(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if cerr := a.shutdown(log); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// shutdown stops every background component in dependency order. Every exit
// path from Run comes through here, including connect failures, so a ticking
// queue can never outlive its session.
func (a *Agent) shutdown(log *zap.SugaredLogger) error {
	a.mentions.Stop()
	a.bulk.Stop()
	a.genq.Close()
	if err := a.session.Close(); err != nil {
		log.Debugw("browser close", "error", err)
	}
	err := a.store.Close()
	_ = a.confWatch.Close()
	return err
}

// LoadBulk replaces the bulk queue with items and resets its cursor.
func (a *Agent) LoadBulk(items []string) error { return a.bulk.Load(items) }

// EnableBulk arms the bulk queue so Run starts consuming it once the
// browser session is up. Starting earlier would tick against a page that
// does not exist yet.
func (a *Agent) EnableBulk() { a.runBulk = true }

// BulkStatus reports bulk queue progress.
func (a *Agent) BulkStatus() (queue.Status, error) { return a.bulk.Status() }

// Ledger exposes the reply ledger for reporting.
func (a *Agent) Ledger() *ledger.Ledger { return a.ledger }

// onFeedItem is the sink for newly rendered feed items.
func (a *Agent) onFeedItem(ctx context.Context, rec feed.ItemRecord) {
	log := logging.Get(logging.CategoryOrchestrator)
	cfg := a.confWatch.Current()

	if rec.AuthorHandle == "" {
		return
	}
	if !cfg.Automation.AutoComment && !cfg.Automation.AutoLike {
		return
	}

	rules := target.RulesFromConfig(cfg.Targeting)
	if d := rules.Decide(rec.AuthorHandle, rec.Followers, rec.FollowersKnown); !d.Allow {
		log.Debugw("target rejected", "author", rec.AuthorHandle, "reason", d.Reason)
		return
	}

	if !cfg.Automation.AutoComment {
		a.likeOnly(ctx, rec)
		return
	}

	// One reply per author per freshness window.
	if f, err := a.ledger.Classify(rec.AuthorHandle); err == nil && f == ledger.Fresh {
		log.Debugw("author still fresh, skipping", "author", rec.AuthorHandle)
		return
	}

	a.pageMu.Lock()
	defer a.pageMu.Unlock()

	surface := a.newSurface(ctx, rec)
	err := a.orch.Reply(ctx, surface, rec, cfg.Automation.Tone)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrBusy):
		log.Debugw("reply already in flight, item dropped", "author", rec.AuthorHandle)
	case ctx.Err() != nil:
	default:
		log.Warnw("reply failed", "author", rec.AuthorHandle, "error", err)
	}
}

func (a *Agent) likeOnly(ctx context.Context, rec feed.ItemRecord) {
	log := logging.Get(logging.CategoryOrchestrator)

	a.pageMu.Lock()
	defer a.pageMu.Unlock()

	surface := a.newSurface(ctx, rec)
	liked, err := surface.Liked()
	if err != nil || liked {
		return
	}
	if err := surface.ClickLike(); err != nil {
		log.Debugw("like failed", "author", rec.AuthorHandle, "error", err)
		return
	}
	log.Infow("liked", "author", rec.AuthorHandle)
}

// handleMention consumes one queued mention: open the notifications page,
// reply to the mentioning item, and return to the feed.
func (a *Agent) handleMention(ctx context.Context, item string) error {
	cfg := a.confWatch.Current()
	if !cfg.Automation.AutoReply {
		return nil
	}
	m, ok := browser.DecodeMention(item)
	if !ok {
		return fmt.Errorf("malformed mention item %q", item)
	}

	a.pageMu.Lock()
	defer a.pageMu.Unlock()

	if err := a.session.Navigate(ctx, browser.NotificationsURL(cfg.Browser.FeedURL)); err != nil {
		return err
	}
	defer a.returnToFeed(ctx)

	rec := feed.ItemRecord{AuthorHandle: m.AuthorHandle, BodyText: m.BodyText}
	surface := a.newSurface(ctx, rec)
	return a.orch.Reply(ctx, surface, rec, cfg.Automation.Tone)
}

// handleBulkTarget consumes one bulk queue entry: open the target author's
// profile, pick their newest visible item, and run the reply sequence.
func (a *Agent) handleBulkTarget(ctx context.Context, item string) error {
	cfg := a.confWatch.Current()
	handle := BulkTargetHandle(item)
	if handle == "" {
		return fmt.Errorf("malformed bulk target %q", item)
	}

	a.pageMu.Lock()
	defer a.pageMu.Unlock()

	if err := a.session.Navigate(ctx, profileURL(cfg.Browser.FeedURL, handle)); err != nil {
		return err
	}
	defer a.returnToFeed(ctx)

	rec, err := a.newestItemBy(ctx, handle)
	if err != nil {
		return err
	}

	rules := target.RulesFromConfig(cfg.Targeting)
	if d := rules.Decide(rec.AuthorHandle, rec.Followers, rec.FollowersKnown); !d.Allow {
		logging.Get(logging.CategoryBulk).Infow("bulk target rejected", "author", handle, "reason", d.Reason)
		return nil
	}

	surface := a.newSurface(ctx, rec)
	return a.orch.Reply(ctx, surface, rec, cfg.Automation.Tone)
}

// newestItemBy snapshots the current page and returns the first rendered
// item authored by handle.
func (a *Agent) newestItemBy(ctx context.Context, handle string) (feed.ItemRecord, error) {
	raw, err := a.session.HTML(ctx)
	if err != nil {
		return feed.ItemRecord{}, err
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return feed.ItemRecord{}, err
	}
	want := config.NormalizeHandle(handle)
	for _, item := range selector.ResolveAll(doc, selector.RoleFeedItem) {
		rec := feed.Extract(doc, item)
		if config.NormalizeHandle(rec.AuthorHandle) == want {
			return rec, nil
		}
	}
	return feed.ItemRecord{}, fmt.Errorf("no visible item by @%s", want)
}

// returnToFeed puts the session page back on the feed and re-arms the
// mutation hook. Failures only cost feed observation until the next pass.
func (a *Agent) returnToFeed(ctx context.Context) {
	log := logging.Get(logging.CategoryBrowser)
	if err := a.session.OpenFeed(ctx); err != nil {
		log.Warnw("return to feed failed", "error", err)
		return
	}
	if err := a.feedWatch.Install(ctx); err != nil {
		log.Warnw("re-arm feed hook failed", "error", err)
	}
}

// BulkTargetHandle normalizes one bulk queue entry, accepting bare handles,
// "@handle", and profile URLs.
func BulkTargetHandle(item string) string {
	item = strings.TrimSpace(item)
	if strings.Contains(item, "://") {
		u, err := url.Parse(item)
		if err != nil {
			return ""
		}
		item = strings.Trim(u.Path, "/")
		if i := strings.IndexByte(item, '/'); i >= 0 {
			item = item[:i]
		}
	}
	return config.NormalizeHandle(item)
}

func profileURL(feedURL, handle string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "https://x.com/" + handle
	}
	return u.Scheme + "://" + u.Host + "/" + handle
}
