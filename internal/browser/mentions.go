package browser

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	"xagent/internal/logging"
	"xagent/internal/queue"
)

const (
	// NotificationsPoll is how often the notifications page is re-read.
	NotificationsPoll = 5 * time.Minute

	// enqueueCooldown is the minimum gap between queued mentions, so a
	// burst of notifications cannot flood the reply queue at once.
	enqueueCooldown = 60 * time.Second

	seenLimit = 1000
)

// Encode flattens a mention into a queue item.
func (m Mention) Encode() string {
	kind := "mention"
	if m.IsReply {
		kind = "reply"
	}
	return kind + "\t" + m.AuthorHandle + "\t" + m.BodyText
}

// DecodeMention reverses Mention.Encode.
func DecodeMention(item string) (Mention, bool) {
	parts := strings.SplitN(item, "\t", 3)
	if len(parts) != 3 || parts[1] == "" {
		return Mention{}, false
	}
	return Mention{AuthorHandle: parts[1], BodyText: parts[2], IsReply: parts[0] == "reply"}, true
}

// NotificationWatcher periodically reads the notifications page in its own
// tab and feeds new reply and mention notifications into the mention queue.
type NotificationWatcher struct {
	session *Session
	queue   *queue.Processor
	poll    time.Duration

	page     *rod.Page
	seen     map[string]struct{}
	lastPush time.Time
	now      func() time.Time
}

// NewNotificationWatcher builds a watcher that pushes into q.
func NewNotificationWatcher(session *Session, q *queue.Processor) *NotificationWatcher {
	return &NotificationWatcher{
		session: session,
		queue:   q,
		poll:    NotificationsPoll,
		seen:    make(map[string]struct{}),
		now:     time.Now,
	}
}

// Run polls the notifications page until ctx is done. Only active while
// auto-reply is enabled; when it is off the page is left alone.
func (w *NotificationWatcher) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryMentions)
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if w.session.conf().Automation.AutoReply {
			if err := w.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warnw("notifications scan failed", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *NotificationWatcher) scan(ctx context.Context) error {
	log := logging.Get(logging.CategoryMentions)

	page, err := w.notificationsPage(ctx)
	if err != nil {
		return err
	}
	if err := page.Context(ctx).Reload(); err != nil {
		return err
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return err
	}

	raw, err := page.Context(ctx).HTML()
	if err != nil {
		return err
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return err
	}

	for _, m := range ScanNotifications(doc) {
		key := strings.ToLower(m.AuthorHandle) + "|" + m.BodyText
		if _, ok := w.seen[key]; ok {
			continue
		}
		w.remember(key)

		if gap := w.now().Sub(w.lastPush); gap < enqueueCooldown && !w.lastPush.IsZero() {
			log.Debugw("mention enqueue cooldown", "author", m.AuthorHandle, "gap", gap)
			continue
		}
		if err := w.queue.Push(m.Encode()); err != nil {
			log.Warnw("queue mention failed", "author", m.AuthorHandle, "error", err)
			continue
		}
		w.lastPush = w.now()
		log.Infow("mention queued", "author", m.AuthorHandle, "reply", m.IsReply)
	}
	return nil
}

// notificationsPage opens the notifications tab on first use and reuses it
// afterwards. The URL is derived from the configured feed URL so attaching
// to x.com or twitter.com both work.
func (w *NotificationWatcher) notificationsPage(ctx context.Context) (*rod.Page, error) {
	if w.page != nil {
		return w.page, nil
	}
	page, err := w.session.browser.Page(proto.TargetCreateTarget{URL: NotificationsURL(w.session.conf().Browser.FeedURL)})
	if err != nil {
		return nil, err
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		_ = page.Close()
		return nil, err
	}
	w.page = page
	return page, nil
}

func (w *NotificationWatcher) remember(key string) {
	if len(w.seen) >= seenLimit {
		w.seen = make(map[string]struct{}, seenLimit)
	}
	w.seen[key] = struct{}{}
}

// NotificationsURL derives the notifications page URL from the configured
// feed URL, so attaching to x.com or twitter.com both work.
func NotificationsURL(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "https://x.com/notifications"
	}
	return u.Scheme + "://" + u.Host + "/notifications"
}
