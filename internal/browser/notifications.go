package browser

import (
	"strings"

	"golang.org/x/net/html"

	"xagent/internal/selector"
)

// Mention is one inbound reply-or-mention notification.
type Mention struct {
	AuthorHandle string
	BodyText     string
	IsReply      bool
}

var (
	selNotifSpan = selector.MustParse(`span`)
	selNotifLink = selector.MustParse(`a[href^="/"][role="link"]`)
	selNotifText = selector.MustParse(`[data-testid="tweetText"]`)
)

// ScanNotifications extracts reply and mention notifications from a parsed
// notifications-page snapshot. Only items carrying both an author link and
// body text are returned.
func ScanNotifications(doc *html.Node) []Mention {
	var out []Mention
	for _, article := range selector.ResolveAll(doc, selector.RoleNotificationItem) {
		kind, relevant := notificationKind(article)
		if !relevant {
			continue
		}

		body := selector.Text(selector.Query(article, selNotifText))
		link := selector.Query(article, selNotifLink)
		if body == "" || link == nil {
			continue
		}
		handle := strings.TrimPrefix(selector.AttrValue(link, "href"), "/")
		if i := strings.IndexByte(handle, '/'); i >= 0 {
			handle = handle[:i]
		}
		if handle == "" {
			continue
		}
		out = append(out, Mention{AuthorHandle: handle, BodyText: body, IsReply: kind})
	}
	return out
}

// notificationKind reports whether the article is a reply (true, true) or
// mention (false, true) notification.
func notificationKind(article *html.Node) (isReply, relevant bool) {
	for _, span := range selector.QueryAll(article, selNotifSpan) {
		text := strings.ToLower(selector.Text(span))
		if strings.Contains(text, "replied to") || strings.Contains(text, "replying to") {
			return true, true
		}
		if strings.Contains(text, "mentioned you") {
			return false, true
		}
	}
	return false, false
}
