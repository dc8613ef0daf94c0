package feed

import (
	"strings"

	"golang.org/x/net/html"

	"xagent/internal/selector"
)

const maxRecentTexts = 3

var (
	selLink       = selector.MustParse(`a[role="link"]`)
	selSpan       = selector.MustParse(`span`)
	selShortLink  = selector.MustParse(`a[href*="t.co"]`)
	selTextInItem = selector.MustParse(`[data-testid="tweetText"]`)
)

// Extract builds an ItemRecord for one feed item node. doc is the whole
// document the item came from, used for app-wide lookups (author bio card,
// the author's other visible items). Missing fields come back empty; a
// partially-populated record is the normal outcome, not an error.
func Extract(doc, item *html.Node) ItemRecord {
	rec := ItemRecord{
		BodyText:     bodyText(item),
		AuthorHandle: AuthorHandle(item),
	}

	if _, ok := selector.Resolve(item, selector.RoleVerifiedBadge); ok {
		rec.Verified = true
	}
	rec.LinkURL = embeddedLink(item, rec.BodyText)
	rec.Followers, rec.FollowersKnown = FollowerCount(item)

	if doc != nil {
		if bio, ok := selector.Resolve(doc, selector.RoleUserBio); ok {
			rec.AuthorBio = selector.Text(bio)
		}
		rec.RecentTexts = recentTexts(doc, item, rec.AuthorHandle)
	}
	return rec
}

// AuthorHandle resolves the item author's handle. Preferred path: a span
// whose text starts with "@", walked up to its enclosing link, taking the
// last segment of the link target. Fallback: first link inside the
// user-names container.
func AuthorHandle(item *html.Node) string {
	for _, span := range selector.QueryAll(item, selSpan) {
		if !strings.HasPrefix(selector.Text(span), "@") {
			continue
		}
		link := selector.Closest(span, selLink)
		if link == nil {
			continue
		}
		if h := lastPathSegment(selector.AttrValue(link, "href")); h != "" {
			return h
		}
	}
	if names, ok := selector.Resolve(item, selector.RoleUserNames); ok {
		if link := selector.Query(names, selLink); link != nil {
			return lastPathSegment(selector.AttrValue(link, "href"))
		}
	}
	return ""
}

func bodyText(item *html.Node) string {
	n, ok := selector.Resolve(item, selector.RoleItemText)
	if !ok {
		return ""
	}
	return selector.Text(n)
}

// embeddedLink returns the shortened-link target for a URL shown in the body
// text. The visible anchor text must actually appear in the body, so card
// previews and media anchors are skipped.
func embeddedLink(item *html.Node, body string) string {
	if !strings.Contains(body, "http://") && !strings.Contains(body, "https://") {
		return ""
	}
	for _, a := range selector.QueryAll(item, selShortLink) {
		text := selector.Text(a)
		if text != "" && strings.Contains(body, text) {
			return selector.AttrValue(a, "href")
		}
	}
	return ""
}

// recentTexts scans every rendered item in the document for others by the
// same author, in document order, capped at 3. Only what is currently on
// screen is visible, so the result is best-effort and not chronological.
func recentTexts(doc, self *html.Node, handle string) []string {
	if handle == "" {
		return nil
	}
	want := strings.ToLower(handle)
	var out []string
	for _, other := range selector.ResolveAll(doc, selector.RoleFeedItem) {
		if len(out) >= maxRecentTexts {
			break
		}
		if other == self {
			continue
		}
		if !strings.EqualFold(AuthorHandle(other), want) {
			continue
		}
		if text := selector.Text(selector.Query(other, selTextInItem)); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func lastPathSegment(href string) string {
	href = strings.TrimSuffix(href, "/")
	if i := strings.LastIndexByte(href, '/'); i >= 0 {
		return href[i+1:]
	}
	return href
}
