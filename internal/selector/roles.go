package selector

import "golang.org/x/net/html"

// Role names a logical UI element the agent needs to find regardless of how
// the page markup shifts between layout experiments.
type Role string

const (
	RoleFeedItem         Role = "feed_item"
	RoleItemText         Role = "item_text"
	RoleUserNames        Role = "user_names"
	RoleUserCell         Role = "user_cell"
	RoleUserBio          Role = "user_bio"
	RoleVerifiedBadge    Role = "verified_badge"
	RoleLikeButton       Role = "like_button"
	RoleUnlikeButton     Role = "unlike_button"
	RoleRepostButton     Role = "repost_button"
	RoleReplyButton      Role = "reply_button"
	RoleActionsBar       Role = "actions_bar"
	RoleComposeTextbox   Role = "compose_textbox"
	RoleComposeEditable  Role = "compose_editable"
	RoleSubmitButton     Role = "submit_button"
	RoleNotificationItem Role = "notification_item"
)

// Strategy is one way to locate a role. Strategies are tried in table order;
// the first one producing a node wins.
type Strategy struct {
	Sel Selector
	// Parent, when set, yields the matched node's parent element. Covers
	// layouts where the stable anchor is a child of the element wanted.
	Parent bool
	// Accept, when set, must approve the candidate before it is returned.
	Accept func(*html.Node) bool
}

// strategies mirrors the 2025 X web layout variants, ordered most-specific
// first. Trailing entries carry Turkish aria-label forms seen in the wild.
var strategies = map[Role][]Strategy{
	RoleFeedItem: {
		{Sel: MustParse(`article[data-testid="tweet"]`)},
		{Sel: MustParse(`article[role="article"]`)},
		{Sel: MustParse(`[data-testid="cellInnerDiv"] article`)},
	},
	RoleItemText: {
		{Sel: MustParse(`[data-testid="tweetText"]`)},
		{Sel: MustParse(`[data-testid="tweet-text-show-more-link"]`), Parent: true},
		{Sel: MustParse(`div[dir="auto"][lang]`)},
		{Sel: MustParse(`[lang]`)},
		{Sel: MustParse(`div[dir="auto"]`)},
	},
	RoleUserNames: {
		{Sel: MustParse(`[data-testid="User-Name"]`)},
		{Sel: MustParse(`[data-testid="User-Names"]`)},
		{Sel: MustParse(`a[role="link"][href^="/"]`), Parent: true},
	},
	RoleUserCell: {
		{Sel: MustParse(`[data-testid="UserCell"]`)},
	},
	RoleUserBio: {
		{Sel: MustParse(`[data-testid="UserDescription"]`)},
	},
	RoleVerifiedBadge: {
		{Sel: MustParse(`[data-testid="icon-verified"]`)},
		{Sel: MustParse(`[data-testid="verificationBadge"]`)},
		{Sel: MustParse(`svg[aria-label*="Verified"]`)},
		{Sel: MustParse(`svg[aria-label*="verified"]`)},
		{Sel: MustParse(`[aria-label*="verified"]`)},
		{Sel: MustParse(`[aria-label*="Doğrulanmış"]`)},
	},
	RoleLikeButton: {
		{Sel: MustParse(`button[data-testid="like"]`)},
		{Sel: MustParse(`[data-testid="like"]`)},
		{Sel: MustParse(`[aria-label*="Like"]`)},
		{Sel: MustParse(`[aria-label*="Beğen"]`)},
	},
	RoleUnlikeButton: {
		{Sel: MustParse(`button[data-testid="unlike"]`)},
		{Sel: MustParse(`[data-testid="unlike"]`)},
		{Sel: MustParse(`[aria-label*="Unlike"]`)},
		{Sel: MustParse(`[aria-label*="Beğeniyi"]`)},
	},
	RoleRepostButton: {
		{Sel: MustParse(`button[data-testid="retweet"]`)},
		{Sel: MustParse(`[data-testid="retweet"]`)},
		{Sel: MustParse(`[aria-label*="Repost"]`)},
		{Sel: MustParse(`[aria-label*="repost"]`)},
	},
	RoleReplyButton: {
		{Sel: MustParse(`button[data-testid="reply"]`)},
		{Sel: MustParse(`[data-testid="reply"]`)},
		{Sel: MustParse(`[aria-label*="Reply"]`)},
		{Sel: MustParse(`[aria-label*="reply"]`)},
		{Sel: MustParse(`[aria-label*="Yanıtla"]`)},
	},
	RoleActionsBar: {
		{Sel: MustParse(`[role="group"][id]`)},
		{Sel: MustParse(`[role="group"]`)},
		{Sel: MustParse(`[aria-label*="actions"]`), Parent: true},
	},
	RoleComposeTextbox: {
		{Sel: MustParse(`div[data-testid="tweetTextarea_0"]`)},
		{Sel: MustParse(`div[data-testid="tweetTextarea_1"]`)},
		{Sel: MustParse(`[data-testid="tweetTextarea_0RichTextInputContainer"]`)},
		{Sel: MustParse(`[data-testid="tweetTextarea_1RichTextInputContainer"]`)},
		{Sel: MustParse(`[role="textbox"][aria-label*="Tweet"]`)},
		{Sel: MustParse(`[role="textbox"][aria-label*="Post"]`)},
		{Sel: MustParse(`[role="textbox"][aria-label*="reply"]`)},
		{Sel: MustParse(`[role="textbox"][aria-label]`)},
		{Sel: MustParse(`[contenteditable="true"][role="textbox"]`)},
	},
	RoleComposeEditable: {
		{Sel: MustParse(`[data-testid="tweetTextarea_0"] [contenteditable="true"]`)},
		{Sel: MustParse(`[data-testid="tweetTextarea_1"] [contenteditable="true"]`)},
		{Sel: MustParse(`.DraftEditor-editorContainer [contenteditable="true"]`)},
		{Sel: MustParse(`[contenteditable="true"]`)},
	},
	RoleSubmitButton: {
		{Sel: MustParse(`button[data-testid="tweetButton"]`)},
		{Sel: MustParse(`button[data-testid="tweetButtonInline"]`)},
		{Sel: MustParse(`[data-testid="tweetButton"]`)},
		{Sel: MustParse(`[data-testid="tweetButtonInline"]`)},
		{Sel: MustParse(`[data-testid="toolBar"] button[type="button"]:not([aria-label])`)},
		{Sel: MustParse(`[aria-label*="Post"][role="button"]`)},
		{Sel: MustParse(`[aria-label*="Reply"][role="button"]`)},
	},
	RoleNotificationItem: {
		{Sel: MustParse(`article[data-testid="notification"]`)},
	},
}

// Strategies returns the ordered strategy list for a role. The returned slice
// must not be mutated.
func Strategies(role Role) []Strategy { return strategies[role] }

// LiveSelectors returns the raw CSS text of every strategy for a role, in
// table order, for resolution inside a live page. Parent-hop strategies are
// skipped since the page side cannot express the hop in CSS alone.
func LiveSelectors(role Role) []string {
	var out []string
	for _, st := range strategies[role] {
		if st.Parent {
			continue
		}
		out = append(out, st.Sel.String())
	}
	return out
}

// Resolve finds the first node under scope satisfying any strategy for the
// role, in strategy order. A missing element is an ordinary outcome reported
// by the bool, never an error.
func Resolve(scope *html.Node, role Role) (*html.Node, bool) {
	for _, st := range strategies[role] {
		n := Query(scope, st.Sel)
		if n == nil {
			continue
		}
		if st.Parent {
			n = parentElement(n)
			if n == nil {
				continue
			}
		}
		if st.Accept != nil && !st.Accept(n) {
			continue
		}
		return n, true
	}
	return nil, false
}

// ResolveAll gathers the union of matches for every strategy of the role in
// document order, deduplicated. Used for roles that are lists, like feed
// items on screen.
func ResolveAll(scope *html.Node, role Role) []*html.Node {
	seen := make(map[*html.Node]bool)
	var out []*html.Node
	Walk(scope, func(n *html.Node) bool {
		for _, st := range strategies[role] {
			if st.Parent || !st.Sel.Match(n) {
				continue
			}
			if st.Accept != nil && !st.Accept(n) {
				continue
			}
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
			break
		}
		return true
	})
	return out
}

func parentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}
