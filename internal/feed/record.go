// Package feed turns rendered feed markup into normalized item records. It
// reads parsed HTML snapshots only, so all extraction is testable without a
// live browser.
package feed

// ItemRecord is the normalized view of one rendered feed item plus whatever
// author context is visible on screen. It is derived per observation and
// never persisted.
type ItemRecord struct {
	BodyText     string
	AuthorHandle string
	Verified     bool
	LinkURL      string   // empty when the item carries no shortened link
	AuthorBio    string   // best-effort, from a visible profile/hover card
	RecentTexts  []string // up to 3 other visible items by the same author

	// Follower count scraped from a visible user cell. FollowersKnown is
	// false when no count was on screen, which targeting treats as a pass.
	Followers      uint64
	FollowersKnown bool
}
