// Package brain produces reply text for feed items through the Gemini API,
// enriching each request with best-effort context: body sentiment, a summary
// of any linked page, and an analysis of the author's writing style.
package brain

import "context"

// ReplyRequest carries everything extracted about a feed item plus the
// caller's tone intent.
type ReplyRequest struct {
	BodyText     string
	AuthorHandle string
	Verified     bool
	LinkURL      string
	AuthorBio    string
	RecentTexts  []string
	ToneIntent   string
}

// Client generates reply text. Implementations are expected to be slow and
// unreliable; callers treat each call as consuming backend quota and never
// retry automatically.
type Client interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}
