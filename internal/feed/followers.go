package feed

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"xagent/internal/selector"
)

// followerRe matches abbreviated counts next to a followers label, including
// the Turkish label variant.
var followerRe = regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?[KMB]?)\s*(?:followers|takipçi)`)

// FollowerCount scrapes the author's follower count from a user cell inside
// the item, when one is rendered. The timeline rarely shows one, so the
// result is best-effort: ok is false when no count is visible or it cannot
// be parsed.
func FollowerCount(item *html.Node) (uint64, bool) {
	cell, found := selector.Resolve(item, selector.RoleUserCell)
	if !found {
		return 0, false
	}
	m := followerRe.FindStringSubmatch(selector.Text(cell))
	if m == nil {
		return 0, false
	}
	return ParseFollowerCount(m[1])
}

// ParseFollowerCount parses an abbreviated count string: "10K" is 10000,
// "1.5M" is 1500000, "2B" is 2e9, bare and comma-grouped numbers pass
// through. Unparseable text yields ok=false.
func ParseFollowerCount(s string) (uint64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		mult, s = 1e3, s[:len(s)-1]
	case 'M', 'm':
		mult, s = 1e6, s[:len(s)-1]
	case 'B', 'b':
		mult, s = 1e9, s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return uint64(n * mult), true
}
