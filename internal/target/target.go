// Package target decides whether a feed item's author may be engaged,
// based on configured blacklist/whitelist sets and follower bounds.
package target

import (
	"xagent/internal/config"
)

// Decision is the outcome of evaluating a handle against the rules.
type Decision struct {
	Allow  bool
	Reason string
}

// Rules is the normalized targeting configuration. Handles are stored
// lowercased with any leading "@" stripped, so lookups are case- and
// at-sign-insensitive.
type Rules struct {
	MinFollowers uint64
	MaxFollowers uint64 // 0 means no upper bound
	blacklist    map[string]bool
	whitelist    map[string]bool
}

// RulesFromConfig builds Rules from the targeting section of the config.
func RulesFromConfig(tc config.TargetingConfig) Rules {
	return Rules{
		MinFollowers: uint64(tc.MinFollowers),
		MaxFollowers: uint64(tc.MaxFollowers),
		blacklist:    handleSet(tc.Blacklist),
		whitelist:    handleSet(tc.Whitelist),
	}
}

func handleSet(csv string) map[string]bool {
	set := make(map[string]bool)
	for _, h := range config.SplitHandleList(csv) {
		set[h] = true
	}
	return set
}

// Blacklisted reports whether the handle is denied outright.
func (r Rules) Blacklisted(handle string) bool {
	return r.blacklist[config.NormalizeHandle(handle)]
}

// Whitelisted reports whether the handle bypasses follower bounds.
func (r Rules) Whitelisted(handle string) bool {
	return r.whitelist[config.NormalizeHandle(handle)]
}

// Decide evaluates a handle with an optionally-known follower count.
// Precedence: blacklist, then whitelist, then follower bounds. An unknown
// count fails open since scraping it is best-effort.
func (r Rules) Decide(handle string, followers uint64, known bool) Decision {
	switch {
	case r.Blacklisted(handle):
		return Decision{Allow: false, Reason: "blacklisted"}
	case r.Whitelisted(handle):
		return Decision{Allow: true, Reason: "whitelisted"}
	case !known:
		return Decision{Allow: true, Reason: "follower count unknown"}
	case r.MinFollowers > 0 && followers < r.MinFollowers:
		return Decision{Allow: false, Reason: "below follower minimum"}
	case r.MaxFollowers > 0 && followers > r.MaxFollowers:
		return Decision{Allow: false, Reason: "above follower maximum"}
	}
	return Decision{Allow: true, Reason: "in range"}
}
