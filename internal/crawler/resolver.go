package crawler

import (
	"strings"

	"github.com/Harvey-AU/site-mirror/internal/util"
)

// Classify maps an element and the attribute carrying its URL to a role.
// Stylesheet links are only selected through link[rel~=stylesheet], so the
// rel check lives in the selector. Unrecognised pairs return false.
func Classify(tag, attr string) (Role, bool) {
	switch strings.ToLower(tag) + "/" + strings.ToLower(attr) {
	case "link/href":
		return RoleStylesheet, true
	case "script/src":
		return RoleScript, true
	case "img/src":
		return RoleImage, true
	case "a/href":
		return RolePage, true
	default:
		return 0, false
	}
}

// ResolveTarget resolves href against base and pairs the result with role
func ResolveTarget(href, base string, role Role) (CrawlTarget, error) {
	abs, err := util.ResolveURL(href, base)
	if err != nil {
		return CrawlTarget{}, err
	}
	return CrawlTarget{URL: abs, Role: role}, nil
}

// targetSet keeps the first occurrence of each URL in insertion order
type targetSet struct {
	seen    map[string]struct{}
	targets []CrawlTarget
}

func newTargetSet() *targetSet {
	return &targetSet{seen: make(map[string]struct{})}
}

func (s *targetSet) add(t CrawlTarget) {
	if _, ok := s.seen[t.URL]; ok {
		return
	}
	s.seen[t.URL] = struct{}{}
	s.targets = append(s.targets, t)
}
