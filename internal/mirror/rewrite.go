package mirror

import (
	"strings"

	"github.com/siteone-mirror/crawler/internal/urlmodel"
)

// TargetDomainRelation categorizes a reference by how its target's host and
// its containing document's host each relate to the crawl's initial host.
type TargetDomainRelation int

const (
	// InitialSameBaseSame: target and base are both the initial host.
	InitialSameBaseSame TargetDomainRelation = iota
	// InitialDifferentBaseSame: base is already under an external host's
	// tree, and target belongs to that same external host.
	InitialDifferentBaseSame
	// InitialSameBaseDifferent: a backlink, from an external host's tree,
	// to the initial host.
	InitialSameBaseDifferent
	// InitialDifferentBaseDifferent: a lateral reference between two
	// distinct external hosts (or from the initial host out to one).
	InitialDifferentBaseDifferent
)

// ClassifyRelation determines the TargetDomainRelation for a reference found
// in a document served from baseHost, pointing at targetHost, given the
// crawl's initialHost.
func ClassifyRelation(initialHost, baseHost, targetHost string) TargetDomainRelation {
	targetIsInitial := targetHost == initialHost
	baseSharesTargetTree := baseHost == targetHost
	switch {
	case targetIsInitial && baseSharesTargetTree:
		return InitialSameBaseSame
	case !targetIsInitial && baseSharesTargetTree:
		return InitialDifferentBaseSame
	case targetIsInitial:
		return InitialSameBaseDifferent
	default:
		return InitialDifferentBaseDifferent
	}
}

// isRequestable reports whether raw is a reference the crawler could ever
// fetch: not a data URI, mailto:/tel:/javascript:/about:/blob: scheme, and
// not a pure fragment.
func isRequestable(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range []string{"data:", "mailto:", "tel:", "javascript:", "about:", "blob:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	if idx := strings.Index(trimmed, "://"); idx >= 0 && !strings.ContainsAny(trimmed[:idx], "/?#") {
		switch lower[:idx] {
		case "http", "https":
		default:
			return false
		}
	}
	return true
}

// RewriteReference implements the relative rewrite algorithm: it resolves
// rawHref against base, decides whether the target is eligible to be
// rewritten at all, and if so returns the path that reaches the target's
// mirror file from base's mirror file. Ineligible or
// disallowed references are returned as the caller should emit them
// unchanged: rawHref verbatim when not requestable, or the absolute
// resolved URL when the target's host is not allowed.
//
// isAllowedExternal reports whether a non-initial host may be referenced at
// all (crawled or merely linked as an external asset); when it returns
// false for target's host, the original absolute URL is emitted unrewritten
// so a browser can still follow it out to the live site.
func RewriteReference(initialHost string, base urlmodel.ParsedUrl, rawHref string, isAllowedExternal func(host string) bool) string {
	if !isRequestable(rawHref) {
		return rawHref
	}

	target, err := urlmodel.ResolveRelative(base, rawHref)
	if err != nil {
		return rawHref
	}

	if target.Host != initialHost && !isAllowedExternal(target.Host) {
		return target.FullUrl()
	}

	relation := ClassifyRelation(initialHost, base.Host, target.Host)
	targetIsExternal := target.Host != initialHost
	baseIsExternal := base.Host != initialHost

	baseDepth := base.OfflineBaseUrlDepth()
	upHops := baseDepth
	switch relation {
	case InitialSameBaseDifferent, InitialDifferentBaseDifferent:
		if baseIsExternal {
			upHops++
		}
	}

	targetTreePath := MirrorPath(target, false)

	var b strings.Builder
	b.WriteString(strings.Repeat("../", upHops))
	if targetIsExternal && relation != InitialDifferentBaseSame {
		b.WriteString("_")
		b.WriteString(Sanitize(target.Host))
		b.WriteString("/")
	}
	b.WriteString(strings.TrimPrefix(targetTreePath, "/"))

	return sanitizeMirrorPath(b.String())
}
