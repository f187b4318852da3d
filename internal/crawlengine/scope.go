package crawlengine

import (
	"regexp"

	"github.com/gobwas/glob"
)

// disposition is the scope predicate's verdict for a discovered reference.
type disposition int

const (
	// dispositionCrawl: fetch the URL and recurse into whatever it links to.
	dispositionCrawl disposition = iota
	// dispositionExternalAsset: fetch and mirror the URL, but never extract
	// further links from it (an allowed external image, font, script...).
	dispositionExternalAsset
	// dispositionSkip: never fetch; not on either allow-list.
	dispositionSkip
)

// scope decides, for every discovered URL, whether the crawl follows it,
// downloads it as a leaf asset, or ignores it, based on the
// --allowed-domain-for-* / --include-regex / --ignore-regex flags.
type scope struct {
	initialHost                string
	allowedForCrawling         []glob.Glob
	allowedForExternalFiles    []glob.Glob
	includeRegex               []*regexp.Regexp
	ignoreRegex                []*regexp.Regexp
	regexFilteringOnlyForPages bool
}

func newScope(initialHost string, crawlPatterns, externalPatterns, includePatterns, ignorePatterns []string, regexOnlyForPages bool) (*scope, error) {
	s := &scope{initialHost: initialHost, regexFilteringOnlyForPages: regexOnlyForPages}
	for _, p := range crawlPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		s.allowedForCrawling = append(s.allowedForCrawling, g)
	}
	for _, p := range externalPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		s.allowedForExternalFiles = append(s.allowedForExternalFiles, g)
	}
	for _, p := range includePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		s.includeRegex = append(s.includeRegex, re)
	}
	for _, p := range ignorePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		s.ignoreRegex = append(s.ignoreRegex, re)
	}
	return s, nil
}

func matchesAny(globs []glob.Glob, host string) bool {
	for _, g := range globs {
		if g.Match(host) {
			return true
		}
	}
	return false
}

// classify returns dispositionCrawl for the initial host and any host on
// the crawling allow-list, dispositionExternalAsset for a host allowed only
// as an asset source, and dispositionSkip otherwise.
func (s *scope) classify(host string) disposition {
	if host == s.initialHost || matchesAny(s.allowedForCrawling, host) {
		return dispositionCrawl
	}
	if matchesAny(s.allowedForExternalFiles, host) {
		return dispositionExternalAsset
	}
	return dispositionSkip
}

// isAllowedExternal reports whether host may be referenced at all (crawled
// or downloaded as an asset); used by the Offline URL Transformer to decide
// whether a reference gets rewritten or left pointing at the live site.
func (s *scope) isAllowedExternal(host string) bool {
	return s.classify(host) != dispositionSkip
}

// passesRegexFilters applies --include-regex / --ignore-regex to a URL's
// full form: ignore wins when both match, and an empty include list means
// "no restriction". isPage indicates whether the reference counts as a page
// (the engine passes true for <a href> references), relevant only when
// regexFilteringOnlyForPages is set.
func (s *scope) passesRegexFilters(fullUrl string, isPage bool) bool {
	if s.regexFilteringOnlyForPages && !isPage {
		return true
	}
	for _, re := range s.ignoreRegex {
		if re.MatchString(fullUrl) {
			return false
		}
	}
	if len(s.includeRegex) == 0 {
		return true
	}
	for _, re := range s.includeRegex {
		if re.MatchString(fullUrl) {
			return true
		}
	}
	return false
}
