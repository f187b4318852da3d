// Package urlmodel parses, normalizes and classifies URLs encountered during
// a crawl. It has no network or filesystem dependency: every operation is a
// pure function over strings.
package urlmodel

import (
	"fmt"
	"strconv"
	"strings"
)

// htmlLikeExtensions are extensions whose resources are expected to return
// dynamically generated HTML rather than a static file.
var htmlLikeExtensions = map[string]struct{}{
	"htm": {}, "html": {}, "shtml": {}, "php": {}, "phtml": {}, "ashx": {},
	"xhtml": {}, "asp": {}, "aspx": {}, "jsp": {}, "jspx": {}, "do": {},
	"cfm": {}, "cgi": {}, "pl": {}, "rb": {}, "erb": {}, "gsp": {},
}

var imageExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "webp": {}, "svg": {},
	"ico": {}, "bmp": {}, "avif": {}, "tiff": {},
}

var fontExtensions = map[string]struct{}{
	"woff": {}, "woff2": {}, "ttf": {}, "otf": {}, "eot": {},
}

// ParsedUrl is an immutable-by-construction decomposition of an absolute or
// protocol-relative URL.
type ParsedUrl struct {
	Scheme    string // "" for protocol-relative input
	Host      string
	Port      int
	Path      string
	Query     string
	Fragment  string
	Extension string // lowercased, without the leading dot; "" if none
}

// ErrMalformedURL is returned by Parse for input that cannot be decomposed
// into at least a host or a path.
type ErrMalformedURL struct {
	Raw string
}

func (e *ErrMalformedURL) Error() string {
	return fmt.Sprintf("malformed url: %q", e.Raw)
}

func defaultPort(scheme string) int {
	switch scheme {
	case "https":
		return 443
	case "http":
		return 80
	default:
		return 0
	}
}

// Parse decomposes raw into a ParsedUrl. It tolerates protocol-relative
// input ("//host/path") by leaving Scheme empty, and accepts bare relative
// paths ("/a/b", "a/b") with an empty Host.
func Parse(raw string) (ParsedUrl, error) {
	if raw == "" {
		return ParsedUrl{}, &ErrMalformedURL{Raw: raw}
	}

	rest := raw
	var scheme string
	if idx := strings.Index(rest, "://"); idx >= 0 && !strings.ContainsAny(rest[:idx], "/?#") {
		scheme = strings.ToLower(rest[:idx])
		rest = rest[idx+3:]
	} else if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
	}

	var host, path, query, fragment string
	authorityPresent := scheme != "" || strings.HasPrefix(raw, "//")
	if authorityPresent {
		end := strings.IndexAny(rest, "/?#")
		if end < 0 {
			host = rest
			rest = ""
		} else {
			host = rest[:end]
			rest = rest[end:]
		}
		if host == "" {
			return ParsedUrl{}, &ErrMalformedURL{Raw: raw}
		}
	}

	if idx := strings.Index(rest, "#"); idx >= 0 {
		fragment = rest[idx+1:]
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, "?"); idx >= 0 {
		query = rest[idx+1:]
		rest = rest[:idx]
	}
	path = rest

	host, port, err := splitHostPort(host, scheme)
	if err != nil {
		return ParsedUrl{}, &ErrMalformedURL{Raw: raw}
	}

	if host != "" && path == "" {
		path = "/"
	}

	return ParsedUrl{
		Scheme:    scheme,
		Host:      host,
		Port:      port,
		Path:      path,
		Query:     query,
		Fragment:  fragment,
		Extension: extensionFromPath(path),
	}, nil
}

func splitHostPort(hostport, scheme string) (string, int, error) {
	if hostport == "" {
		return "", 0, nil
	}
	if strings.HasPrefix(hostport, "[") {
		// IPv6 literal, optionally with a port.
		end := strings.Index(hostport, "]")
		if end < 0 {
			return "", 0, fmt.Errorf("unterminated ipv6 literal")
		}
		host := hostport[:end+1]
		if len(hostport) > end+1 {
			if hostport[end+1] != ':' {
				return "", 0, fmt.Errorf("bad ipv6 authority")
			}
			p, err := strconv.Atoi(hostport[end+2:])
			if err != nil {
				return "", 0, err
			}
			return host, p, nil
		}
		return host, defaultPort(scheme), nil
	}
	if idx := strings.LastIndex(hostport, ":"); idx >= 0 {
		p, err := strconv.Atoi(hostport[idx+1:])
		if err == nil {
			return hostport[:idx], p, nil
		}
	}
	return hostport, defaultPort(scheme), nil
}

func extensionFromPath(path string) string {
	seg := path
	if idx := strings.LastIndex(seg, "/"); idx >= 0 {
		seg = seg[idx+1:]
	}
	idx := strings.LastIndex(seg, ".")
	if idx < 0 || idx == len(seg)-1 {
		return ""
	}
	return strings.ToLower(seg[idx+1:])
}

func extensionFromQuery(query string) string {
	if query == "" {
		return ""
	}
	// Scan every dot-delimited token in the (possibly percent-encoded) query
	// and keep the last one that looks like "name.ext".
	best := ""
	for _, tok := range strings.FieldsFunc(query, func(r rune) bool {
		return r == '&' || r == '=' || r == '%' || r == '/'
	}) {
		idx := strings.LastIndex(tok, ".")
		if idx < 0 || idx == len(tok)-1 {
			continue
		}
		ext := strings.ToLower(tok[idx+1:])
		if isPlausibleExtension(ext) {
			best = ext
		}
	}
	return best
}

func isPlausibleExtension(ext string) bool {
	if len(ext) == 0 || len(ext) > 5 {
		return false
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// FullUrl renders the ParsedUrl back to its canonical string form, omitting
// the port when it equals the scheme's default.
func (u ParsedUrl) FullUrl() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
	} else if u.Host != "" {
		b.WriteString("//")
	}
	if u.Host != "" {
		b.WriteString(u.Host)
		if u.Port != 0 && u.Port != defaultPort(u.Scheme) {
			fmt.Fprintf(&b, ":%d", u.Port)
		}
	}
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// IsStaticFile reports whether u's path ends in an extension that is not in
// the HTML-like set.
func (u ParsedUrl) IsStaticFile() bool {
	if u.Extension == "" {
		return false
	}
	_, html := htmlLikeExtensions[u.Extension]
	return !html
}

// IsImage reports whether u's estimated extension is a known image type.
func (u ParsedUrl) IsImage() bool {
	_, ok := imageExtensions[u.EstimateExtension()]
	return ok
}

// IsFont reports whether u's estimated extension is a known web font type.
func (u ParsedUrl) IsFont() bool {
	_, ok := fontExtensions[u.EstimateExtension()]
	return ok
}

// EstimateExtension returns the best-guess extension for u, falling back to
// a query-embedded filename (e.g. "/_next/image?url=%2Fa%2Fb.png&w=640")
// when the path itself carries none. Unlike Extension, this is a guess used
// for display and mirror file naming, not for the IsStaticFile invariant.
func (u ParsedUrl) EstimateExtension() string {
	if u.Extension != "" {
		return u.Extension
	}
	return extensionFromQuery(u.Query)
}

// OfflineBaseUrlDepth returns the number of "../" levels the mirror of u
// sits below the mirror root.
func (u ParsedUrl) OfflineBaseUrlDepth() int {
	path := u.Path
	if path == "" || path == "/" {
		return 0
	}
	trailingSlash := strings.HasSuffix(path, "/")
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return 0
	}
	segments := strings.Split(trimmed, "/")
	depth := len(segments) - 1
	if trailingSlash {
		// A directory URL synthesizes an index.html one level deeper.
		depth++
	}
	if depth < 0 {
		depth = 0
	}
	return depth
}

// ResolveRelative resolves href against base, which must itself be an
// absolute or protocol-relative ParsedUrl, and returns the absolute result.
func ResolveRelative(base ParsedUrl, href string) (ParsedUrl, error) {
	if href == "" {
		return base, nil
	}

	// scheme://... is already absolute.
	if idx := strings.Index(href, "://"); idx >= 0 && !strings.ContainsAny(href[:idx], "/?#") {
		return Parse(href)
	}

	// //host/... inherits the base scheme.
	if strings.HasPrefix(href, "//") {
		p, err := Parse(href)
		if err != nil {
			return ParsedUrl{}, err
		}
		p.Scheme = base.Scheme
		p.Port = defaultPortOrKeep(p.Port, p.Scheme)
		p.Extension = extensionFromPath(p.Path)
		return p, nil
	}

	// /path replaces the base's path from the root.
	if strings.HasPrefix(href, "/") {
		p, query, fragment := splitPathQueryFragment(href)
		return ParsedUrl{
			Scheme:    base.Scheme,
			Host:      base.Host,
			Port:      base.Port,
			Path:      p,
			Query:     query,
			Fragment:  fragment,
			Extension: extensionFromPath(p),
		}, nil
	}

	// Anything else is resolved against the base's directory.
	dir := baseDirectory(base.Path)
	rel, query, fragment := splitPathQueryFragment(href)
	merged := joinAndClean(dir, rel)
	if query == "" {
		query = base.Query
		if rel != "" && strings.Contains(href, "?") {
			// href explicitly supplied its own (possibly empty) query string.
		}
	}
	if strings.Contains(href, "?") {
		// An explicit "?" in href always wins, even an empty query.
		_, q, _ := splitPathQueryFragment(href)
		query = q
	} else {
		query = ""
	}

	return ParsedUrl{
		Scheme:    base.Scheme,
		Host:      base.Host,
		Port:      base.Port,
		Path:      merged,
		Query:     query,
		Fragment:  fragment,
		Extension: extensionFromPath(merged),
	}, nil
}

func defaultPortOrKeep(port int, scheme string) int {
	if port != 0 {
		return port
	}
	return defaultPort(scheme)
}

func splitPathQueryFragment(s string) (path, query, fragment string) {
	if idx := strings.Index(s, "#"); idx >= 0 {
		fragment = s[idx+1:]
		s = s[:idx]
	}
	if idx := strings.Index(s, "?"); idx >= 0 {
		query = s[idx+1:]
		s = s[:idx]
	}
	path = s
	return
}

// baseDirectory truncates a path to its last "/", treating a path that
// appears to end in a filename as needing truncation.
func baseDirectory(path string) string {
	if path == "" {
		return "/"
	}
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "/"
	}
	return path[:idx+1]
}

// joinAndClean joins a base directory with a relative path and resolves
// "." and ".." segments, clamping extra ".." beyond the root silently.
func joinAndClean(dir, rel string) string {
	combined := dir + rel
	segments := strings.Split(combined, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			// Extra ".." beyond root: clamp silently.
		default:
			out = append(out, seg)
		}
	}
	result := "/" + strings.Join(out, "/")
	if strings.HasSuffix(combined, "/") && result != "/" {
		result += "/"
	}
	return result
}

// UqId returns a stable hash of the absolute form of u, used as the primary
// key throughout Status and the frontier.
func (u ParsedUrl) UqId() string {
	return uqIdOf(u.FullUrl())
}
