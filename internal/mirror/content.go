package mirror

import (
	"fmt"
	"strings"

	"github.com/siteone-mirror/crawler/internal/config"
	"github.com/siteone-mirror/crawler/internal/contentscan"
	"github.com/siteone-mirror/crawler/internal/urlmodel"
)

// RewriteHTML rewrites every outbound reference found in an HTML document so
// that, served from the mirror via file://, each one resolves to its
// neighbor's mirror file. Before rewriting, absolute references to the
// initial host's root are canonicalized to absolute-path form; after
// rewriting, the two client-side scripts the offline export needs are
// injected before </head> and before </body>.
func RewriteHTML(body []byte, initialHost string, base urlmodel.ParsedUrl, isAllowedExternal func(string) bool) []byte {
	doc := canonicalizeInitialHostAbsolutes(string(body), initialHost)

	for _, f := range contentscan.ExtractHTML([]byte(doc)) {
		rewritten := RewriteReference(initialHost, base, f.RawHref, isAllowedExternal)
		if rewritten == f.RawHref {
			continue
		}
		doc = replaceReference(doc, f.RawHref, rewritten)
	}

	doc = injectScripts(doc, base.OfflineBaseUrlDepth())
	return []byte(doc)
}

// RewriteCSS rewrites every url(...) and @font-face reference in a stylesheet.
func RewriteCSS(body []byte, initialHost string, base urlmodel.ParsedUrl, isAllowedExternal func(string) bool) []byte {
	doc := string(body)
	for _, f := range contentscan.ExtractCSS(body) {
		rewritten := RewriteReference(initialHost, base, f.RawHref, isAllowedExternal)
		if rewritten == f.RawHref {
			continue
		}
		doc = replaceReference(doc, f.RawHref, rewritten)
	}
	return []byte(doc)
}

// RewriteJS applies the fixed set of framework patches; the JS patcher never
// resolves or rewrites individual references.
func RewriteJS(body []byte) []byte {
	return contentscan.PatchJS(body)
}

// ApplyReplacements runs every --replace-content rule against body in
// order, after reference rewriting has already happened. Each rule is a
// plain, non-regex substring replacement of every occurrence.
func ApplyReplacements(body []byte, rules []config.ReplaceRule) []byte {
	if len(rules) == 0 {
		return body
	}
	doc := string(body)
	for _, r := range rules {
		if r.Pattern == "" {
			continue
		}
		doc = strings.ReplaceAll(doc, r.Pattern, r.Replacement)
	}
	return []byte(doc)
}

// canonicalizeInitialHostAbsolutes turns "http(s)://initialHost/..." into
// "/...", so the subsequent rewrite pass only has to reason about one form.
func canonicalizeInitialHostAbsolutes(doc, initialHost string) string {
	for _, scheme := range []string{"http://", "https://"} {
		prefix := scheme + initialHost
		doc = strings.ReplaceAll(doc, prefix+"/", "/")
		doc = strings.ReplaceAll(doc, prefix+`"`, `"`)
		doc = strings.ReplaceAll(doc, prefix+"'", "'")
	}
	return doc
}

// replaceReference substitutes the first occurrence of raw with rewritten,
// preferring a quoted match (the common href="..."/src='...' case) and
// falling back to a bare substring match for srcset entries and meta
// refresh content strings, which are not individually quoted.
func replaceReference(doc, raw, rewritten string) string {
	for _, q := range []string{`"`, `'`} {
		old := q + raw + q
		if strings.Contains(doc, old) {
			return strings.Replace(doc, old, q+rewritten+q, 1)
		}
	}
	if strings.Contains(doc, raw) {
		return strings.Replace(doc, raw, rewritten, 1)
	}
	return doc
}

func injectScripts(doc string, depth int) string {
	headScript := fmt.Sprintf("<script>var _SiteOneUrlDepth = %d;</script>", depth)
	bodyScript := `<script>window.addEventListener('load',function(){document.querySelectorAll('a').forEach(function(a){a.parentNode.replaceChild(a.cloneNode(true),a);});});</script>`

	doc = insertBeforeTag(doc, "</head>", headScript)
	doc = insertBeforeTag(doc, "</body>", bodyScript)
	return doc
}

// insertBeforeTag inserts snippet immediately before the first
// case-insensitive occurrence of tag, or leaves doc unchanged if tag is
// absent (malformed or fragment documents are left as-is).
func insertBeforeTag(doc, tag, snippet string) string {
	idx := strings.Index(strings.ToLower(doc), tag)
	if idx < 0 {
		return doc
	}
	return doc[:idx] + snippet + doc[idx:]
}
