package contentscan

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SourceAttr tags where a FoundUrl came from.
type SourceAttr string

const (
	AttrAHref           SourceAttr = "a_href"
	AttrImgSrc          SourceAttr = "img_src"
	AttrLinkHref        SourceAttr = "link_href"
	AttrScriptSrc       SourceAttr = "script_src"
	AttrInlineScriptSrc SourceAttr = "inline_script_src"
	AttrMetaRefresh     SourceAttr = "meta_refresh"
	AttrCssUrl          SourceAttr = "css_url"
)

// FoundUrl is a raw, unresolved reference discovered in a document, kept
// verbatim so scope evaluation can later rewrite the exact original text.
type FoundUrl struct {
	RawHref    string
	SourceAttr SourceAttr
}

// inlineSrcAssignment matches `something.src = "..."` or `.href = "..."`
// JS assignments inside an inline <script> body, quoted values only.
var inlineSrcAssignment = func() func(js string) []string {
	// A tiny hand-rolled scanner rather than a regexp.MustCompile global,
	// preferring plain string scanning over heavier parsing machinery.
	return func(js string) []string {
		var out []string
		for _, needle := range []string{".src", ".href"} {
			idx := 0
			for {
				pos := strings.Index(js[idx:], needle)
				if pos < 0 {
					break
				}
				pos += idx
				rest := strings.TrimSpace(js[pos+len(needle):])
				if !strings.HasPrefix(rest, "=") {
					idx = pos + len(needle)
					continue
				}
				rest = strings.TrimSpace(rest[1:])
				if len(rest) == 0 || (rest[0] != '"' && rest[0] != '\'') {
					idx = pos + len(needle)
					continue
				}
				quote := rest[0]
				end := strings.IndexByte(rest[1:], quote)
				if end < 0 {
					idx = pos + len(needle)
					continue
				}
				out = append(out, rest[1:1+end])
				idx = pos + len(needle)
			}
		}
		return out
	}
}()

// ExtractHTML parses an HTML document and returns every outbound reference
// it can find across anchors, images, scripts, stylesheets, and inline
// script assignments.
func ExtractHTML(body []byte) []FoundUrl {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		// Malformed HTML: best-effort, never raise.
		return nil
	}
	var found []FoundUrl
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		found = append(found, extractNode(n)...)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func extractNode(n *html.Node) []FoundUrl {
	if n.Type != html.ElementNode {
		return nil
	}

	var out []FoundUrl
	switch n.DataAtom {
	case atom.A:
		if href := attrVal(n, "href"); href != "" && !isFragmentOnly(href) {
			out = append(out, FoundUrl{RawHref: href, SourceAttr: AttrAHref})
		}
	case atom.Img, atom.Source:
		if src := attrVal(n, "src"); src != "" {
			out = append(out, FoundUrl{RawHref: src, SourceAttr: AttrImgSrc})
		}
		out = append(out, extractSrcset(n, AttrImgSrc)...)
	case atom.Input:
		if src := attrVal(n, "src"); src != "" && hasFileExtension(src) {
			out = append(out, FoundUrl{RawHref: src, SourceAttr: AttrImgSrc})
		}
	case atom.Script:
		if src := attrVal(n, "src"); src != "" {
			out = append(out, FoundUrl{RawHref: src, SourceAttr: AttrScriptSrc})
		} else if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			for _, href := range inlineSrcAssignment(n.FirstChild.Data) {
				out = append(out, FoundUrl{RawHref: href, SourceAttr: AttrInlineScriptSrc})
			}
		}
	case atom.Link:
		if href := attrVal(n, "href"); href != "" {
			out = append(out, FoundUrl{RawHref: href, SourceAttr: AttrLinkHref})
		}
	case atom.Meta:
		if strings.EqualFold(attrVal(n, "http-equiv"), "refresh") {
			if u, ok := parseMetaRefresh(attrVal(n, "content")); ok {
				out = append(out, FoundUrl{RawHref: u, SourceAttr: AttrMetaRefresh})
			}
		}
	}
	return out
}

func extractSrcset(n *html.Node, tag SourceAttr) []FoundUrl {
	raw := attrVal(n, "srcset")
	if raw == "" {
		return nil
	}
	var out []FoundUrl
	for _, desc := range strings.Split(raw, ",") {
		desc = strings.TrimSpace(desc)
		if desc == "" {
			continue
		}
		// An entry with no whitespace carries no descriptor; leave it
		// unchanged rather than guessing at one.
		fields := strings.Fields(desc)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			continue
		}
		out = append(out, FoundUrl{RawHref: fields[0], SourceAttr: tag})
	}
	return out
}

func parseMetaRefresh(content string) (string, bool) {
	parts := strings.SplitN(content, ";", 2)
	if len(parts) != 2 {
		return "", false
	}
	rest := strings.TrimSpace(parts[1])
	idx := strings.Index(strings.ToLower(rest), "url=")
	if idx < 0 {
		return "", false
	}
	u := strings.TrimSpace(rest[idx+4:])
	u = strings.Trim(u, `'"`)
	if u == "" {
		return "", false
	}
	return u, true
}

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func isFragmentOnly(href string) bool {
	return strings.HasPrefix(href, "#")
}

func hasFileExtension(s string) bool {
	base := s
	if idx := strings.LastIndexAny(base, "?#"); idx >= 0 {
		base = base[:idx]
	}
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.Contains(base, ".")
}
