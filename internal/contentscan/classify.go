// Package contentscan classifies fetched bodies and extracts outbound URLs
// from HTML and CSS. It never raises on malformed input: every extractor
// is best-effort and tolerant of real-world markup.
package contentscan

import (
	"strings"

	"github.com/siteone-mirror/crawler/internal/status"
	"github.com/siteone-mirror/crawler/internal/urlmodel"
)

// Classify determines a status.ContentType from the response content-type
// header (authoritative), falling back to the URL extension, and finally to
// a body sniff of a declared <meta http-equiv="Content-Type"> for HTML
// disambiguation.
func Classify(contentTypeHeader string, u urlmodel.ParsedUrl, body []byte) status.ContentType {
	ct, _, _ := strings.Cut(contentTypeHeader, ";")
	ct = strings.ToLower(strings.TrimSpace(ct))

	switch {
	case ct == "text/html" || ct == "application/xhtml+xml":
		return status.ContentHTML
	case ct == "text/css":
		return status.ContentStylesheet
	case ct == "application/javascript" || ct == "text/javascript" || ct == "application/x-javascript":
		return status.ContentScript
	case ct == "application/json":
		return status.ContentJSON
	case strings.HasPrefix(ct, "image/"):
		return status.ContentImage
	case strings.HasPrefix(ct, "font/") || strings.Contains(ct, "font"):
		return status.ContentFont
	}

	if u.IsImage() {
		return status.ContentImage
	}
	if u.IsFont() {
		return status.ContentFont
	}
	switch u.Extension {
	case "css":
		return status.ContentStylesheet
	case "js", "mjs":
		return status.ContentScript
	case "json":
		return status.ContentJSON
	case "", "htm", "html", "shtml", "php", "phtml", "ashx", "xhtml", "asp",
		"aspx", "jsp", "jspx", "do", "cfm", "cgi", "pl", "rb", "erb", "gsp":
		if sniffedHTML(body) {
			return status.ContentHTML
		}
		return status.ContentDocument
	}
	return status.ContentOtherFile
}

// sniffedHTML looks for a declared <meta http-equiv="Content-Type"> or
// enough HTML structure to treat an untyped, extensionless body as HTML.
func sniffedHTML(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	sample := body
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	lower := strings.ToLower(string(sample))
	if strings.Contains(lower, `http-equiv="content-type"`) || strings.Contains(lower, `http-equiv='content-type'`) {
		return true
	}
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype html")
}
