package contentscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteone-mirror/crawler/internal/status"
	"github.com/siteone-mirror/crawler/internal/urlmodel"
)

func TestClassifyByHeader(t *testing.T) {
	u, _ := urlmodel.Parse("https://siteone.io/page")
	ct := Classify("text/html; charset=utf-8", u, nil)
	assert.Equal(t, status.ContentHTML, ct)
}

func TestClassifyByExtensionFallback(t *testing.T) {
	u, _ := urlmodel.Parse("https://siteone.io/style.css")
	ct := Classify("", u, nil)
	assert.Equal(t, status.ContentStylesheet, ct)
}

func TestClassifySniffsHTMLWithoutHeaderOrExtension(t *testing.T) {
	u, _ := urlmodel.Parse("https://siteone.io/app")
	body := []byte(`<!DOCTYPE html><html><head></head><body></body></html>`)
	ct := Classify("", u, body)
	assert.Equal(t, status.ContentHTML, ct)
}

func TestExtractHTMLFindsAllSourceKinds(t *testing.T) {
	body := []byte(`
		<html><body>
			<a href="/page?p=1">link</a>
			<a href="#frag">skip</a>
			<img src="/img/a.png" srcset="/img/a-1x.png 1x, /img/a-2x.png 2x">
			<script src="/app.js"></script>
			<script>var x = 1; y.src = "/inline.png";</script>
			<link href="/style.css">
			<meta http-equiv="refresh" content="0;url=/next">
		</body></html>
	`)
	found := ExtractHTML(body)

	byAttr := map[SourceAttr][]string{}
	for _, f := range found {
		byAttr[f.SourceAttr] = append(byAttr[f.SourceAttr], f.RawHref)
	}

	assert.Contains(t, byAttr[AttrAHref], "/page?p=1")
	assert.NotContains(t, byAttr[AttrAHref], "#frag")
	assert.Contains(t, byAttr[AttrImgSrc], "/img/a.png")
	assert.Contains(t, byAttr[AttrImgSrc], "/img/a-1x.png")
	assert.Contains(t, byAttr[AttrScriptSrc], "/app.js")
	assert.Contains(t, byAttr[AttrInlineScriptSrc], "/inline.png")
	assert.Contains(t, byAttr[AttrLinkHref], "/style.css")
	assert.Contains(t, byAttr[AttrMetaRefresh], "/next")
}

func TestExtractHTMLSrcsetWithoutDescriptorLeftAlone(t *testing.T) {
	body := []byte(`<img src="/a.png" srcset="/b.png">`)
	found := ExtractHTML(body)
	for _, f := range found {
		assert.NotEqual(t, "/b.png", f.RawHref)
	}
}

func TestExtractCSS(t *testing.T) {
	css := []byte(`
		.a { background: url(  'images/bg.png'  ); }
		.b { background: url(data:image/png;base64,AAAA); }
		.c { background: url(#gradient); }
		@font-face { src: url("fonts/f.woff2") format("woff2"); }
	`)
	found := ExtractCSS(css)
	var hrefs []string
	for _, f := range found {
		hrefs = append(hrefs, f.RawHref)
		assert.Equal(t, AttrCssUrl, f.SourceAttr)
	}
	assert.Contains(t, hrefs, "images/bg.png")
	assert.Contains(t, hrefs, "fonts/f.woff2")
	assert.Len(t, hrefs, 2)
}

func TestPatchJSIsIdempotent(t *testing.T) {
	src := []byte(`function f(t,s){t.src=s.src}`)
	once := PatchJS(src)
	twice := PatchJS(once)
	require.Equal(t, string(once), string(twice))
	assert.Contains(t, string(once), "_SiteOneUrlDepth")
}

func TestPatchJSNoMatchIsNoop(t *testing.T) {
	src := []byte(`console.log("nothing to patch here")`)
	got := PatchJS(src)
	assert.Equal(t, string(src), string(got))
}
