package urlmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultPortsAndPath(t *testing.T) {
	u, err := Parse("https://siteone.io")
	require.NoError(t, err)
	assert.Equal(t, "siteone.io", u.Host)
	assert.Equal(t, 443, u.Port)
	assert.Equal(t, "/", u.Path)
	assert.Equal(t, "https://siteone.io/", u.FullUrl())
}

func TestParseExplicitNonDefaultPort(t *testing.T) {
	u, err := Parse("http://siteone.io:8080/a")
	require.NoError(t, err)
	assert.Equal(t, 8080, u.Port)
	assert.Equal(t, "http://siteone.io:8080/a", u.FullUrl())
}

func TestParseProtocolRelative(t *testing.T) {
	u, err := Parse("//siteone.io/page")
	require.NoError(t, err)
	assert.Equal(t, "", u.Scheme)
	assert.Equal(t, "siteone.io", u.Host)
	assert.Equal(t, "/page", u.Path)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)

	_, err = Parse("http:///")
	require.Error(t, err)
}

func TestExtensionFromPath(t *testing.T) {
	u, err := Parse("https://siteone.io/assets/style.CSS")
	require.NoError(t, err)
	assert.Equal(t, "css", u.Extension)
}

func TestExtensionFromQueryFallback(t *testing.T) {
	u, err := Parse("https://nextjs.org/_next/image?url=%2F_next%2Fstatic%2Fmedia%2Fpreview-audible.6063405a.png&w=640&q=75")
	require.NoError(t, err)
	assert.Equal(t, "png", u.EstimateExtension())
}

func TestIsStaticFile(t *testing.T) {
	html, _ := Parse("https://siteone.io/page.html")
	css, _ := Parse("https://siteone.io/style.css")
	bare, _ := Parse("https://siteone.io/page")

	assert.False(t, html.IsStaticFile())
	assert.True(t, css.IsStaticFile())
	assert.False(t, bare.IsStaticFile())
}

func TestOfflineBaseUrlDepth(t *testing.T) {
	root, _ := Parse("https://siteone.io/")
	assert.Equal(t, 0, root.OfflineBaseUrlDepth())

	bare, _ := Parse("https://siteone.io/foo")
	assert.Equal(t, 0, bare.OfflineBaseUrlDepth())

	sub, _ := Parse("https://siteone.io/subpage/")
	assert.Equal(t, 1, sub.OfflineBaseUrlDepth())

	deep, _ := Parse("https://siteone.io/a/b/c")
	assert.Equal(t, 2, deep.OfflineBaseUrlDepth())
}

func TestResolveRelativeDotDot(t *testing.T) {
	base, _ := Parse("https://siteone.io/blog/posts/today")
	got, err := ResolveRelative(base, "../../about")
	require.NoError(t, err)
	assert.Equal(t, "https://siteone.io/about", got.FullUrl())
}

func TestResolveRelativeExtraDotDotClamped(t *testing.T) {
	base, _ := Parse("https://siteone.io/")
	got, err := ResolveRelative(base, "../../../etc")
	require.NoError(t, err)
	assert.Equal(t, "https://siteone.io/etc", got.FullUrl())
}

func TestResolveRelativeRootPath(t *testing.T) {
	base, _ := Parse("https://siteone.io/blog/posts/today")
	got, err := ResolveRelative(base, "/page?p=1")
	require.NoError(t, err)
	assert.Equal(t, "https://siteone.io/page?p=1", got.FullUrl())
}

func TestResolveRelativeProtocolRelative(t *testing.T) {
	base, _ := Parse("https://nextjs.org/")
	got, err := ResolveRelative(base, "//siteone.io/page")
	require.NoError(t, err)
	assert.Equal(t, "https://siteone.io/page", got.FullUrl())
}

func TestResolveRelativeIdempotent(t *testing.T) {
	base, _ := Parse("https://siteone.io/blog/")
	href := "../about"
	abs, err := ResolveRelative(base, href)
	require.NoError(t, err)

	again, err := ResolveRelative(base, abs.FullUrl())
	require.NoError(t, err)
	assert.Equal(t, abs.FullUrl(), again.FullUrl())
}

func TestUqIdStable(t *testing.T) {
	u, _ := Parse("https://siteone.io/page")
	assert.Equal(t, u.UqId(), u.UqId())
	assert.Len(t, u.UqId(), 32)
}
