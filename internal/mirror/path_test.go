package mirror

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteone-mirror/crawler/internal/urlmodel"
)

func TestMirrorPathRootIsIndex(t *testing.T) {
	u, err := urlmodel.Parse("https://siteone.io/")
	require.NoError(t, err)
	assert.Equal(t, "/index.html", MirrorPath(u, false))
}

func TestMirrorPathExtensionlessPageGetsHtmlSuffix(t *testing.T) {
	u, err := urlmodel.Parse("https://siteone.io/page")
	require.NoError(t, err)
	assert.Equal(t, "/page.html", MirrorPath(u, false))
}

func TestMirrorPathQueryStringDifferentiation(t *testing.T) {
	u, err := urlmodel.Parse("https://siteone.io/page?p=1")
	require.NoError(t, err)
	got := MirrorPath(u, false)
	assert.True(t, strings.HasPrefix(got, "/page."))
	assert.True(t, strings.HasSuffix(got, ".html"))

	u2, err := urlmodel.Parse("https://siteone.io/page?p=2")
	require.NoError(t, err)
	got2 := MirrorPath(u2, false)
	assert.NotEqual(t, got, got2, "distinct query values must produce distinct mirror files")
}

func TestMirrorPathIsStable(t *testing.T) {
	u, err := urlmodel.Parse("https://siteone.io/a/b?x=1")
	require.NoError(t, err)
	assert.Equal(t, MirrorPath(u, false), MirrorPath(u, false))
}

func TestMirrorPathDynamicImageExtensionFromQuery(t *testing.T) {
	u, err := urlmodel.Parse("https://nextjs.org/_next/image?url=%2F_next%2Fstatic%2Fmedia%2Fpreview-audible.6063405a.png&w=640&q=75")
	require.NoError(t, err)
	got := MirrorPath(u, false)
	assert.True(t, strings.HasPrefix(got, "/_next/image."))
	assert.True(t, strings.HasSuffix(got, ".png"))
}

func TestMirrorPathStaticFileUntouched(t *testing.T) {
	u, err := urlmodel.Parse("https://siteone.io/img/a.png")
	require.NoError(t, err)
	assert.Equal(t, "/img/a.png", MirrorPath(u, false))
}

func TestMirrorPathDirectoryTrailingSlash(t *testing.T) {
	u, err := urlmodel.Parse("https://nextjs.org/subpage/")
	require.NoError(t, err)
	assert.Equal(t, "/subpage/index.html", MirrorPath(u, false))
}

func TestMirrorPathExternalHostRooted(t *testing.T) {
	u, err := urlmodel.Parse("https://nextjs.org/")
	require.NoError(t, err)
	assert.Equal(t, "/_nextjs.org/index.html", MirrorPath(u, true))
}

func TestMirrorPathSanitizesUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "a_b_c", Sanitize(`a"b<c`))
}

func TestMirrorPathLongBasenameCollapsedToHash(t *testing.T) {
	longName := strings.Repeat("a", 60)
	path := "/" + strings.Repeat("dir/", 40) + longName + ".html"
	got := sanitizeMirrorPath(path)
	assert.True(t, len(got) < len(path))
	assert.True(t, strings.HasSuffix(got, ".html"))
}
