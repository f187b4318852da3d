package mirror

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteone-mirror/crawler/internal/urlmodel"
)

func allowAll(string) bool  { return true }
func allowNone(string) bool { return false }

func TestRewriteReferenceQueryStringScenario(t *testing.T) {
	base, err := urlmodel.Parse("https://siteone.io/")
	require.NoError(t, err)
	got := RewriteReference("siteone.io", base, "/page?p=1", allowAll)
	assert.Equal(t, "page.html", stripFingerprint(t, got))
}

func TestRewriteReferenceProtocolRelativeBacklink(t *testing.T) {
	base, err := urlmodel.Parse("https://nextjs.org/")
	require.NoError(t, err)
	got := RewriteReference("siteone.io", base, "//siteone.io/page", allowAll)
	assert.Equal(t, "../page.html", got)
}

func TestRewriteReferenceDynamicImageExtension(t *testing.T) {
	base, err := urlmodel.Parse("https://nextjs.org/subpage/")
	require.NoError(t, err)
	href := "https://nextjs.org/_next/image?url=%2F_next%2Fstatic%2Fmedia%2Fpreview-audible.6063405a.png&w=640&q=75"
	got := RewriteReference("nextjs.org", base, href, allowAll)
	assert.Regexp(t, `^\.\./_next/image\.[0-9a-f]{10}\.png$`, got)
}

func TestRewriteReferenceDisallowedExternalReturnsAbsolute(t *testing.T) {
	base, err := urlmodel.Parse("https://siteone.io/")
	require.NoError(t, err)
	got := RewriteReference("siteone.io", base, "https://tracker.example/pixel.gif", allowNone)
	assert.Equal(t, "https://tracker.example/pixel.gif", got)
}

func TestRewriteReferenceNotRequestableLeftUnchanged(t *testing.T) {
	base, err := urlmodel.Parse("https://siteone.io/")
	require.NoError(t, err)
	for _, href := range []string{"mailto:a@b.com", "javascript:void(0)", "#frag", "data:image/png;base64,AA=="} {
		assert.Equal(t, href, RewriteReference("siteone.io", base, href, allowAll))
	}
}

func TestRewriteReferenceInitialToExternalAssetNeedsNoUpHopsAtRoot(t *testing.T) {
	base, err := urlmodel.Parse("https://siteone.io/")
	require.NoError(t, err)
	got := RewriteReference("siteone.io", base, "https://cdn.example/logo.png", allowAll)
	assert.Equal(t, "_cdn.example/logo.png", got)
}

func TestRewriteReferenceLateralBetweenExternalHosts(t *testing.T) {
	base, err := urlmodel.Parse("https://cdn-a.example/assets/main.css")
	require.NoError(t, err)
	got := RewriteReference("siteone.io", base, "https://cdn-b.example/shared.css", allowAll)
	assert.Equal(t, "../../_cdn-b.example/shared.css", got)
}

func TestRewriteReferenceWithinSameExternalTreeStaysLocal(t *testing.T) {
	base, err := urlmodel.Parse("https://cdn-a.example/assets/main.css")
	require.NoError(t, err)
	got := RewriteReference("siteone.io", base, "https://cdn-a.example/fonts/f.woff2", allowAll)
	assert.Equal(t, "../fonts/f.woff2", got)
}

func TestClassifyRelation(t *testing.T) {
	assert.Equal(t, InitialSameBaseSame, ClassifyRelation("a", "a", "a"))
	assert.Equal(t, InitialDifferentBaseSame, ClassifyRelation("a", "b", "b"))
	assert.Equal(t, InitialSameBaseDifferent, ClassifyRelation("a", "b", "a"))
	assert.Equal(t, InitialDifferentBaseDifferent, ClassifyRelation("a", "b", "c"))
}

var fingerprintSuffix = regexp.MustCompile(`\.[0-9a-f]{10}\.html$`)

// stripFingerprint removes the ".<10 hex>" fingerprint segment inserted
// before the final extension, leaving the assertions independent of the
// actual hash value.
func stripFingerprint(t *testing.T, rewritten string) string {
	t.Helper()
	return fingerprintSuffix.ReplaceAllString(rewritten, ".html")
}
