package status

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreDedupesByUqId(t *testing.T) {
	s := NewMemoryStore()
	first := s.AddVisitedUrl(VisitedUrl{UqId: "a", Url: "https://siteone.io/"})
	second := s.AddVisitedUrl(VisitedUrl{UqId: "a", Url: "https://siteone.io/", StatusCode: 200})

	assert.True(t, first)
	assert.False(t, second)
	assert.Len(t, s.GetVisitedUrls(), 1)
}

func TestMemoryStoreBodyRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SetBody("a", []byte("hello")))
	body, ok := s.GetBody("a")
	require.True(t, ok)
	assert.Equal(t, "hello", string(body))
}

func TestMemoryStoreSummary(t *testing.T) {
	s := NewMemoryStore()
	s.AddVisitedUrl(VisitedUrl{UqId: "a", ContentType: ContentHTML, Size: 10})
	s.AddVisitedUrl(VisitedUrl{UqId: "b", ContentType: ContentImage, Size: 20})

	sum := s.Summary()
	assert.Equal(t, 2, sum.TotalVisited)
	assert.Equal(t, int64(30), sum.TotalBytes)
	assert.Equal(t, 1, sum.ByContentType[ContentHTML])
}

func TestBoltStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "status.db")
	s, err := OpenBoltStore(dbPath, true)
	require.NoError(t, err)
	defer s.Close()

	inserted := s.AddVisitedUrl(VisitedUrl{
		UqId: "a", Url: "https://siteone.io/", StatusCode: 200,
		ContentType: ContentHTML, Size: 5,
	})
	assert.True(t, inserted)

	dup := s.AddVisitedUrl(VisitedUrl{UqId: "a", Url: "https://siteone.io/", StatusCode: 500})
	assert.False(t, dup)

	got, ok := s.GetVisitedUrl("a")
	require.True(t, ok)
	assert.Equal(t, 200, got.StatusCode)

	require.NoError(t, s.SetBody("a", []byte("<html>hi</html>")))
	body, ok := s.GetBody("a")
	require.True(t, ok)
	assert.Equal(t, "<html>hi</html>", string(body))
}

func TestBoltStoreSetMirrorPathPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "status.db")
	s, err := OpenBoltStore(dbPath, false)
	require.NoError(t, err)
	defer s.Close()

	s.AddVisitedUrl(VisitedUrl{UqId: "a", Url: "https://siteone.io/", StatusCode: 200})
	require.True(t, s.SetMirrorPath("a", "/index.html"))

	got, ok := s.GetVisitedUrl("a")
	require.True(t, ok)
	assert.Equal(t, "/index.html", got.MirrorPath)

	all := s.GetVisitedUrls()
	require.Len(t, all, 1)
	assert.Equal(t, "/index.html", all[0].MirrorPath)
}

func TestBoltStoreNegativeStatusSentinel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "status.db")
	s, err := OpenBoltStore(dbPath, false)
	require.NoError(t, err)
	defer s.Close()

	s.AddVisitedUrl(VisitedUrl{
		UqId: "a", Url: "https://does-not-exist-xyzzy.example/", StatusCode: StatusConnectionFail,
	})
	got, ok := s.GetVisitedUrl("a")
	require.True(t, ok)
	assert.Equal(t, -1, got.StatusCode)
}
