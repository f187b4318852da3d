package httpcache

import (
	"bytes"
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	kgzip "github.com/klauspost/compress/gzip"

	"github.com/siteone-mirror/crawler/internal/status"
	"github.com/siteone-mirror/crawler/internal/wireformat"
)

// DiskCache is a content-addressed, optionally-compressed on-disk cache of
// HttpResponse bodies, keyed as:
//
//	<root>/<host>-<port>/<first-2-hex-of-md5>/<md5>[.ext].cache[.gz]
type DiskCache struct {
	root       string
	compressed bool
}

// NewDiskCache constructs a DiskCache rooted at dir. An empty dir disables
// the cache (every lookup misses, every write is a no-op), matching
// --http-cache-dir off.
func NewDiskCache(dir string, compressed bool) *DiskCache {
	return &DiskCache{root: dir, compressed: compressed}
}

// Enabled reports whether this cache has a configured root directory.
func (c *DiskCache) Enabled() bool {
	return c != nil && c.root != ""
}

// CacheKeyParams are the fields folded into the cache key hash.
type CacheKeyParams struct {
	Host, Port, Scheme, Url, Method, UserAgent, Accept, AcceptEncoding, Origin string
}

func cacheKeyHash(p CacheKeyParams) string {
	h := md5.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		p.Host, p.Port, p.Scheme, p.Url, p.Method, p.UserAgent, p.Accept, p.AcceptEncoding, p.Origin)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *DiskCache) pathFor(p CacheKeyParams, ext string) string {
	hash := cacheKeyHash(p)
	shard := hash[:2]
	name := hash
	if ext != "" {
		name += "." + ext
	}
	name += ".cache"
	if c.compressed {
		name += ".gz"
	}
	hostPort := fmt.Sprintf("%s-%s", p.Host, p.Port)
	return filepath.Join(c.root, hostPort, shard, name)
}

// Get looks up a cached response. A cache entry whose status code is in the
// retry set, or one that fails to deserialize (corruption), is treated as
// absent rather than returned or raised.
func (c *DiskCache) Get(p CacheKeyParams, ext string) (wireformat.CacheRecord, bool) {
	if !c.Enabled() {
		return wireformat.CacheRecord{}, false
	}
	path := c.pathFor(p, ext)
	raw, err := os.ReadFile(path)
	if err != nil {
		return wireformat.CacheRecord{}, false
	}
	if c.compressed {
		decoded, err := decompress(raw)
		if err != nil {
			return wireformat.CacheRecord{}, false
		}
		raw = decoded
	}
	rec, err := wireformat.UnmarshalCacheRecord(raw)
	if err != nil {
		return wireformat.CacheRecord{}, false
	}
	if status.IsInRetrySet(int(rec.StatusCode)) {
		return wireformat.CacheRecord{}, false
	}
	return rec, true
}

// Put writes rec to the cache, atomically: write-to-temp then rename, so a
// concurrent reader never observes a torn file. Responses in the retry set
// are never written.
func (c *DiskCache) Put(p CacheKeyParams, ext string, rec wireformat.CacheRecord) error {
	if !c.Enabled() {
		return nil
	}
	if status.IsInRetrySet(int(rec.StatusCode)) {
		return nil
	}
	path := c.pathFor(p, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return fmt.Errorf("httpcache: mkdir: %w", err)
	}

	payload := rec.Marshal()
	if c.compressed {
		payload = compress(payload)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o666); err != nil {
		return fmt.Errorf("httpcache: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("httpcache: rename: %w", err)
	}
	return nil
}

func compress(data []byte) []byte {
	var buf bytes.Buffer
	w := kgzip.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// bypassCache reports whether a request must skip the cache outright:
// forced-IP requests (virtual-host routing makes the cache key ambiguous)
// or a URL containing a literal, pre-encode space.
func bypassCache(forcedIP string, rawUrl string) bool {
	return forcedIP != "" || strings.Contains(rawUrl, " ")
}
