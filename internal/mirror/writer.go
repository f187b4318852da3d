// Package mirror computes each crawled URL's on-disk mirror path, rewrites
// references inside fetched documents, and writes the resulting bytes to an
// output target.
package mirror

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/siteone-mirror/crawler/internal/status"
)

// Writer writes mirror files. Implementations may be called concurrently
// by multiple fetchers; LocalWriter relies on an exclusive-create open so
// two writers racing for the same mirror path never corrupt each other,
// with the loser's write discarded and recorded as a notice.
type Writer interface {
	Write(mirrorPath string, body []byte) error
	Close() error
}

// constructor builds a Writer from the portion of a NewWriter target that
// follows its scheme prefix.
type constructor func(path string) (Writer, error)

var registry = map[string]constructor{}

func register(scheme string, fn constructor) {
	registry[scheme] = fn
}

// NewWriter constructs a Writer for target. A bare path (no "scheme:"
// prefix) is treated as a local directory; "s3:<region>:<bucket>" selects
// the S3-backed writer.
func NewWriter(target string) (Writer, error) {
	scheme, path, ok := strings.Cut(target, ":")
	if !ok || len(scheme) <= 1 {
		// Guards against "C:\..." Windows-style absolute paths being
		// mistaken for a scheme prefix.
		return newLocalWriter(target)
	}
	fn, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("mirror: no writer registered for scheme %q", scheme)
	}
	return fn(path)
}

// LocalWriter writes mirror files directly to a directory on disk.
type LocalWriter struct {
	root              string
	store             status.Store
	ignoreWriteErrors bool
}

func init() {
	register("file", func(path string) (Writer, error) { return newLocalWriter(path) })
}

func newLocalWriter(root string) (Writer, error) {
	if err := os.MkdirAll(root, 0o777); err != nil {
		return nil, fmt.Errorf("mirror: create output dir: %w", err)
	}
	return &LocalWriter{root: root}, nil
}

// NewLocalWriter constructs a LocalWriter rooted at dir, recording notices
// and mirror paths into store. When ignoreWriteErrors is true, a failed
// write is recorded as a Notice and the crawl continues instead of failing.
func NewLocalWriter(dir string, store status.Store, ignoreWriteErrors bool) (*LocalWriter, error) {
	w, err := newLocalWriter(dir)
	if err != nil {
		return nil, err
	}
	w.store = store
	w.ignoreWriteErrors = ignoreWriteErrors
	return w, nil
}

// Write creates parent directories as needed and writes body to
// <root>/<mirrorPath>. An existing file at that path is left untouched:
// whichever fetcher or post-processing pass reaches a given mirror path
// first owns it.
func (w *LocalWriter) Write(mirrorPath string, body []byte) error {
	full := filepath.Join(w.root, filepath.FromSlash(strings.TrimPrefix(mirrorPath, "/")))

	if err := os.MkdirAll(filepath.Dir(full), 0o777); err != nil {
		return w.fail(mirrorPath, err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		if os.IsExist(err) {
			if w.store != nil {
				w.store.AddNotice(status.Notice{Message: "mirror path already written, skipped", Url: mirrorPath})
			}
			return nil
		}
		return w.fail(mirrorPath, err)
	}
	defer f.Close()

	if _, err := f.Write(body); err != nil {
		return w.fail(mirrorPath, err)
	}
	return nil
}

func (w *LocalWriter) fail(mirrorPath string, err error) error {
	if w.store != nil {
		w.store.AddNotice(status.Notice{Message: fmt.Sprintf("write failed: %v", err), Url: mirrorPath})
	}
	if w.ignoreWriteErrors {
		log.Printf("mirror: ignoring write error for %s: %v", mirrorPath, err)
		return nil
	}
	return fmt.Errorf("mirror: write %s: %w", mirrorPath, err)
}

func (w *LocalWriter) Close() error { return nil }
