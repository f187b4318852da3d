package mirror

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/siteone-mirror/crawler/internal/urlmodel"
)

const (
	maxMirrorPathLength = 200
	maxBasenameLength   = 40
)

var unsafeChars = `\:*?"<>|%'`

// Sanitize replaces filesystem-unsafe characters with "_".
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(unsafeChars, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MirrorPath computes the on-disk path for u, relative to the mirror root,
// applying its rules in order: query fingerprinting, directory-index
// synthesis, external-host rooting, and sanitization with long-path
// mitigation.
//
// isExternalAllowed indicates the URL's host differs from the initial host
// but is allowed for download; the path is then rooted under "_<u.Host>/".
func MirrorPath(u urlmodel.ParsedUrl, isExternalAllowed bool) string {
	path := u.Path
	if path == "" {
		path = "/"
	}

	static := u.IsStaticFile()
	if !static && u.Query != "" {
		ext := u.EstimateExtension()
		if ext == "" {
			ext = "html"
		}
		fingerprint := fingerprintOf(u.Query)
		base := stripExtension(path)
		if strings.HasSuffix(base, "/") || base == "" {
			base = strings.TrimSuffix(base, "/") + "/index"
		}
		path = base + "." + fingerprint + "." + ext
	} else if strings.HasSuffix(path, "/") {
		path = path + "index.html"
	} else if extensionOfPath(path) == "" {
		path = path + ".html"
	}

	if isExternalAllowed {
		path = "/_" + u.Host + path
	}

	return sanitizeMirrorPath(path)
}

func fingerprintOf(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])[:10]
}

func stripExtension(path string) string {
	idx := strings.LastIndex(path, ".")
	slash := strings.LastIndex(path, "/")
	if idx > slash {
		return path[:idx]
	}
	return path
}

func extensionOfPath(path string) string {
	seg := path
	if idx := strings.LastIndex(seg, "/"); idx >= 0 {
		seg = seg[idx+1:]
	}
	idx := strings.LastIndex(seg, ".")
	if idx < 0 || idx == len(seg)-1 {
		return ""
	}
	return seg[idx+1:]
}

// sanitizeMirrorPath applies character sanitization and, when the overall
// path is long and the basename itself is long, collapses the basename to
// the md5 of its original value, preserving the extension.
func sanitizeMirrorPath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = Sanitize(seg)
	}
	clean := strings.Join(segments, "/")

	if len(clean) <= maxMirrorPathLength {
		return clean
	}
	base := segments[len(segments)-1]
	if len(base) <= maxBasenameLength {
		return clean
	}
	ext := extensionOfPath(base)
	sum := md5.Sum([]byte(base))
	newBase := hex.EncodeToString(sum[:])
	if ext != "" {
		newBase += "." + ext
	}
	segments[len(segments)-1] = newBase
	return strings.Join(segments, "/")
}
