package urlmodel

import (
	"crypto/md5"
	"encoding/hex"
)

// uqIdOf hashes an absolute URL string into the stable key used across
// Status and the frontier.
func uqIdOf(absoluteUrl string) string {
	sum := md5.Sum([]byte(absoluteUrl))
	return hex.EncodeToString(sum[:])
}

// UqIdOf is the package-level form of UqId, for callers that only have the
// already-canonicalized string.
func UqIdOf(absoluteUrl string) string {
	return uqIdOf(absoluteUrl)
}
