package contentscan

import "strings"

// jsPatch is one fixed, idempotent substitution applied to Next.js-style
// build output so relative asset paths resolve against the runtime
// "_SiteOneUrlDepth" variable the offline URL transform injects. Patterns
// are frozen against a specific build artifact shape; an unmatched pattern
// is a no-op rather than an error.
type jsPatch struct {
	name string
	from string
	to   string
}

var jsPatches = []jsPatch{
	{
		name: "next-script-src-assignment",
		from: "t.src=s.src",
		to:   "t.src=(window._SiteOneUrlDepth!==undefined?'../'.repeat(window._SiteOneUrlDepth):'')+s.src",
	},
	{
		name: "next-link-href-assignment",
		from: "r.href=t,",
		to:   "r.href=(window._SiteOneUrlDepth!==undefined?'../'.repeat(window._SiteOneUrlDepth):'')+t,",
	},
	{
		name: "next-preload-link-rel",
		from: `link[rel="preload"]`,
		to:   `link[rel="preload"][data-siteone-patched="1"]`,
	},
}

// PatchJS applies every jsPatch exactly once each; substitutions are
// written so a second pass over already-patched code is a no-op.
func PatchJS(body []byte) []byte {
	js := string(body)
	for _, p := range jsPatches {
		if strings.Contains(js, p.to) {
			continue // already patched
		}
		js = strings.Replace(js, p.from, p.to, -1)
	}
	return []byte(js)
}
