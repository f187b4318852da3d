package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siteone-mirror/crawler/internal/config"
)

func TestApplyReplacementsRewritesEveryOccurrence(t *testing.T) {
	body := []byte(`<a href="/old">old</a><a href="/old">old again</a>`)
	rules := []config.ReplaceRule{{Pattern: "/old", Replacement: "/new"}}
	got := ApplyReplacements(body, rules)
	assert.Equal(t, `<a href="/new">old</a><a href="/new">old again</a>`, string(got))
}

func TestApplyReplacementsNoRulesIsNoop(t *testing.T) {
	body := []byte("unchanged")
	assert.Equal(t, body, ApplyReplacements(body, nil))
}

func TestApplyReplacementsSkipsEmptyPattern(t *testing.T) {
	body := []byte("hello world")
	rules := []config.ReplaceRule{{Pattern: "", Replacement: "x"}}
	assert.Equal(t, body, ApplyReplacements(body, rules))
}
