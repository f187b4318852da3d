package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecFlags(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 3, cfg.TimeoutSeconds)
	assert.Equal(t, "512M", cfg.MemoryLimit)
	assert.Equal(t, 9000, cfg.MaxQueueLength)
	assert.Equal(t, 10000, cfg.MaxVisitedURLs)
	assert.Equal(t, 2083, cfg.MaxURLLength)
}

func TestMemoryLimitBytesParsesHumanSizes(t *testing.T) {
	cfg := Default()
	cfg.MemoryLimit = "2G"
	n, err := cfg.MemoryLimitBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), n)
}

func TestLoadOverridesDefaultsAndRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: https://siteone.io/\nworkers: 8\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://siteone.io/", cfg.URL)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.TimeoutSeconds, "unset fields keep Default()'s value")

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("url: x\nbogus_field: true\n"), 0o644))
	_, err = Load(badPath)
	assert.Error(t, err)
}

func TestValidateRequiresURL(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "url", ve.Field)
}

func TestValidatePasses(t *testing.T) {
	cfg := Default()
	cfg.URL = "https://siteone.io/"
	assert.NoError(t, cfg.Validate())
}

func TestParseReplaceRule(t *testing.T) {
	rule, err := ParseReplaceRule(" foo -> bar ")
	require.NoError(t, err)
	assert.Equal(t, ReplaceRule{Pattern: "foo", Replacement: "bar"}, rule)

	_, err = ParseReplaceRule("no-arrow-here")
	assert.Error(t, err)
}
