// Package config loads and validates the crawler's run configuration: its
// CLI surface, defaults, and a strict YAML decode discipline that rejects
// unknown keys.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ReplaceRule is one --replace-content "pattern -> replacement" pair,
// applied to HTML/CSS/JS bodies after reference rewriting.
type ReplaceRule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// ParseReplaceRule parses one "pattern -> replacement" --replace-content
// flag value.
func ParseReplaceRule(s string) (ReplaceRule, error) {
	pattern, replacement, ok := strings.Cut(s, "->")
	if !ok {
		return ReplaceRule{}, fmt.Errorf("config: replace-content %q: missing \"->\"", s)
	}
	return ReplaceRule{
		Pattern:     strings.TrimSpace(pattern),
		Replacement: strings.TrimSpace(replacement),
	}, nil
}

// Config is the full set of knobs a crawl run accepts.
type Config struct {
	URL                            string        `yaml:"url"`
	Workers                        int           `yaml:"workers"`
	TimeoutSeconds                 int           `yaml:"timeout"`
	MemoryLimit                    string        `yaml:"memory_limit"`
	Proxy                          string        `yaml:"proxy"`
	HTTPAuth                       string        `yaml:"http_auth"`
	UserAgent                      string        `yaml:"user_agent"`
	Device                         string        `yaml:"device"`
	AcceptEncoding                 string        `yaml:"accept_encoding"`
	IncludeRegex                   []string      `yaml:"include_regex"`
	IgnoreRegex                    []string      `yaml:"ignore_regex"`
	RegexFilteringOnlyForPages     bool          `yaml:"regex_filtering_only_for_pages"`
	IgnoreRobotsTxt                bool          `yaml:"ignore_robots_txt"`
	HTTPCacheDir                   string        `yaml:"http_cache_dir"`
	HTTPCacheCompression           bool          `yaml:"http_cache_compression"`
	MaxQueueLength                 int           `yaml:"max_queue_length"`
	MaxVisitedURLs                 int           `yaml:"max_visited_urls"`
	MaxURLLength                   int           `yaml:"max_url_length"`
	OfflineExportDir               string        `yaml:"offline_export_dir"`
	AllowedDomainForExternalFiles  []string      `yaml:"allowed_domain_for_external_files"`
	AllowedDomainForCrawling       []string      `yaml:"allowed_domain_for_crawling"`
	ReplaceContent                 []ReplaceRule `yaml:"replace_content"`
	DisableJavascript              bool          `yaml:"disable_javascript"`
	DisableStyles                  bool          `yaml:"disable_styles"`
	DisableFonts                   bool          `yaml:"disable_fonts"`
	DisableImages                  bool          `yaml:"disable_images"`
	DisableFiles                   bool          `yaml:"disable_files"`
	IgnoreStoreFileError           bool          `yaml:"ignore_store_file_error"`
}

// Default returns the out-of-the-box configuration, before flags or a
// config file are applied.
func Default() Config {
	return Config{
		Workers:         3,
		TimeoutSeconds:  3,
		MemoryLimit:     "512M",
		AcceptEncoding:  "gzip, deflate, br",
		HTTPCacheDir:    "tmp/http-client-cache",
		MaxQueueLength:  9000,
		MaxVisitedURLs:  10000,
		MaxURLLength:    2083,
	}
}

// Load decodes a YAML config file on top of Default(), rejecting unknown
// keys so a typo'd field fails loudly instead of being silently ignored.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)
	if err := d.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// MemoryLimitBytes parses MemoryLimit ("512M", "2G", ...) via go-humanize.
func (c Config) MemoryLimitBytes() (uint64, error) {
	if c.MemoryLimit == "" {
		return 0, nil
	}
	return humanize.ParseBytes(c.MemoryLimit)
}

// ValidationError marks a configuration problem the caller should report
// with exit code 101 (explicit flag validation) rather than 100 (general
// config error).
type ValidationError struct {
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Problem)
}

// Validate checks the invariants the crawl engine assumes hold before a
// crawl starts: URL present, positive counters, a parseable memory limit.
func (c Config) Validate() error {
	if c.URL == "" {
		return &ValidationError{Field: "url", Problem: "is required"}
	}
	if c.Workers <= 0 {
		return &ValidationError{Field: "workers", Problem: "must be positive"}
	}
	if c.TimeoutSeconds <= 0 {
		return &ValidationError{Field: "timeout", Problem: "must be positive"}
	}
	if c.MaxQueueLength <= 0 {
		return &ValidationError{Field: "max_queue_length", Problem: "must be positive"}
	}
	if c.MaxVisitedURLs <= 0 {
		return &ValidationError{Field: "max_visited_urls", Problem: "must be positive"}
	}
	if c.MaxURLLength <= 0 {
		return &ValidationError{Field: "max_url_length", Problem: "must be positive"}
	}
	if _, err := c.MemoryLimitBytes(); err != nil {
		return &ValidationError{Field: "memory_limit", Problem: err.Error()}
	}
	return nil
}
