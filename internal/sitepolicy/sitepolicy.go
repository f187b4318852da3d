// Package sitepolicy optionally labels a visited URL with a named resource
// category matched by path regex. It is not part of the crawl/allow
// decision (that lives in internal/crawlengine's scope predicate); it only
// annotates VisitedUrl for downstream reporting.
package sitepolicy

import (
	"bytes"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Resource names one category of page by a path regex, e.g. "product" ->
// `^/products/[^/]+$`.
type Resource struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Config is the set of named resource categories for one site.
type Config struct {
	Name      string     `yaml:"name"`
	Resources []Resource `yaml:"resources"`
}

// Load decodes a site policy document, rejecting unknown fields.
func Load(data []byte) (Config, error) {
	var cfg Config
	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)
	if err := d.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("sitepolicy: %w", err)
	}
	return cfg, nil
}

// Classifier matches a URL path against a Config's Resources in order and
// returns the first matching Resource's Name, compiling each pattern once.
type Classifier struct {
	names    []string
	patterns []*regexp.Regexp
}

// NewClassifier compiles cfg's resource patterns. A pattern that fails to
// compile is skipped rather than failing the whole crawl, since resource
// labeling is informational, not a scope decision.
func NewClassifier(cfg Config) *Classifier {
	c := &Classifier{}
	for _, r := range cfg.Resources {
		re, err := regexp.Compile(r.Path)
		if err != nil {
			continue
		}
		c.names = append(c.names, r.Name)
		c.patterns = append(c.patterns, re)
	}
	return c
}

// Classify returns the name of the first Resource whose pattern matches
// path, or "" if none match.
func (c *Classifier) Classify(path string) string {
	for i, re := range c.patterns {
		if re.MatchString(path) {
			return c.names[i]
		}
	}
	return ""
}
