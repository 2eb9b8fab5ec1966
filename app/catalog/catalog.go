package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed default.yml
var defaultCatalog []byte

type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Markers  []string `yaml:"markers"`
}

type Topic struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// Catalog is the static taxonomy the classifier and the preference model read.
// It is immutable once loaded.
type Catalog struct {
	Version         string     `yaml:"version"`
	Categories      []Category `yaml:"categories"`
	ExcludedTopics  []Topic    `yaml:"excluded_topics"`
	CampaignMarkers []string   `yaml:"campaign_markers"`
	Patterns        []string   `yaml:"patterns"`
	AllowList       []string   `yaml:"allow_list"`
	StopWords       []string   `yaml:"stop_words"`

	compiled  []*regexp.Regexp
	phrases   []string
	allowed   map[string]bool
	stopWords map[string]bool
}

// Normalize lower-cases s with Russian casing rules.
func Normalize(s string) string {
	return cases.Lower(language.Russian).String(s)
}

func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, falling back to the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}

	return c, nil
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := c.prepare(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Catalog) prepare() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}

	seen := make(map[string]bool)
	for i := range c.Categories {
		category := &c.Categories[i]
		if category.Name == "" {
			return fmt.Errorf("category at index %d has no name", i)
		}
		if len(category.Keywords) == 0 {
			return fmt.Errorf("category %s has no keywords", category.Name)
		}
		category.Keywords = normalizeAll(category.Keywords)
		category.Markers = normalizeAll(category.Markers)

		for _, keyword := range category.Keywords {
			if !seen[keyword] {
				seen[keyword] = true
				c.phrases = append(c.phrases, keyword)
			}
		}
	}
	slices.Sort(c.phrases)

	for i := range c.ExcludedTopics {
		c.ExcludedTopics[i].Terms = normalizeAll(c.ExcludedTopics[i].Terms)
	}
	c.CampaignMarkers = normalizeAll(c.CampaignMarkers)
	c.AllowList = normalizeAll(c.AllowList)
	c.StopWords = normalizeAll(c.StopWords)

	c.compiled = make([]*regexp.Regexp, 0, len(c.Patterns))
	for i, pattern := range c.Patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern at index %d: %w", i, err)
		}
		c.compiled = append(c.compiled, re)
	}

	c.allowed = toSet(c.AllowList)
	c.stopWords = toSet(c.StopWords)

	return nil
}

// Phrases returns the sorted union of every category keyword.
func (c *Catalog) Phrases() []string {
	return c.phrases
}

func (c *Catalog) CompiledPatterns() []*regexp.Regexp {
	return c.compiled
}

func (c *Catalog) IsAllowListed(word string) bool {
	return c.allowed[Normalize(word)]
}

func (c *Catalog) IsStopWord(word string) bool {
	return c.stopWords[word]
}

func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, Normalize(v))
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
