package source

import (
	"context"
	"errors"

	"github.com/lysyi3m/meme-comb/app/meme"
)

var ErrUnavailable = errors.New("source unavailable")

type Kind string

const (
	KindVK  Kind = "vk"
	KindRSS Kind = "rss"
)

// Client fetches up to count posts from one upstream source, newest first,
// skipping the newest offset posts. An empty result means the source has
// nothing past offset.
type Client interface {
	Fetch(ctx context.Context, sourceID string, offset, count int) ([]meme.RawPost, error)
}

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	Kind     Kind           `yaml:"kind"`
	ID       string         `yaml:"id"`  // VK group id
	URL      string         `yaml:"url"` // RSS/Atom feed URL
	Tags     []string       `yaml:"tags"`
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled         bool `yaml:"enabled"`
	Timeout         int  `yaml:"timeout"` // seconds
	ExtractMetadata bool `yaml:"extract_metadata"`
}

// Target is the identifier handed to the kind-specific client.
func (c *Config) Target() string {
	if c.Kind == KindRSS {
		return c.URL
	}
	return c.ID
}

// Label identifies the source on stored items, e.g. "vk:12345".
func (c *Config) Label() string {
	if c.Kind == KindRSS {
		return string(c.Kind) + ":" + c.Name
	}
	return string(c.Kind) + ":" + c.ID
}
