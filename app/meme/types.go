package meme

import (
	"time"
)

type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Item is a candidate piece of content. Items are not mutated after classification.
type Item struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"image_url,omitempty"` // empty for text-only items
	Tags      []string  `json:"tags,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

type PhotoSize struct {
	URL    string
	Width  int
	Height int
}

// RawPost is a post as returned by an upstream source, before normalization.
type RawPost struct {
	SourceID     string
	Text         string
	Photos       []PhotoSize
	Link         string
	Promoted     bool
	Pinned       bool
	ExternalLink bool // link, market, app or poll attachment
	Metadata     *Metadata
	PublishedAt  time.Time
}
