package meme

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var ErrMalformed = errors.New("malformed item")

// Signature is the dedup key of an item.
func Signature(text, imageURL string) string {
	return text + "|" + imageURL
}

func (i Item) Signature() string {
	return Signature(i.Text, i.ImageURL)
}

// NewID derives a stable identifier from the item content, so the same
// upstream post maps to the same id across restarts.
func NewID(text, imageURL string) string {
	sum := sha256.Sum256([]byte(Signature(text, imageURL)))
	return hex.EncodeToString(sum[:])[:16]
}

func ImageHash(imageURL string) string {
	sum := md5.Sum([]byte(imageURL))
	return hex.EncodeToString(sum[:])
}

// Skip reports why a raw post must not enter classification at all.
func (p RawPost) Skip() (string, bool) {
	switch {
	case p.Promoted:
		return "promoted", true
	case p.Pinned:
		return "pinned", true
	case p.ExternalLink:
		return "external_link", true
	}
	return "", false
}

// LargestPhoto returns the URL of the photo size with the biggest area.
func (p RawPost) LargestPhoto() string {
	best := ""
	bestArea := -1
	for _, photo := range p.Photos {
		if photo.URL == "" {
			continue
		}
		if area := photo.Width * photo.Height; area > bestArea {
			best = photo.URL
			bestArea = area
		}
	}
	return best
}

// FromRaw converts an upstream post into an Item. Posts with neither text
// nor an image are malformed.
func FromRaw(p RawPost, source string, tags []string) (Item, error) {
	text := strings.TrimSpace(p.Text)
	imageURL := p.LargestPhoto()

	if text == "" && imageURL == "" {
		return Item{}, ErrMalformed
	}

	timestamp := p.PublishedAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	item := Item{
		ID:        NewID(text, imageURL),
		Text:      text,
		ImageURL:  imageURL,
		Tags:      append([]string(nil), tags...),
		Source:    source,
		Timestamp: timestamp,
	}

	if p.Metadata != nil && (p.Metadata.Title != "" || p.Metadata.Description != "") {
		metadata := *p.Metadata
		item.Metadata = &metadata
	}

	return item, nil
}
