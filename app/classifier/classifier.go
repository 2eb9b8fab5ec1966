package classifier

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/lysyi3m/meme-comb/app/catalog"
	"github.com/lysyi3m/meme-comb/app/meme"
)

const (
	keywordTextScore = 10
	keywordURLScore  = 5
	markerTextScore  = 15
	markerURLScore   = 5
	minRepeatedRunes = 4
)

type Classifier struct {
	catalog  *catalog.Catalog
	registry Registry
	policy   Policy
}

func NewClassifier(c *catalog.Catalog, registry Registry, policy Policy) *Classifier {
	return &Classifier{
		catalog:  c,
		registry: registry,
		policy:   policy,
	}
}

func (c *Classifier) CatalogVersion() string {
	return c.catalog.Version
}

func (c *Classifier) Policy() Policy {
	return c.policy
}

// Classify runs the rule pipeline and stops at the first rule that rejects.
// It reads the registry but never writes to it.
func (c *Classifier) Classify(item meme.Item) Verdict {
	text := catalog.Normalize(item.Text)
	imageURL := catalog.Normalize(item.ImageURL)
	words := strings.Fields(text)

	if len(words) == 0 && imageURL == "" {
		return Reject(ReasonEmpty, "no text and no image")
	}
	if c.policy.MinWords > 0 && (imageURL == "" || c.policy.MinWordsWithImage) && len(words) < c.policy.MinWords {
		return Reject(ReasonTooShort, "%d words, need %d", len(words), c.policy.MinWords)
	}

	for _, topic := range c.catalog.ExcludedTopics {
		for _, term := range topic.Terms {
			if strings.Contains(text, term) {
				return Reject(ReasonExcludedTopic, "%s: '%s'", topic.Name, term)
			}
		}
	}

	if c.registry != nil && c.registry.IsBlocked(item.ImageURL) {
		return Reject(ReasonBlockedImage, "image hash %s is blocked", meme.ImageHash(item.ImageURL))
	}
	for _, marker := range c.catalog.CampaignMarkers {
		if strings.Contains(imageURL, marker) || strings.Contains(text, marker) {
			return Reject(ReasonCampaignMarker, "'%s'", marker)
		}
	}

	if v := c.checkCategories(text, imageURL); !v.Accepted {
		return v
	}

	if v := c.sweep(text); !v.Accepted {
		return v
	}
	if imageURL != "" {
		for _, phrase := range c.catalog.Phrases() {
			if strings.Contains(imageURL, phrase) {
				return Reject(ReasonPhrase, "image url contains '%s'", phrase)
			}
		}
	}
	for _, tag := range item.Tags {
		if c.catalog.IsAllowListed(tag) {
			continue
		}
		if v := c.sweep(catalog.Normalize(tag)); !v.Accepted {
			return Reject(ReasonTag, "tag '%s': %s", tag, v.Detail)
		}
	}

	if c.policy.Strict && !c.isOnTopic(text, item.Tags) {
		return Reject(ReasonOffTopic, "no allow-listed keyword")
	}

	if len(words) > c.policy.LongTextWords {
		if word, count, ok := c.repeatedWord(words); ok {
			return Reject(ReasonRepetitive, "'%s' repeated %d times", word, count)
		}
	}

	if item.Metadata != nil {
		fields := []struct{ name, value string }{
			{"title", item.Metadata.Title},
			{"description", item.Metadata.Description},
		}
		for _, field := range fields {
			if field.value == "" {
				continue
			}
			value := catalog.Normalize(field.value)
			if v := c.checkCategories(value, ""); !v.Accepted {
				return Reject(ReasonMetadata, "%s: %s", field.name, v.Detail)
			}
			if v := c.sweep(value); !v.Accepted {
				return Reject(ReasonMetadata, "%s: %s", field.name, v.Detail)
			}
		}
	}

	return Accept()
}

// Screen classifies the item and, when the policy says so, blocks the image
// of a rejected item so it is never admitted again.
func (c *Classifier) Screen(ctx context.Context, item meme.Item) Verdict {
	v := c.Classify(item)
	if v.Accepted {
		return v
	}

	slog.Debug("Item rejected", "id", item.ID, "source", item.Source, "reason", v.Reason, "detail", v.Detail)

	if c.policy.BlockOnReject && item.ImageURL != "" && v.Reason != ReasonBlockedImage && c.registry != nil {
		if err := c.registry.Block(ctx, item.ImageURL); err != nil {
			slog.Error("Failed to persist blocked image", "id", item.ID, "error", err)
		}
	}

	return v
}

func (c *Classifier) checkCategories(text, imageURL string) Verdict {
	bestName := ""
	bestScore := 0

	for _, category := range c.catalog.Categories {
		score := 0
		for _, keyword := range category.Keywords {
			score += strings.Count(text, keyword) * keywordTextScore
			score += strings.Count(imageURL, keyword) * keywordURLScore
		}
		for _, marker := range category.Markers {
			score += strings.Count(text, marker) * markerTextScore
			score += strings.Count(imageURL, marker) * markerURLScore
		}
		if score > bestScore {
			bestName = category.Name
			bestScore = score
		}
	}

	if bestScore > c.policy.CategoryThreshold {
		return Reject(ReasonCategoryScore, "%s scored %d", bestName, bestScore)
	}
	return Accept()
}

func (c *Classifier) sweep(text string) Verdict {
	if text == "" {
		return Accept()
	}

	for _, phrase := range c.catalog.Phrases() {
		if strings.Contains(text, phrase) {
			return Reject(ReasonPhrase, "'%s'", phrase)
		}
	}
	for _, re := range c.catalog.CompiledPatterns() {
		if re.MatchString(text) {
			return Reject(ReasonPattern, "'%s'", re.String())
		}
	}

	return Accept()
}

func (c *Classifier) isOnTopic(text string, tags []string) bool {
	haystack := text
	if len(tags) > 0 {
		haystack += " " + catalog.Normalize(strings.Join(tags, " "))
	}

	for _, keyword := range c.catalog.AllowList {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

func (c *Classifier) repeatedWord(words []string) (string, int, bool) {
	counts := make(map[string]int)
	for _, word := range words {
		if utf8.RuneCountInString(word) >= minRepeatedRunes {
			counts[word]++
		}
	}

	for _, word := range words {
		if counts[word] > c.policy.RepeatThreshold {
			return word, counts[word], true
		}
	}
	return "", 0, false
}
