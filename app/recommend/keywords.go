package recommend

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lysyi3m/meme-comb/app/catalog"
	"github.com/lysyi3m/meme-comb/app/meme"
)

const minKeywordRunes = 3

// Keywords extracts the de-duplicated keyword set of an item from its text
// and tags, in first-seen order.
func Keywords(c *catalog.Catalog, item meme.Item, limit int) []string {
	seen := make(map[string]bool)
	keywords := make([]string, 0, limit)

	add := func(word string) bool {
		if len(keywords) >= limit {
			return false
		}
		if seen[word] || c.IsStopWord(word) || utf8.RuneCountInString(word) < minKeywordRunes {
			return true
		}
		seen[word] = true
		keywords = append(keywords, word)
		return true
	}

	for _, word := range tokenize(item.Text) {
		if !add(word) {
			return keywords
		}
	}

	for _, tag := range item.Tags {
		for _, word := range tokenize(tag) {
			if !add(word) {
				return keywords
			}
		}
		if !add(strings.TrimSpace(catalog.Normalize(tag))) {
			return keywords
		}
	}

	return keywords
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, catalog.Normalize(text))

	return strings.Fields(cleaned)
}
