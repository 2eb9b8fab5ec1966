package classifier

import (
	"context"
	"strings"
	"testing"

	"github.com/lysyi3m/meme-comb/app/catalog"
	"github.com/lysyi3m/meme-comb/app/meme"
)

type fakeRegistry struct {
	blocked map[string]bool
	blocks  int
}

func newFakeRegistry(urls ...string) *fakeRegistry {
	r := &fakeRegistry{blocked: make(map[string]bool)}
	for _, url := range urls {
		r.blocked[url] = true
	}
	return r
}

func (r *fakeRegistry) IsBlocked(imageURL string) bool {
	return r.blocked[imageURL]
}

func (r *fakeRegistry) Block(ctx context.Context, imageURL string) error {
	r.blocks++
	r.blocked[imageURL] = true
	return nil
}

func newTestClassifier(registry *fakeRegistry, strict bool) *Classifier {
	policy := DefaultPolicy()
	policy.Strict = strict
	return NewClassifier(catalog.Default(), registry, policy)
}

func TestClassifier_SponsoredTextRejected(t *testing.T) {
	c := newTestClassifier(newFakeRegistry(), false)

	v := c.Classify(meme.Item{Text: "Скидка 50% купи сейчас"})

	if v.Accepted {
		t.Fatal("Expected sponsored text to be rejected")
	}
	switch v.Reason {
	case ReasonCategoryScore, ReasonPhrase, ReasonPattern:
	default:
		t.Errorf("Expected a sponsored reason, got %s", v.Reason)
	}
}

func TestClassifier_OfficeMemeAcceptedInStrictMode(t *testing.T) {
	c := newTestClassifier(newFakeRegistry(), true)

	v := c.Classify(meme.Item{
		Text: "Когда понедельник, а хочется пятницы",
		Tags: []string{"офис", "юмор"},
	})

	if !v.Accepted {
		t.Errorf("Expected office meme to be accepted, got %s", v)
	}
}

func TestClassifier_BlockedImageRejected(t *testing.T) {
	c := newTestClassifier(newFakeRegistry("https://x/bad.jpg"), false)

	v := c.Classify(meme.Item{Text: "anything", ImageURL: "https://x/bad.jpg"})

	if v.Accepted {
		t.Fatal("Expected blocked image to be rejected")
	}
	if v.Reason != ReasonBlockedImage {
		t.Errorf("Expected reason %s, got %s", ReasonBlockedImage, v.Reason)
	}
}

func TestClassifier_PlainMemeAccepted(t *testing.T) {
	c := newTestClassifier(newFakeRegistry(), false)

	v := c.Classify(meme.Item{Text: "Привет", ImageURL: "https://x/a.jpg"})

	if !v.Accepted {
		t.Errorf("Expected plain meme to be accepted, got %s", v)
	}
}

func TestClassifier_TextOnlyItemAccepted(t *testing.T) {
	c := newTestClassifier(newFakeRegistry(), false)

	v := c.Classify(meme.Item{Text: "Смешной кот"})

	if !v.Accepted {
		t.Errorf("Expected text-only item to be accepted, got %s", v)
	}
}

func TestClassifier_Rules(t *testing.T) {
	repetitive := strings.Repeat("да ", 47) + "котик котик котик котик"

	tests := []struct {
		name   string
		item   meme.Item
		strict bool
		reason Reason
	}{
		{"empty", meme.Item{Text: "   "}, false, ReasonEmpty},
		{"excluded topic", meme.Item{Text: "Тату на спине"}, false, ReasonExcludedTopic},
		{"campaign marker in url", meme.Item{Text: "смешно", ImageURL: "https://cdn.example/reklama/1.jpg"}, false, ReasonCampaignMarker},
		{"phrase in text", meme.Item{Text: "Новый магазин"}, false, ReasonPhrase},
		{"pattern in text", meme.Item{Text: "Звоните нам"}, false, ReasonPattern},
		{"phrase in image url", meme.Item{Text: "смешно", ImageURL: "https://cdn.example/pizza/1.jpg"}, false, ReasonPhrase},
		{"phrase in image url query", meme.Item{Text: "смешно", ImageURL: "https://cdn.example/1.jpg?utm=promo"}, false, ReasonPhrase},
		{"tag", meme.Item{Text: "смешно", Tags: []string{"доставка"}}, false, ReasonTag},
		{"off topic in strict mode", meme.Item{Text: "Смешной кот прыгает"}, true, ReasonOffTopic},
		{"repetitive text", meme.Item{Text: repetitive}, false, ReasonRepetitive},
		{"metadata", meme.Item{Text: "Смешной кот", Metadata: &meme.Metadata{Title: "Лучшие роллы"}}, false, ReasonMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(newFakeRegistry(), tt.strict)
			v := c.Classify(tt.item)

			if v.Accepted {
				t.Fatalf("Expected rejection with %s, got accepted", tt.reason)
			}
			if v.Reason != tt.reason {
				t.Errorf("Expected reason %s, got %s (%s)", tt.reason, v.Reason, v.Detail)
			}
		})
	}
}

func TestClassifier_OffTopicAcceptedOutsideStrictMode(t *testing.T) {
	c := newTestClassifier(newFakeRegistry(), false)

	if v := c.Classify(meme.Item{Text: "Смешной кот прыгает"}); !v.Accepted {
		t.Errorf("Expected acceptance outside strict mode, got %s", v)
	}
}

func TestClassifier_MinWordsAppliesToTextOnlyItems(t *testing.T) {
	policy := DefaultPolicy()
	policy.MinWords = 3
	c := NewClassifier(catalog.Default(), newFakeRegistry(), policy)

	if v := c.Classify(meme.Item{Text: "кот"}); v.Reason != ReasonTooShort {
		t.Errorf("Expected %s, got %s", ReasonTooShort, v)
	}
	if v := c.Classify(meme.Item{Text: "кот", ImageURL: "https://x/a.jpg"}); !v.Accepted {
		t.Errorf("Expected image item to pass, got %s", v)
	}

	policy.MinWordsWithImage = true
	strict := NewClassifier(catalog.Default(), newFakeRegistry(), policy)
	if v := strict.Classify(meme.Item{Text: "кот", ImageURL: "https://x/a.jpg"}); v.Reason != ReasonTooShort {
		t.Errorf("Expected %s for short caption, got %s", ReasonTooShort, v)
	}
	if v := strict.Classify(meme.Item{Text: "кот сидит дома", ImageURL: "https://x/a.jpg"}); !v.Accepted {
		t.Errorf("Expected long enough caption to pass, got %s", v)
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := newTestClassifier(newFakeRegistry(), true)

	items := []meme.Item{
		{Text: "Скидка 50% купи сейчас"},
		{Text: "Когда понедельник, а хочется пятницы", Tags: []string{"офис"}},
		{Text: "Привет", ImageURL: "https://x/a.jpg"},
	}

	for _, item := range items {
		first := c.Classify(item)
		second := c.Classify(item)
		if first != second {
			t.Errorf("Expected identical verdicts for %q, got %s and %s", item.Text, first, second)
		}
	}
}

func TestClassifier_ScreenBlocksRejectedImage(t *testing.T) {
	registry := newFakeRegistry()
	c := newTestClassifier(registry, false)

	v := c.Screen(context.Background(), meme.Item{Text: "Скидка 50%", ImageURL: "https://x/ad.jpg"})

	if v.Accepted {
		t.Fatal("Expected rejection")
	}
	if !registry.IsBlocked("https://x/ad.jpg") {
		t.Error("Expected rejected image to be blocked")
	}

	again := c.Classify(meme.Item{Text: "Привет", ImageURL: "https://x/ad.jpg"})
	if again.Reason != ReasonBlockedImage {
		t.Errorf("Expected blocked image on second sighting, got %s", again)
	}
}

func TestClassifier_ScreenKeepsAcceptedImage(t *testing.T) {
	registry := newFakeRegistry()
	c := newTestClassifier(registry, false)

	c.Screen(context.Background(), meme.Item{Text: "Привет", ImageURL: "https://x/a.jpg"})

	if registry.blocks != 0 {
		t.Errorf("Expected no blocks for accepted item, got %d", registry.blocks)
	}
}

func TestClassifier_ScreenWithoutBlocking(t *testing.T) {
	registry := newFakeRegistry()
	policy := DefaultPolicy()
	policy.BlockOnReject = false
	c := NewClassifier(catalog.Default(), registry, policy)

	c.Screen(context.Background(), meme.Item{Text: "Скидка 50%", ImageURL: "https://x/ad.jpg"})

	if registry.blocks != 0 {
		t.Errorf("Expected no blocks when disabled, got %d", registry.blocks)
	}
}

func TestVerdict_String(t *testing.T) {
	if Accept().String() != "accepted" {
		t.Errorf("Expected 'accepted', got '%s'", Accept().String())
	}
	v := Reject(ReasonPhrase, "'%s'", "скидк")
	if v.String() != "rejected: phrase: 'скидк'" {
		t.Errorf("Unexpected verdict string: %s", v.String())
	}
}
