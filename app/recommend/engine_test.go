package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/lysyi3m/meme-comb/app/catalog"
	"github.com/lysyi3m/meme-comb/app/database"
	"github.com/lysyi3m/meme-comb/app/meme"
)

type memoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{blobs: make(map[string][]byte)}
}

func (s *memoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, database.ErrNotFound
	}
	return data, nil
}

func (s *memoryStore) Save(ctx context.Context, name string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.blobs[name] = blob
	return nil
}

func newTestEngine(store database.BlobStore, seed int64) *Engine {
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewSource(seed))
	return NewEngine(catalog.Default(), store, opts)
}

func testItem(id, text string, tags ...string) meme.Item {
	return meme.Item{ID: id, Text: text, Tags: tags}
}

func testCollection(n int) []meme.Item {
	items := make([]meme.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, testItem(fmt.Sprintf("item-%d", i), fmt.Sprintf("мем номер %d", i)))
	}
	return items
}

func rate(t *testing.T, e *Engine, userID string, item meme.Item, rating int) {
	t.Helper()
	if err := e.RecordFeedback(context.Background(), userID, item, rating); err != nil {
		t.Fatalf("Failed to record feedback: %v", err)
	}
}

func TestKeywords_Extraction(t *testing.T) {
	item := testItem("1", "Когда понедельник, а хочется пятницы!", "офис", "мем")

	got := Keywords(catalog.Default(), item, 15)
	expected := []string{"понедельник", "хочется", "пятницы", "офис", "мем"}

	if !slices.Equal(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestKeywords_Capped(t *testing.T) {
	item := testItem("1", "один2 два2 три2 четыре пять2 шесть семь восемь девять десять")

	got := Keywords(catalog.Default(), item, 3)
	if len(got) != 3 {
		t.Errorf("Expected 3 keywords, got %d: %v", len(got), got)
	}
}

func TestEngine_ColdStartSamplesDistinctItems(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)
	items := testCollection(10)

	rate(t, engine, "u1", items[0], Like)
	rate(t, engine, "u1", items[1], Dislike)

	picked := engine.Recommend("u1", items, 3)
	if len(picked) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(picked))
	}

	seen := make(map[string]bool)
	for _, item := range picked {
		if seen[item.ID] {
			t.Errorf("Expected distinct items, %s picked twice", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestEngine_ColdStartIsUniform(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 42)
	items := testCollection(10)

	const runs = 3000
	counts := make(map[string]int)
	for i := 0; i < runs; i++ {
		for _, item := range engine.Recommend("new-user", items, 3) {
			counts[item.ID]++
		}
	}

	expected := runs * 3 / len(items)
	for _, item := range items {
		if c := counts[item.ID]; c < expected*3/4 || c > expected*5/4 {
			t.Errorf("Item %s picked %d times, expected about %d", item.ID, c, expected)
		}
	}
}

func TestEngine_RatedItemScore(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)
	items := testCollection(6)

	rate(t, engine, "u1", items[0], Like)
	for _, item := range items[1:] {
		rate(t, engine, "u1", item, Dislike)
	}

	if score := engine.Score("u1", items[0]); score != 0.9 {
		t.Errorf("Expected score 0.9 for liked item, got %f", score)
	}
	if score := engine.Score("u1", items[1]); score != 0.1 {
		t.Errorf("Expected score 0.1 for disliked item, got %f", score)
	}
}

func TestEngine_NeutralScores(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)

	if score := engine.Score("nobody", testItem("x", "котик")); score != 0.5 {
		t.Errorf("Expected neutral score for unknown user, got %f", score)
	}

	for _, item := range testCollection(5) {
		rate(t, engine, "u1", item, Like)
	}
	if score := engine.Score("u1", testItem("empty", "")); score != 0.5 {
		t.Errorf("Expected neutral score for item without keywords, got %f", score)
	}
}

func TestEngine_ScoreBounds(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)

	for i := 0; i < 40; i++ {
		rate(t, engine, "u1", testItem(fmt.Sprintf("like-%d", i), "котик"), Like)
		rate(t, engine, "u1", testItem(fmt.Sprintf("dislike-%d", i), "собака"), Dislike)
	}

	cases := []meme.Item{
		testItem("a", "котик"),
		testItem("b", "собака"),
		testItem("c", "котик собака"),
		testItem("d", "ничего общего"),
	}
	for _, item := range cases {
		score := engine.Score("u1", item)
		if score < 0 || score > 1 {
			t.Errorf("Score for %q out of bounds: %f", item.Text, score)
		}
	}

	if engine.Score("u1", cases[0]) != 1 {
		t.Errorf("Expected clamped score 1, got %f", engine.Score("u1", cases[0]))
	}
	if engine.Score("u1", cases[1]) != 0 {
		t.Errorf("Expected clamped score 0, got %f", engine.Score("u1", cases[1]))
	}
}

func TestEngine_ReRatingIsIdempotent(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)
	item := testItem("x", "котик спит")

	rate(t, engine, "u1", item, Like)
	before := engine.users["u1"].profile.LikedKeywords["котик"]

	rate(t, engine, "u1", item, Like)

	profile := engine.users["u1"].profile
	if profile.LikedKeywords["котик"] != before {
		t.Errorf("Expected weight %f to be unchanged, got %f", before, profile.LikedKeywords["котик"])
	}
	if profile.TotalRatings != 1 {
		t.Errorf("Expected 1 rating, got %d", profile.TotalRatings)
	}
}

func TestEngine_ReRatingOverwritesRating(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)
	item := testItem("x", "котик спит")

	rate(t, engine, "u1", item, Like)
	liked := engine.users["u1"].profile.LikedKeywords["котик"]

	rate(t, engine, "u1", item, Dislike)

	profile := engine.users["u1"].profile
	if profile.RatedItems["x"] != Dislike {
		t.Errorf("Expected latest rating to win, got %d", profile.RatedItems["x"])
	}
	if profile.TotalRatings != 1 {
		t.Errorf("Expected 1 rating, got %d", profile.TotalRatings)
	}
	if profile.LikedKeywords["котик"] != liked {
		t.Error("Expected liked weights never to decrease")
	}
	if profile.DislikedKeywords["котик"] != 0.5 {
		t.Errorf("Expected disliked weight 0.5, got %f", profile.DislikedKeywords["котик"])
	}
}

func TestEngine_RecommendRanksByPreference(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)

	for i := 0; i < 5; i++ {
		rate(t, engine, "u1", testItem(fmt.Sprintf("monday-%d", i), "понедельник снова"), Like)
	}
	rate(t, engine, "u1", testItem("cat", "котик"), Dislike)

	items := []meme.Item{
		testItem("neutral", "ничего общего"),
		testItem("cat-2", "котик опять"),
		testItem("monday-new", "понедельник опять"),
	}

	picked := engine.Recommend("u1", items, 3)
	if picked[0].ID != "monday-new" {
		t.Errorf("Expected 'monday-new' first, got %s", picked[0].ID)
	}
	if picked[2].ID != "cat-2" {
		t.Errorf("Expected 'cat-2' last, got %s", picked[2].ID)
	}
}

func TestEngine_MalformedItems(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)

	err := engine.RecordFeedback(context.Background(), "u1", testItem("", "котик"), Like)
	if !errors.Is(err, ErrMalformedItem) {
		t.Errorf("Expected ErrMalformedItem, got %v", err)
	}
	if err := engine.RecordFeedback(context.Background(), "u1", testItem("x", "котик"), 5); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("Expected ErrInvalidRating, got %v", err)
	}

	picked := engine.Recommend("u1", []meme.Item{testItem("", "a"), testItem("ok", "b")}, 5)
	if len(picked) != 1 || picked[0].ID != "ok" {
		t.Errorf("Expected only the valid item, got %v", picked)
	}
}

func TestEngine_StatsAndAnalyze(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)
	items := testCollection(6)

	analysis := engine.Analyze("u1", items)
	if analysis.Ready || analysis.RatingsNeeded != 5 {
		t.Errorf("Expected analysis not ready with 5 ratings needed, got %+v", analysis)
	}

	rate(t, engine, "u1", testItem("a", "понедельник"), Like)
	rate(t, engine, "u1", testItem("b", "понедельник кофе"), Like)
	rate(t, engine, "u1", testItem("c", "котик"), Like)
	rate(t, engine, "u1", testItem("d", "собака"), Dislike)
	rate(t, engine, "u1", testItem("e", "дождь"), Dislike)

	stats := engine.Stats("u1")
	if stats.TotalRatings != 5 || stats.Liked != 3 || stats.Disliked != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if !stats.HasRecommendations {
		t.Error("Expected recommendations to be available")
	}
	if len(stats.TopKeywords) == 0 || stats.TopKeywords[0] != "понедельник" {
		t.Errorf("Expected 'понедельник' as top keyword, got %v", stats.TopKeywords)
	}

	analysis = engine.Analyze("u1", items)
	if !analysis.Ready || len(analysis.Recommendations) != 5 {
		t.Errorf("Expected ready analysis with 5 recommendations, got %+v", analysis)
	}
}

func TestEngine_SaveLoad(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(store, 1)

	for _, item := range testCollection(5) {
		rate(t, engine, "u1", item, Like)
	}

	restored := newTestEngine(store, 1)
	restored.Load(context.Background())

	if restored.UserCount() != 1 {
		t.Fatalf("Expected 1 user, got %d", restored.UserCount())
	}
	if stats := restored.Stats("u1"); stats.TotalRatings != 5 {
		t.Errorf("Expected 5 ratings, got %d", stats.TotalRatings)
	}
}

func TestEngine_PersistenceFailureIsNotFatal(t *testing.T) {
	store := newMemoryStore()
	store.fail = true
	engine := newTestEngine(store, 1)

	if err := engine.RecordFeedback(context.Background(), "u1", testItem("x", "котик"), Like); err != nil {
		t.Errorf("Expected persistence failure to be swallowed, got %v", err)
	}
	if engine.Stats("u1").TotalRatings != 1 {
		t.Error("Expected in-memory profile to be updated")
	}
}

func TestEngine_ConcurrentUsers(t *testing.T) {
	engine := newTestEngine(newMemoryStore(), 1)

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", u)
			for i := 0; i < 20; i++ {
				engine.RecordFeedback(context.Background(), userID, testItem(fmt.Sprintf("%d", i), "котик"), Like)
			}
		}(u)
	}
	wg.Wait()

	for u := 0; u < 8; u++ {
		if got := engine.Stats(fmt.Sprintf("user-%d", u)).TotalRatings; got != 20 {
			t.Errorf("Expected 20 ratings for user-%d, got %d", u, got)
		}
	}
}
