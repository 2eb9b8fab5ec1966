package recommend

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/meme-comb/app/catalog"
	"github.com/lysyi3m/meme-comb/app/database"
	"github.com/lysyi3m/meme-comb/app/meme"
)

type userState struct {
	mu      sync.Mutex
	profile Profile
}

// Engine learns per-user keyword preferences from ratings and ranks items.
// Feedback for one user is applied in order; different users do not block
// each other.
type Engine struct {
	catalog *catalog.Catalog
	store   database.BlobStore
	opts    Options

	mu    sync.RWMutex
	users map[string]*userState

	saveMu sync.Mutex
	rngMu  sync.Mutex
	rng    *rand.Rand
}

func NewEngine(c *catalog.Catalog, store database.BlobStore, opts Options) *Engine {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Engine{
		catalog: c,
		store:   store,
		opts:    opts,
		users:   make(map[string]*userState),
		rng:     rng,
	}
}

func (e *Engine) Keywords(item meme.Item) []string {
	return Keywords(e.catalog, item, e.opts.MaxKeywords)
}

// RecordFeedback applies a +1/-1 rating. Re-rating an item overwrites the
// stored rating; keyword weights are only added when the rating changes.
func (e *Engine) RecordFeedback(ctx context.Context, userID string, item meme.Item, rating int) error {
	if rating != Like && rating != Dislike {
		return ErrInvalidRating
	}
	if item.ID == "" {
		return ErrMalformedItem
	}

	state := e.userState(userID, true)

	state.mu.Lock()
	previous, rated := state.profile.RatedItems[item.ID]
	state.profile.RatedItems[item.ID] = rating
	state.profile.TotalRatings = len(state.profile.RatedItems)
	state.profile.UpdatedAt = time.Now().UTC()

	if !rated || previous != rating {
		keywords := e.Keywords(item)
		weight := 1.0 / float64(max(1, len(keywords)))
		target := state.profile.LikedKeywords
		if rating == Dislike {
			target = state.profile.DislikedKeywords
		}
		for _, keyword := range keywords {
			target[keyword] += weight
		}
	}
	total := state.profile.TotalRatings
	state.mu.Unlock()

	slog.Debug("Feedback recorded", "user", userID, "item", item.ID, "rating", rating, "total_ratings", total)

	if err := e.Save(ctx); err != nil {
		slog.Error("Failed to persist preferences", "user", userID, "error", err)
	}

	return nil
}

// Score returns the estimated probability in [0,1] that the user likes item.
func (e *Engine) Score(userID string, item meme.Item) float64 {
	state := e.userState(userID, false)
	if state == nil {
		return neutralScore
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	return e.score(&state.profile, item)
}

func (e *Engine) score(profile *Profile, item meme.Item) float64 {
	if profile.TotalRatings < e.opts.MinRatings {
		return neutralScore
	}

	if rating, ok := profile.RatedItems[item.ID]; ok {
		if rating > 0 {
			return likedScore
		}
		return dislikeScore
	}

	keywords := e.Keywords(item)
	if len(keywords) == 0 {
		return neutralScore
	}

	raw := 0.0
	for _, keyword := range keywords {
		raw += profile.LikedKeywords[keyword]
		raw -= profile.DislikedKeywords[keyword]
	}

	return min(1, max(0, neutralScore+raw*scoreScale))
}

// Recommend picks up to n items. Below the cold-start threshold the pick is
// a uniform random sample; otherwise items are ranked by score, ties kept in
// input order.
func (e *Engine) Recommend(userID string, items []meme.Item, n int) []meme.Item {
	candidates := make([]meme.Item, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			slog.Warn("Skipping item during ranking", "error", ErrMalformedItem)
			continue
		}
		candidates = append(candidates, item)
	}

	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	n = min(n, len(candidates))

	state := e.userState(userID, false)
	if state != nil {
		state.mu.Lock()
		defer state.mu.Unlock()
	}

	if state == nil || state.profile.TotalRatings < e.opts.MinRatings {
		e.rngMu.Lock()
		perm := e.rng.Perm(len(candidates))
		e.rngMu.Unlock()

		picked := make([]meme.Item, 0, n)
		for _, i := range perm[:n] {
			picked = append(picked, candidates[i])
		}
		return picked
	}

	type scored struct {
		item  meme.Item
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, item := range candidates {
		ranked = append(ranked, scored{item: item, score: e.score(&state.profile, item)})
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	picked := make([]meme.Item, 0, n)
	for _, r := range ranked[:n] {
		picked = append(picked, r.item)
	}
	return picked
}

func (e *Engine) Stats(userID string) Stats {
	state := e.userState(userID, false)
	if state == nil {
		return Stats{TopKeywords: []string{}}
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	stats := Stats{
		TotalRatings:       state.profile.TotalRatings,
		TopKeywords:        topKeywords(state.profile.LikedKeywords, 10),
		HasRecommendations: state.profile.TotalRatings >= e.opts.MinRatings,
	}
	for _, rating := range state.profile.RatedItems {
		if rating > 0 {
			stats.Liked++
		} else {
			stats.Disliked++
		}
	}

	return stats
}

func (e *Engine) Analyze(userID string, items []meme.Item) Analysis {
	stats := e.Stats(userID)

	analysis := Analysis{
		Ready:           stats.HasRecommendations,
		TotalRatings:    stats.TotalRatings,
		RatingsNeeded:   max(0, e.opts.MinRatings-stats.TotalRatings),
		TopKeywords:     []string{},
		Recommendations: []meme.Item{},
	}
	if !analysis.Ready {
		return analysis
	}

	analysis.TopKeywords = stats.TopKeywords[:min(5, len(stats.TopKeywords))]
	analysis.Recommendations = e.Recommend(userID, items, 5)

	return analysis
}

func (e *Engine) UserCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.users)
}

// Save writes every profile as a single snapshot.
func (e *Engine) Save(ctx context.Context) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.RLock()
	profiles := make(map[string]Profile, len(e.users))
	for userID, state := range e.users {
		state.mu.Lock()
		profiles[userID] = Profile{
			LikedKeywords:    maps.Clone(state.profile.LikedKeywords),
			DislikedKeywords: maps.Clone(state.profile.DislikedKeywords),
			RatedItems:       maps.Clone(state.profile.RatedItems),
			TotalRatings:     state.profile.TotalRatings,
			UpdatedAt:        state.profile.UpdatedAt,
		}
		state.mu.Unlock()
	}
	e.mu.RUnlock()

	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	return e.store.Save(ctx, ProfilesSnapshot, data)
}

// Load restores persisted profiles. A missing or corrupt snapshot leaves
// the engine empty.
func (e *Engine) Load(ctx context.Context) {
	data, err := e.store.Load(ctx, ProfilesSnapshot)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Error("Failed to load preferences", "error", err)
		return
	}

	var profiles map[string]Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		slog.Error("Corrupt preferences snapshot, ignoring", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for userID, profile := range profiles {
		loaded := newProfile()
		maps.Copy(loaded.LikedKeywords, profile.LikedKeywords)
		maps.Copy(loaded.DislikedKeywords, profile.DislikedKeywords)
		maps.Copy(loaded.RatedItems, profile.RatedItems)
		loaded.TotalRatings = len(loaded.RatedItems)
		loaded.UpdatedAt = profile.UpdatedAt
		e.users[userID] = &userState{profile: loaded}
	}

	slog.Info("Preferences loaded", "users", len(profiles))
}

func (e *Engine) userState(userID string, create bool) *userState {
	e.mu.RLock()
	state, ok := e.users[userID]
	e.mu.RUnlock()
	if ok || !create {
		return state
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if state, ok := e.users[userID]; ok {
		return state
	}
	state = &userState{profile: newProfile()}
	e.users[userID] = state
	return state
}

func topKeywords(weights map[string]float64, n int) []string {
	keywords := slices.Collect(maps.Keys(weights))
	slices.SortFunc(keywords, func(a, b string) int {
		if c := cmp.Compare(weights[b], weights[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return keywords[:min(n, len(keywords))]
}
