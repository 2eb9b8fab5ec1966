package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lysyi3m/meme-comb/app/collection"
	"github.com/lysyi3m/meme-comb/app/meme"
	"github.com/lysyi3m/meme-comb/app/recommend"
)

var ErrNoItem = errors.New("no item available")

const ReportedReason = "reported by user"

// UserSession is the per-user serving state. It is passed into and returned
// from every operation; callers own where it lives.
type UserSession struct {
	UserID    string   `json:"user_id"`
	CurrentID string   `json:"current_id,omitempty"`
	Viewed    []string `json:"viewed,omitempty"`
}

func NewSession(userID string) UserSession {
	return UserSession{UserID: userID}
}

type Recommender interface {
	Recommend(userID string, items []meme.Item, n int) []meme.Item
	RecordFeedback(ctx context.Context, userID string, item meme.Item, rating int) error
	Stats(userID string) recommend.Stats
	Analyze(userID string, items []meme.Item) recommend.Analysis
	UserCount() int
}

type Blocklist interface {
	Block(ctx context.Context, imageURL string) error
	Counts() (blocked int, seen int)
}

type Overview struct {
	Accepted       int    `json:"accepted"`
	Rejected       int    `json:"rejected"`
	BlockedImages  int    `json:"blocked_images"`
	SeenSignatures int    `json:"seen_signatures"`
	Users          int    `json:"users"`
	CatalogVersion string `json:"catalog_version"`
}

// Feed serves curated items to users and routes their reactions back into
// the preference model and the blocklist.
type Feed struct {
	collection     *collection.Store
	recommender    Recommender
	blocklist      Blocklist
	catalogVersion string
}

func NewFeed(collection *collection.Store, recommender Recommender, blocklist Blocklist, catalogVersion string) *Feed {
	return &Feed{
		collection:     collection,
		recommender:    recommender,
		blocklist:      blocklist,
		catalogVersion: catalogVersion,
	}
}

// Next picks the best unseen item for the session's user. Once everything
// has been viewed the history starts over.
func (f *Feed) Next(session UserSession) (meme.Item, UserSession, error) {
	items := f.collection.Accepted()
	if len(items) == 0 {
		return meme.Item{}, session, ErrNoItem
	}

	unseen := slices.DeleteFunc(slices.Clone(items), func(item meme.Item) bool {
		return slices.Contains(session.Viewed, item.ID)
	})

	viewed := slices.Clone(session.Viewed)
	if len(unseen) == 0 {
		slog.Debug("User has seen every item, resetting history", "user_id", session.UserID, "viewed", len(viewed))
		unseen = items
		viewed = nil
	}

	picks := f.recommender.Recommend(session.UserID, unseen, 1)
	if len(picks) == 0 {
		return meme.Item{}, session, ErrNoItem
	}

	item := picks[0]
	session.CurrentID = item.ID
	session.Viewed = append(viewed, item.ID)

	return item, session, nil
}

func (f *Feed) Rate(ctx context.Context, session UserSession, itemID string, rating int) error {
	item, ok := f.collection.Get(itemID)
	if !ok {
		return fmt.Errorf("failed to rate item %s: %w", itemID, collection.ErrNotFound)
	}

	return f.recommender.RecordFeedback(ctx, session.UserID, item, rating)
}

// Report removes the session's current item from circulation.
func (f *Feed) Report(ctx context.Context, session UserSession) (meme.Item, UserSession, error) {
	if session.CurrentID == "" {
		return meme.Item{}, session, ErrNoItem
	}

	item, err := f.ReportItem(ctx, session.CurrentID)
	if err != nil {
		return meme.Item{}, session, err
	}

	session.CurrentID = ""
	return item, session, nil
}

// ReportItem moves an accepted item to the rejected pool and blocks its
// image. Persistence failures are logged; memory stays authoritative.
func (f *Feed) ReportItem(ctx context.Context, itemID string) (meme.Item, error) {
	item, err := f.collection.Reject(itemID, ReportedReason, true)
	if err != nil {
		return meme.Item{}, fmt.Errorf("failed to report item %s: %w", itemID, err)
	}

	if item.ImageURL != "" {
		if err := f.blocklist.Block(ctx, item.ImageURL); err != nil {
			slog.Error("Failed to persist blocked image", "id", item.ID, "error", err)
		}
	}
	if err := f.collection.Save(ctx); err != nil {
		slog.Error("Failed to persist collection", "error", err)
	}

	slog.Info("Item reported", "id", item.ID, "source", item.Source, "pool", f.collection.Len())

	return item, nil
}

func (f *Feed) Stats(userID string) recommend.Stats {
	return f.recommender.Stats(userID)
}

func (f *Feed) Recommendations(userID string, n int) []meme.Item {
	return f.recommender.Recommend(userID, f.collection.Accepted(), n)
}

func (f *Feed) Analyze(userID string) recommend.Analysis {
	return f.recommender.Analyze(userID, f.collection.Accepted())
}

// Items returns one of the pools, newest first, capped at limit when limit
// is positive.
func (f *Feed) Items(pool string, limit int) ([]meme.Item, error) {
	var items []meme.Item
	switch pool {
	case "", "accepted":
		items = f.collection.Accepted()
	case "rejected":
		for _, rejection := range f.collection.Rejected() {
			items = append(items, rejection.Item)
		}
	default:
		return nil, fmt.Errorf("unknown pool: %s", pool)
	}

	slices.Reverse(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Rejections returns the rejected pool with reasons, newest first.
func (f *Feed) Rejections(limit int) []collection.Rejection {
	rejections := f.collection.Rejected()
	slices.Reverse(rejections)
	if limit > 0 && len(rejections) > limit {
		rejections = rejections[:limit]
	}
	return rejections
}

func (f *Feed) Overview() Overview {
	blocked, seen := f.blocklist.Counts()
	return Overview{
		Accepted:       f.collection.Len(),
		Rejected:       f.collection.RejectedLen(),
		BlockedImages:  blocked,
		SeenSignatures: seen,
		Users:          f.recommender.UserCount(),
		CatalogVersion: f.catalogVersion,
	}
}
