package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/meme-comb/app/database"
	"github.com/lysyi3m/meme-comb/app/meme"
)

const (
	AcceptedSnapshot = "accepted.jsonl"
	RejectedSnapshot = "rejected.jsonl"
)

var ErrNotFound = errors.New("item not found in accepted pool")

type Rejection struct {
	Item       meme.Item `json:"item"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
	Reported   bool      `json:"reported,omitempty"`
}

// pools is an immutable view of both pools. Writers build a new one and
// swap it in, so readers never see a half-applied batch.
type pools struct {
	accepted map[string]meme.Item
	order    []string
	rejected map[string]Rejection
}

func (p *pools) clone() *pools {
	next := &pools{
		accepted: make(map[string]meme.Item, len(p.accepted)),
		order:    slices.Clone(p.order),
		rejected: make(map[string]Rejection, len(p.rejected)),
	}
	for id, item := range p.accepted {
		next.accepted[id] = item
	}
	for id, rejection := range p.rejected {
		next.rejected[id] = rejection
	}
	return next
}

type Store struct {
	store   database.BlobStore
	mu      sync.Mutex
	current atomic.Pointer[pools]
}

func NewStore(store database.BlobStore) *Store {
	s := &Store{store: store}
	s.current.Store(&pools{
		accepted: make(map[string]meme.Item),
		rejected: make(map[string]Rejection),
	})
	return s
}

func (s *Store) Get(id string) (meme.Item, bool) {
	item, ok := s.current.Load().accepted[id]
	return item, ok
}

// Contains reports whether the id is in either pool.
func (s *Store) Contains(id string) bool {
	p := s.current.Load()
	if _, ok := p.accepted[id]; ok {
		return true
	}
	_, ok := p.rejected[id]
	return ok
}

// Accepted returns the accepted pool in insertion order.
func (s *Store) Accepted() []meme.Item {
	p := s.current.Load()
	items := make([]meme.Item, 0, len(p.order))
	for _, id := range p.order {
		items = append(items, p.accepted[id])
	}
	return items
}

func (s *Store) Rejected() []Rejection {
	p := s.current.Load()
	rejections := make([]Rejection, 0, len(p.rejected))
	for _, rejection := range p.rejected {
		rejections = append(rejections, rejection)
	}
	slices.SortFunc(rejections, func(a, b Rejection) int {
		if c := a.RejectedAt.Compare(b.RejectedAt); c != 0 {
			return c
		}
		if a.Item.ID < b.Item.ID {
			return -1
		}
		if a.Item.ID > b.Item.ID {
			return 1
		}
		return 0
	})
	return rejections
}

func (s *Store) Len() int {
	return len(s.current.Load().accepted)
}

func (s *Store) RejectedLen() int {
	return len(s.current.Load().rejected)
}

// Merge applies one classified batch atomically. Ids already present in
// either pool are ignored.
func (s *Store) Merge(accepted []meme.Item, rejected []Rejection) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	addedAccepted := 0
	addedRejected := 0

	for _, item := range accepted {
		if _, ok := next.accepted[item.ID]; ok {
			continue
		}
		if _, ok := next.rejected[item.ID]; ok {
			continue
		}
		next.accepted[item.ID] = item
		next.order = append(next.order, item.ID)
		addedAccepted++
	}

	for _, rejection := range rejected {
		id := rejection.Item.ID
		if _, ok := next.accepted[id]; ok {
			continue
		}
		if _, ok := next.rejected[id]; ok {
			continue
		}
		if rejection.RejectedAt.IsZero() {
			rejection.RejectedAt = time.Now().UTC()
		}
		next.rejected[id] = rejection
		addedRejected++
	}

	s.current.Store(next)

	return addedAccepted, addedRejected
}

// Reject moves an accepted item to the rejected pool.
func (s *Store) Reject(id, reason string, reported bool) (meme.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current.Load()
	item, ok := current.accepted[id]
	if !ok {
		return meme.Item{}, ErrNotFound
	}

	next := current.clone()
	delete(next.accepted, id)
	next.order = slices.DeleteFunc(next.order, func(existing string) bool { return existing == id })
	next.rejected[id] = Rejection{
		Item:       item,
		Reason:     reason,
		RejectedAt: time.Now().UTC(),
		Reported:   reported,
	}

	s.current.Store(next)

	return item, nil
}

// Save writes both pools as full snapshots. They are not written
// transactionally; each one is individually atomic.
func (s *Store) Save(ctx context.Context) error {
	accepted, err := database.EncodeLines(s.Accepted())
	if err != nil {
		return fmt.Errorf("failed to encode accepted pool: %w", err)
	}
	rejected, err := database.EncodeLines(s.Rejected())
	if err != nil {
		return fmt.Errorf("failed to encode rejected pool: %w", err)
	}

	return errors.Join(
		s.store.Save(ctx, AcceptedSnapshot, accepted),
		s.store.Save(ctx, RejectedSnapshot, rejected),
	)
}

// Load replaces both pools with the persisted snapshots. A missing or
// unreadable snapshot leaves that pool empty.
func (s *Store) Load(ctx context.Context) {
	next := &pools{
		accepted: make(map[string]meme.Item),
		rejected: make(map[string]Rejection),
	}

	if data := s.loadSnapshot(ctx, RejectedSnapshot); data != nil {
		rejections, skipped := database.DecodeLines[Rejection](data)
		for _, rejection := range rejections {
			if rejection.Item.ID != "" {
				next.rejected[rejection.Item.ID] = rejection
			}
		}
		if skipped > 0 {
			slog.Warn("Skipped malformed rejected records", "count", skipped)
		}
	}

	if data := s.loadSnapshot(ctx, AcceptedSnapshot); data != nil {
		items, skipped := database.DecodeLines[meme.Item](data)
		for _, item := range items {
			if item.ID == "" {
				continue
			}
			if _, ok := next.rejected[item.ID]; ok {
				continue
			}
			if _, ok := next.accepted[item.ID]; ok {
				continue
			}
			next.accepted[item.ID] = item
			next.order = append(next.order, item.ID)
		}
		if skipped > 0 {
			slog.Warn("Skipped malformed accepted records", "count", skipped)
		}
	}

	s.mu.Lock()
	s.current.Store(next)
	s.mu.Unlock()

	slog.Info("Collection loaded", "accepted", len(next.accepted), "rejected", len(next.rejected))
}

func (s *Store) loadSnapshot(ctx context.Context, name string) []byte {
	data, err := s.store.Load(ctx, name)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		slog.Error("Failed to load collection snapshot", "snapshot", name, "error", err)
		return nil
	}
	return data
}
