package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/meme-comb/app/collection"
	"github.com/lysyi3m/meme-comb/app/database"
	"github.com/lysyi3m/meme-comb/app/meme"
	"github.com/lysyi3m/meme-comb/app/source"
)

var ErrCycleInProgress = errors.New("acquisition cycle already in progress")

const CatalogVersionSnapshot = "catalog_version"

type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateClassifying State = "classifying"
	StateMerging     State = "merging"
	StatePersisting  State = "persisting"
)

type AcquirerConfig struct {
	BatchSize      int // posts requested per source call
	AttemptFactor  int // attempt budget is AttemptFactor x want
	FetchRetries   int
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration
	MinPoolSize    int
	TopUpSize      int
	MaxTopUpRounds int
}

func DefaultAcquirerConfig() AcquirerConfig {
	return AcquirerConfig{
		BatchSize:      20,
		AttemptFactor:  5,
		FetchRetries:   3,
		RetryDelay:     time.Second,
		MaxRetryDelay:  30 * time.Second,
		MinPoolSize:    50,
		TopUpSize:      10,
		MaxTopUpRounds: 3,
	}
}

type CycleResult struct {
	Want       int
	Attempts   int
	Fetched    int
	Skipped    int
	Malformed  int
	Duplicates int
	Accepted   int
	Rejected   int
	Failures   int
	Duration   time.Duration
}

// Acquirer runs acquisition cycles: fetch, classify, merge, persist.
// At most one cycle or refilter pass runs at a time.
type Acquirer struct {
	sources    SourceProvider
	client     source.Client
	screener   Screener
	registry   SeenRegistry
	collection *collection.Store
	store      database.BlobStore
	config     AcquirerConfig

	mu      sync.Mutex
	state   atomic.Value
	cursor  int
	offsets map[string]int // posts already examined per source, newest first
}

func NewAcquirer(sources SourceProvider, client source.Client, screener Screener, registry SeenRegistry,
	collection *collection.Store, store database.BlobStore, config AcquirerConfig) *Acquirer {
	a := &Acquirer{
		sources:    sources,
		client:     client,
		screener:   screener,
		registry:   registry,
		collection: collection,
		store:      store,
		config:     config,
		offsets:    make(map[string]int),
	}
	a.state.Store(StateIdle)
	return a
}

func (a *Acquirer) State() State {
	return a.state.Load().(State)
}

func (a *Acquirer) setState(state State) {
	a.state.Store(state)
}

// Refresh runs a regular cycle from the newest posts of every source and then
// tops the accepted pool up while it stays below the minimum size. Top-ups
// read further down each source. Thresholds are never relaxed for top-ups.
func (a *Acquirer) Refresh(ctx context.Context, want int) error {
	if _, err := a.runCycle(ctx, want, true); err != nil {
		return err
	}

	for round := 1; round <= a.config.MaxTopUpRounds; round++ {
		if a.collection.Len() >= a.config.MinPoolSize || ctx.Err() != nil {
			break
		}

		slog.Info("Accepted pool below minimum, topping up", "size", a.collection.Len(), "min", a.config.MinPoolSize, "round", round)

		result, err := a.runCycle(ctx, a.config.TopUpSize, false)
		if err != nil {
			return err
		}
		if result.Accepted == 0 {
			slog.Info("Top-up found nothing new, stopping", "size", a.collection.Len(), "round", round)
			break
		}
	}

	return nil
}

// RunCycle acquires up to want new accepted items, continuing each source
// where the previous cycle stopped. It returns ErrCycleInProgress without
// doing anything when another cycle holds the lock.
func (a *Acquirer) RunCycle(ctx context.Context, want int) (CycleResult, error) {
	return a.runCycle(ctx, want, false)
}

func (a *Acquirer) runCycle(ctx context.Context, want int, rewind bool) (CycleResult, error) {
	if !a.mu.TryLock() {
		return CycleResult{}, ErrCycleInProgress
	}
	defer a.mu.Unlock()
	defer a.setState(StateIdle)

	if rewind {
		clear(a.offsets)
	}

	start := time.Now()
	result := CycleResult{Want: want}

	configs := a.sources.GetEnabledConfigs()
	if len(configs) == 0 {
		slog.Warn("No enabled sources, skipping cycle")
		return result, nil
	}

	budget := want * a.config.AttemptFactor
	var accepted []meme.Item
	var rejected []collection.Rejection
	var signatures []string
	batchSeen := make(map[string]bool)

	for len(accepted) < want && result.Attempts < budget && ctx.Err() == nil {
		config := configs[a.cursor%len(configs)]
		a.cursor++

		offset := a.offsets[config.Name]

		a.setState(StateFetching)
		posts, answered := a.fetch(ctx, config, offset, &result, budget)
		if len(posts) == 0 {
			if answered && offset > 0 {
				slog.Debug("Source exhausted, starting over from newest posts", "source", config.Name, "offset", offset)
				delete(a.offsets, config.Name)
			}
			continue
		}

		a.setState(StateClassifying)
		examined := 0
		for _, post := range posts {
			if len(accepted) >= want || result.Attempts >= budget {
				break
			}
			examined++
			result.Attempts++

			if reason, skip := post.Skip(); skip {
				slog.Debug("Post skipped", "source", config.Label(), "reason", reason)
				result.Skipped++
				continue
			}

			item, err := meme.FromRaw(post, config.Label(), config.Tags)
			if err != nil {
				result.Malformed++
				continue
			}

			signature := item.Signature()
			if batchSeen[signature] || a.registry.SeenSignature(signature) || a.collection.Contains(item.ID) {
				result.Duplicates++
				continue
			}
			batchSeen[signature] = true
			signatures = append(signatures, signature)

			verdict := a.screener.Screen(ctx, item)
			if verdict.Accepted {
				accepted = append(accepted, item)
				continue
			}
			rejected = append(rejected, collection.Rejection{
				Item:       item,
				Reason:     verdict.String(),
				RejectedAt: time.Now().UTC(),
			})
		}
		a.offsets[config.Name] = offset + examined
	}

	a.setState(StateMerging)
	result.Accepted, result.Rejected = a.collection.Merge(accepted, rejected)
	for _, signature := range signatures {
		a.registry.MarkSeen(signature)
	}

	a.setState(StatePersisting)
	a.persist(context.WithoutCancel(ctx))

	result.Duration = time.Since(start)

	slog.Info("Cycle completed",
		"want", result.Want,
		"fetched", result.Fetched,
		"duplicates", result.Duplicates,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
		"attempts", result.Attempts,
		"pool", a.collection.Len(),
		"duration", result.Duration)

	return result, nil
}

// fetch calls one source with bounded retries, skipping the first offset
// posts. A failed call or an empty answer counts as an attempt; a source that
// stays down yields an empty batch. The flag reports whether the source
// answered at all.
func (a *Acquirer) fetch(ctx context.Context, config *source.Config, offset int, result *CycleResult, budget int) ([]meme.RawPost, bool) {
	delay := a.config.RetryDelay

	for try := 0; try <= a.config.FetchRetries; try++ {
		if result.Attempts >= budget {
			return nil, false
		}

		posts, err := a.client.Fetch(ctx, config.Name, offset, a.config.BatchSize)
		if err == nil {
			result.Fetched += len(posts)
			if len(posts) == 0 {
				result.Attempts++
			}
			return posts, true
		}

		result.Attempts++
		result.Failures++
		slog.Warn("Source fetch failed", "source", config.Name, "try", try+1, "error", err)

		if errors.Is(err, source.ErrUnavailable) || try == a.config.FetchRetries {
			return nil, false
		}

		if err := sleep(ctx, delay); err != nil {
			return nil, false
		}
		delay *= 2
		if delay > a.config.MaxRetryDelay {
			delay = a.config.MaxRetryDelay
		}
	}

	return nil, false
}

func (a *Acquirer) persist(ctx context.Context) {
	if err := a.collection.Save(ctx); err != nil {
		slog.Error("Failed to persist collection", "error", err)
	}
	if err := a.registry.Save(ctx); err != nil {
		slog.Error("Failed to persist dedup registry", "error", err)
	}
}

// Refilter re-classifies the accepted pool against the active catalog and
// moves items that no longer pass to the rejected pool.
func (a *Acquirer) Refilter(ctx context.Context) (int, error) {
	if !a.mu.TryLock() {
		return 0, ErrCycleInProgress
	}
	defer a.mu.Unlock()
	defer a.setState(StateIdle)

	a.setState(StateClassifying)
	moved := 0
	for _, item := range a.collection.Accepted() {
		if ctx.Err() != nil {
			break
		}

		verdict := a.screener.Screen(ctx, item)
		if verdict.Accepted {
			continue
		}
		if _, err := a.collection.Reject(item.ID, verdict.String(), false); err != nil {
			slog.Error("Failed to move item to rejected pool", "id", item.ID, "error", err)
			continue
		}
		moved++
	}

	a.setState(StatePersisting)
	persistCtx := context.WithoutCancel(ctx)
	a.persist(persistCtx)

	if ctx.Err() == nil {
		if err := a.store.Save(persistCtx, CatalogVersionSnapshot, []byte(a.screener.CatalogVersion())); err != nil {
			slog.Error("Failed to persist catalog version", "error", err)
		}
	}

	return moved, ctx.Err()
}

// CatalogChanged reports whether the pool was last filtered with a different
// catalog version. A store without a recorded version counts as changed.
func (a *Acquirer) CatalogChanged(ctx context.Context) bool {
	data, err := a.store.Load(ctx, CatalogVersionSnapshot)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			slog.Warn("Failed to read catalog version", "error", err)
		}
		return true
	}
	return string(data) != a.screener.CatalogVersion()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
