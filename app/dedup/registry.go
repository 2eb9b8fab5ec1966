package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/lysyi3m/meme-comb/app/database"
	"github.com/lysyi3m/meme-comb/app/meme"
)

const (
	BlockedSnapshot = "blocked_images.json"
	SeenSnapshot    = "seen_signatures.json"
)

// Registry remembers blocked image hashes and every signature that has
// been classified. Both sets only grow.
type Registry struct {
	store   database.BlobStore
	mu      sync.RWMutex
	saveMu  sync.Mutex
	blocked map[string]struct{}
	seen    map[string]struct{}
}

func NewRegistry(store database.BlobStore) *Registry {
	return &Registry{
		store:   store,
		blocked: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}
}

func (r *Registry) IsBlocked(imageURL string) bool {
	if imageURL == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.blocked[meme.ImageHash(imageURL)]
	return ok
}

// Block adds the image hash and persists the blocklist when it changed.
// The in-memory set is updated even if persisting fails.
func (r *Registry) Block(ctx context.Context, imageURL string) error {
	if imageURL == "" {
		return nil
	}

	hash := meme.ImageHash(imageURL)

	r.mu.Lock()
	_, exists := r.blocked[hash]
	if !exists {
		r.blocked[hash] = struct{}{}
	}
	r.mu.Unlock()

	if exists {
		return nil
	}

	slog.Debug("Image blocked", "hash", hash)

	return r.save(ctx, BlockedSnapshot, &r.blocked)
}

func (r *Registry) SeenSignature(signature string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.seen[signatureKey(signature)]
	return ok
}

// MarkSeen records a signature in memory. It is persisted by Save.
func (r *Registry) MarkSeen(signature string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen[signatureKey(signature)] = struct{}{}
}

func (r *Registry) Counts() (blocked int, seen int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.blocked), len(r.seen)
}

func (r *Registry) Save(ctx context.Context) error {
	return errors.Join(
		r.save(ctx, BlockedSnapshot, &r.blocked),
		r.save(ctx, SeenSnapshot, &r.seen),
	)
}

// Load merges persisted sets into memory. Missing or unreadable snapshots
// leave the registry as it is.
func (r *Registry) Load(ctx context.Context) {
	r.load(ctx, BlockedSnapshot, &r.blocked)
	r.load(ctx, SeenSnapshot, &r.seen)

	blocked, seen := r.Counts()
	slog.Info("Dedup registry loaded", "blocked_images", blocked, "seen_signatures", seen)
}

func (r *Registry) load(ctx context.Context, name string, set *map[string]struct{}) {
	data, err := r.store.Load(ctx, name)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Error("Failed to load dedup snapshot", "snapshot", name, "error", err)
		return
	}

	var hashes []string
	if err := json.Unmarshal(data, &hashes); err != nil {
		slog.Error("Corrupt dedup snapshot, ignoring", "snapshot", name, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, hash := range hashes {
		(*set)[hash] = struct{}{}
	}
}

func (r *Registry) save(ctx context.Context, name string, set *map[string]struct{}) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	hashes := make([]string, 0, len(*set))
	for hash := range *set {
		hashes = append(hashes, hash)
	}
	r.mu.RUnlock()

	slices.Sort(hashes)

	data, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	if err := r.store.Save(ctx, name, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", name, err)
	}

	return nil
}

func signatureKey(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])
}
