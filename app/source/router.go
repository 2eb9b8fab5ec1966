package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/meme-comb/app/meme"
)

var _ Client = (*Router)(nil)

// Router resolves a configured source name to its kind-specific client.
// Every source gets its own circuit breaker.
type Router struct {
	configs  *ConfigCache
	clients  map[Kind]Client
	enricher *MetadataEnricher

	mu       sync.Mutex
	breakers map[string]*BreakerClient
}

func NewRouter(configs *ConfigCache, clients map[Kind]Client, enricher *MetadataEnricher) *Router {
	return &Router{
		configs:  configs,
		clients:  clients,
		enricher: enricher,
		breakers: make(map[string]*BreakerClient),
	}
}

func (r *Router) Fetch(ctx context.Context, sourceName string, offset, count int) ([]meme.RawPost, error) {
	config, err := r.configs.GetConfig(sourceName)
	if err != nil {
		return nil, err
	}

	client, err := r.breaker(config)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(config.Settings.Timeout)*time.Second)
	defer cancel()

	posts, err := client.Fetch(fetchCtx, config.Target(), offset, count)
	if err != nil {
		return nil, err
	}

	if config.Settings.ExtractMetadata && r.enricher != nil {
		for i := range posts {
			if err := r.enricher.Run(fetchCtx, &posts[i]); err != nil {
				slog.Debug("Failed to extract metadata", "source", sourceName, "url", posts[i].Link, "error", err)
			}
		}
	}

	return posts, nil
}

func (r *Router) breaker(config *Config) (*BreakerClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[config.Name]; ok {
		return b, nil
	}

	client, ok := r.clients[config.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no client for kind %s", ErrUnavailable, config.Kind)
	}

	b := NewBreakerClient(config.Name, client)
	r.breakers[config.Name] = b
	return b, nil
}
