package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lysyi3m/meme-comb/app/meme"
)

var _ Client = (*BreakerClient)(nil)

// BreakerClient stops calling an upstream that keeps failing and reports it
// as unavailable until the breaker half-opens again.
type BreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

func NewBreakerClient(name string, client Client) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Source circuit breaker state changed", "source", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerClient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerClient) Fetch(ctx context.Context, sourceID string, offset, count int) ([]meme.RawPost, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.client.Fetch(ctx, sourceID, offset, count)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, b.cb.Name(), err)
	}
	if err != nil {
		return nil, err
	}

	posts, _ := result.([]meme.RawPost)
	return posts, nil
}

func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}
