package tasks

import (
	"context"

	"github.com/lysyi3m/meme-comb/app/classifier"
	"github.com/lysyi3m/meme-comb/app/meme"
	"github.com/lysyi3m/meme-comb/app/source"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the HTTP API to queue background work.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	TriggerRefresh(trigger string) (string, error)
	TriggerRefilter(trigger string) (string, error)
}

// SourceProvider lists the sources a cycle may fetch from.
type SourceProvider interface {
	GetEnabledConfigs() []*source.Config
}

type Screener interface {
	Screen(ctx context.Context, item meme.Item) classifier.Verdict
	CatalogVersion() string
}

// SeenRegistry is the dedup side of the blocklist store.
type SeenRegistry interface {
	SeenSignature(signature string) bool
	MarkSeen(signature string)
	Save(ctx context.Context) error
}
