package api

import (
	"github.com/lysyi3m/meme-comb/app/feed"
	"github.com/lysyi3m/meme-comb/app/meme"
	"github.com/lysyi3m/meme-comb/app/source"
	"github.com/lysyi3m/meme-comb/app/tasks"
)

type GeneratorInterface interface {
	Run(items []meme.Item) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type StateReporter interface {
	State() tasks.State
}

var _ StateReporter = (*tasks.Acquirer)(nil)

type Handler struct {
	feed         *feed.Feed
	generator    GeneratorInterface
	configCache  *source.ConfigCache
	scheduler    tasks.TaskSchedulerInterface
	acquirer     StateReporter
	feedMaxItems int
	version      string
}
