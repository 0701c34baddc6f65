// Package plugins holds the built-in plugin chain.
package plugins

import (
	"github.com/soyeahso/wirebot/internal/api"
	"github.com/soyeahso/wirebot/internal/browser"
	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/logging"
	"github.com/soyeahso/wirebot/internal/pipeline"
	"github.com/soyeahso/wirebot/internal/schedule"
	"github.com/soyeahso/wirebot/internal/store"
)

// Deps carries the shared services plugins close over. Browser is nil
// when the browser integration is disabled, and Status and Statuses may
// be nil in tests. Pipe is filled by RegisterAll.
type Deps struct {
	Settings *config.Settings
	DB       *store.DB
	Messages *store.MessageStore
	Sched    *schedule.Scheduler
	API      *api.Client
	Browser  *browser.Actor
	Pipe     *pipeline.Pipeline
	Status   func() string
	Statuses func() []pipeline.PluginStatus
	Log      *logging.Logger
}

// RegisterAll wires the built-in plugins in chain order. Dedupe runs
// first so replayed frames die before anything persists or replies.
func RegisterAll(p *pipeline.Pipeline, deps Deps) error {
	deps.Pipe = p
	for _, reg := range []pipeline.Registration{
		Dedupe(deps),
		Stats(deps),
		Admin(deps),
		Guess(deps),
		Shot(deps),
		AI(deps),
		WordFilter(deps),
		DailyReport(deps),
	} {
		if err := p.Register(reg); err != nil {
			return err
		}
	}
	return nil
}
