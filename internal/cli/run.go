package cli

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/wirebot/internal/api"
	"github.com/soyeahso/wirebot/internal/browser"
	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/correlate"
	"github.com/soyeahso/wirebot/internal/logging"
	"github.com/soyeahso/wirebot/internal/onebot"
	"github.com/soyeahso/wirebot/internal/pipeline"
	"github.com/soyeahso/wirebot/internal/plugins"
	"github.com/soyeahso/wirebot/internal/schedule"
	"github.com/soyeahso/wirebot/internal/store"
	"github.com/soyeahso/wirebot/internal/upstream"
)

func newRunCmd() *cobra.Command {
	var (
		upstreamURL string
		noBrowser   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the platform and serve the plugin chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if upstreamURL != "" {
				cfg.Upstream.URL = upstreamURL
			}
			if noBrowser {
				cfg.Browser.Enabled = false
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// The flag wins; otherwise the config decides the level.
			if logLevel == "" && cfg.Logging.Level != "" {
				log = logging.New(nil, cfg.Logging.Level)
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating directories: %w", err)
			}

			db, err := store.Open(paths.DatabasePath(&cfg), log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			settings := config.NewSettings(paths.Config, cfg)
			corr := correlate.New(log.Sub("correlate"))
			sched := schedule.New(log.Sub("schedule"))
			defer sched.Stop()

			mgr := upstream.New(settings, corr, log)
			apic := api.New(mgr, corr, cfg.Upstream.CallTimeout(), log)
			pipe := pipeline.New(settings, mgr, log)

			deps := plugins.Deps{
				Settings: settings,
				DB:       db,
				Messages: store.NewMessageStore(db),
				Sched:    sched,
				API:      apic,
				Status:   func() string { return statusLine(mgr) },
				Statuses: pipe.Statuses,
				Log:      log,
			}

			if days := cfg.Storage.RetentionDays; days > 0 {
				messages := deps.Messages
				sched.AddDailyAt("prune-messages", 4, 30, 0, func(context.Context) {
					cutoff := time.Now().AddDate(0, 0, -days)
					n, err := messages.PruneBefore(cutoff)
					if err != nil {
						log.Warn().Err(err).Msg("message prune failed")
					} else if n > 0 {
						log.Info().Int64("rows", n).Int("days", days).Msg("pruned archived messages")
					}
				})
			}

			stopBrowser := func() {}
			if cfg.Browser.Enabled {
				actor, cleanup, err := browser.Launch(ctx, cfg.Browser, log)
				if err != nil {
					// The chain degrades to "browser unavailable" replies.
					log.Warn().Err(err).Msg("browser launch failed")
				} else {
					var once sync.Once
					stopBrowser = func() { once.Do(cleanup) }
					defer stopBrowser()
					deps.Browser = actor
				}
			}

			if err := plugins.RegisterAll(pipe, deps); err != nil {
				return fmt.Errorf("registering plugins: %w", err)
			}
			pipe.InitAll(ctx)

			mgr.OnEvent(func(ctx context.Context, ev *onebot.Event) {
				pipe.HandleEvent(ctx, ev)
			})

			log.Info().Str("url", cfg.Upstream.URL).Msg("wirebot starting")

			err = superviseDaemon(ctx, mgr.Run, sched.Stop, stopBrowser)
			if ctx.Err() != nil {
				log.Info().Msg("wirebot shutting down")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&upstreamURL, "url", "", "override the upstream websocket url")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "disable the headless browser even if configured")

	return cmd
}

func statusLine(mgr *upstream.Manager) string {
	line := "upstream: " + mgr.State().String()
	if id := mgr.Identity(); id != nil {
		line += fmt.Sprintf(", logged in as %s (%d)", id.Nickname, id.UserID)
	}
	return line
}

// superviseDaemon runs the daemon loop with the component stop hooks
// tied to it: whatever ends the loop, every hook has fired by the time
// Wait unblocks. The runner's exit cancels runCtx even on a nil return,
// so the stop members can never be left waiting.
func superviseDaemon(ctx context.Context, run func(context.Context) error, stops ...func()) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group errgroup.Group
	group.Go(func() error {
		defer cancel()
		return run(runCtx)
	})
	for _, stop := range stops {
		group.Go(func() error {
			<-runCtx.Done()
			stop()
			return nil
		})
	}
	return group.Wait()
}
