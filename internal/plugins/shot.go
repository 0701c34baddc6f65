package plugins

import (
	"context"
	"strings"
	"time"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/onebot"
	"github.com/soyeahso/wirebot/internal/pipeline"
)

// Shot captures a page screenshot on /shot <url> and replies with the
// image inline.
func Shot(deps Deps) pipeline.Registration {
	log := deps.Log.Sub("shot")
	return pipeline.Registration{
		Name:    "shot",
		Enabled: func(cfg *config.Config) bool { return cfg.Browser.Enabled },
		Handle: func(ctx context.Context, pctx *pipeline.Context) (*pipeline.Context, error) {
			if pctx.Kind != pipeline.KindInbound || pctx.Event == nil {
				return pctx, nil
			}
			text := strings.TrimSpace(pctx.Event.PlainText())
			if text != "/shot" && !strings.HasPrefix(text, "/shot ") {
				return pctx, nil
			}
			url := strings.TrimSpace(strings.TrimPrefix(text, "/shot"))
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return nil, pctx.ReplyText(ctx, "usage: /shot <http(s) url>")
			}
			if deps.Browser == nil {
				return nil, pctx.ReplyText(ctx, "browser is not available")
			}
			cfg := deps.Settings.Current().Browser
			shotCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			data, err := deps.Browser.Screenshot(shotCtx, url, cfg.Width, cfg.Height)
			if err != nil {
				log.Warn().Err(err).Str("url", url).Msg("screenshot failed")
				return nil, pctx.ReplyText(ctx, "could not capture that page")
			}
			return nil, pctx.Reply(ctx, onebot.Image("base64://"+data))
		},
	}
}
