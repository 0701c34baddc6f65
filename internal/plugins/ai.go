package plugins

import (
	"context"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/pipeline"
)

// AI forwards /ai prompts to the configured model and replies with the
// output text. Without an API key the chain skips the plugin entirely.
// The client follows config edits: a new key or endpoint takes effect on
// the next prompt, no restart needed.
func AI(deps Deps) pipeline.Registration {
	log := deps.Log.Sub("ai")
	var (
		mu       sync.Mutex
		client   openai.Client
		builtFor config.AIConfig
		built    bool
	)
	clientFor := func(cfg config.AIConfig) openai.Client {
		mu.Lock()
		defer mu.Unlock()
		if !built || cfg != builtFor {
			opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
			if cfg.BaseURL != "" {
				opts = append(opts, option.WithBaseURL(cfg.BaseURL))
			}
			client = openai.NewClient(opts...)
			builtFor = cfg
			built = true
		}
		return client
	}
	return pipeline.Registration{
		Name:    "ai",
		Enabled: func(cfg *config.Config) bool { return cfg.Plugins.AI.APIKey != "" },
		Handle: func(ctx context.Context, pctx *pipeline.Context) (*pipeline.Context, error) {
			if pctx.Kind != pipeline.KindInbound || pctx.Event == nil {
				return pctx, nil
			}
			text := strings.TrimSpace(pctx.Event.PlainText())
			if text != "/ai" && !strings.HasPrefix(text, "/ai ") {
				return pctx, nil
			}
			prompt := strings.TrimSpace(strings.TrimPrefix(text, "/ai"))
			if prompt == "" {
				return nil, pctx.ReplyText(ctx, "usage: /ai <prompt>")
			}
			cfg := deps.Settings.Current().Plugins.AI
			cli := clientFor(cfg)
			resp, err := cli.Responses.New(ctx, responses.ResponseNewParams{
				Model: cfg.Model,
				Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
			})
			if err != nil {
				log.Warn().Err(err).Msg("model call failed")
				return nil, pctx.ReplyText(ctx, "the model is unavailable right now")
			}
			answer := strings.TrimSpace(resp.OutputText())
			if answer == "" {
				answer = "the model returned nothing"
			}
			return nil, pctx.ReplyText(ctx, answer)
		},
	}
}
