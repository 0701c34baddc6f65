package plugins

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/soyeahso/wirebot/internal/onebot"
	"github.com/soyeahso/wirebot/internal/pipeline"
)

// WordFilter screens outbound messages: a blocked word vetoes the whole
// frame, redacted words are masked in place. Both match regardless of
// case. Inbound traffic passes untouched.
func WordFilter(deps Deps) pipeline.Registration {
	log := deps.Log.Sub("wordfilter")
	var (
		mu       sync.Mutex
		redactRe *regexp.Regexp
		builtFor string
	)
	redactPattern := func(words []string) *regexp.Regexp {
		quoted := make([]string, 0, len(words))
		for _, w := range words {
			if w != "" {
				quoted = append(quoted, regexp.QuoteMeta(w))
			}
		}
		if len(quoted) == 0 {
			return nil
		}
		key := strings.Join(quoted, "|")
		mu.Lock()
		defer mu.Unlock()
		if redactRe == nil || key != builtFor {
			redactRe = regexp.MustCompile("(?i)(" + key + ")")
			builtFor = key
		}
		return redactRe
	}
	return pipeline.Registration{
		Name: "wordfilter",
		Handle: func(ctx context.Context, pctx *pipeline.Context) (*pipeline.Context, error) {
			if pctx.Kind != pipeline.KindOutbound || pctx.Outbound == nil {
				return pctx, nil
			}
			segs, ok := pctx.Outbound.Params["message"].([]onebot.Segment)
			if !ok {
				return pctx, nil
			}
			cfg := deps.Settings.Current().Plugins.Filter
			text := strings.ToLower(onebot.PlainText(segs))
			for _, word := range cfg.Block {
				if word != "" && strings.Contains(text, strings.ToLower(word)) {
					log.Info().Str("action", pctx.Outbound.Action).Msg("outbound frame blocked")
					return nil, nil
				}
			}
			re := redactPattern(cfg.Redact)
			if re == nil {
				return pctx, nil
			}
			clean := make([]onebot.Segment, len(segs))
			copy(clean, segs)
			changed := false
			for i, seg := range clean {
				if seg.Type != "text" {
					continue
				}
				t := seg.TextContent()
				masked := re.ReplaceAllStringFunc(t, func(m string) string {
					return strings.Repeat("*", len([]rune(m)))
				})
				if masked != t {
					clean[i] = onebot.Text(masked)
					changed = true
				}
			}
			if changed {
				pctx.Outbound.Params["message"] = clean
			}
			return pctx, nil
		},
	}
}
