package cli

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/onebot"
	"github.com/soyeahso/wirebot/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show wirebot configuration and upstream reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.Info())
			fmt.Println()

			fmt.Printf("Config:  %s", paths.Config)
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Print(" (not found, using defaults)")
			}
			fmt.Println()
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config load failed: %v\n", err)
				return nil
			}

			token := "none"
			if cfg.Upstream.Token != "" {
				token = "set"
			}
			rate := fmt.Sprintf("%g/s", cfg.Upstream.SendPerSecond)
			if cfg.Upstream.SendPerSecond == 0 {
				rate = "unlimited"
			}
			fmt.Printf("Upstream: url=%s token=%s reconnect=%s rate=%s\n",
				cfg.Upstream.URL, token, cfg.Upstream.ReconnectDelay(), rate)

			if cfg.Browser.Enabled {
				target := cfg.Browser.ChromePath
				if cfg.Browser.DevToolsURL != "" {
					target = cfg.Browser.DevToolsURL
				}
				if target == "" {
					target = "chromium from PATH"
				}
				fmt.Printf("Browser:  %s (%dx%d)\n", target, cfg.Browser.Width, cfg.Browser.Height)
			} else {
				fmt.Println("Browser:  disabled")
			}

			fmt.Printf("Push:     daily at %02d:%02d allow=%d block=%d\n",
				cfg.Push.Hour, cfg.Push.Minute, len(cfg.Push.AllowGroups), len(cfg.Push.BlockGroups))
			fmt.Printf("Storage:  %s\n", paths.DatabasePath(&cfg))

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			fmt.Println()
			probeUpstream(cfg.Upstream)
			return nil
		},
	}

	return cmd
}

// probeUpstream dials the endpoint once and asks who is logged in. Best
// effort: any failure is reported, never returned.
func probeUpstream(cfg config.UpstreamConfig) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, resp, err := dialer.Dial(cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		fmt.Printf("Upstream: unreachable (%v)\n", err)
		return
	}
	defer conn.Close()
	fmt.Println("Upstream: reachable")

	const echo = "status-probe"
	req := onebot.NewRequest("get_login_info", nil).WithEcho(echo)
	if err := conn.WriteJSON(req); err != nil {
		fmt.Printf("Identity: probe not sent (%v)\n", err)
		return
	}

	// Ordinary events may arrive interleaved with the reply.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("Identity: no answer (%v)\n", err)
			return
		}
		ev, err := onebot.DecodeEvent(data)
		if err != nil || ev.Echo != echo {
			continue
		}
		var id struct {
			UserID   int64  `json:"user_id"`
			Nickname string `json:"nickname"`
		}
		if err := ev.DecodeData(&id); err != nil {
			fmt.Printf("Identity: malformed reply (%v)\n", err)
			return
		}
		fmt.Printf("Identity: %s (%d)\n", id.Nickname, id.UserID)
		return
	}
}
