package browser

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/logging"
)

const (
	devtoolsBanner = "DevTools listening on "
	launchTimeout  = 30 * time.Second
)

// Launch connects an Actor to a browser. With devtoolsUrl configured it
// attaches to a running instance; otherwise it starts a headless child
// process and reads the devtools endpoint off its stderr. The returned
// cleanup stops the actor and, for a child process, reaps it.
func Launch(ctx context.Context, cfg config.BrowserConfig, log *logging.Logger) (*Actor, func(), error) {
	if cfg.DevToolsURL != "" {
		conn, err := dialDevtools(ctx, cfg.DevToolsURL)
		if err != nil {
			return nil, nil, err
		}
		a := NewActor(conn, log)
		return a, a.Shutdown, nil
	}

	path := cfg.ChromePath
	if path == "" {
		path = "chromium"
	}
	cmd := exec.CommandContext(ctx, path,
		"--headless=new",
		"--disable-gpu",
		"--no-first-run",
		"--remote-debugging-port=0",
		"about:blank",
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("piping stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting %s: %w", path, err)
	}

	url, err := waitForBanner(ctx, stderr)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, nil, err
	}
	log.Sub("browser").Info().Str("url", url).Msg("devtools ready")

	conn, err := dialDevtools(ctx, url)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, nil, err
	}
	a := NewActor(conn, log)
	cleanup := func() {
		a.Shutdown()
		cmd.Process.Kill()
		cmd.Wait()
	}
	return a, cleanup, nil
}

func waitForBanner(ctx context.Context, r io.Reader) (string, error) {
	type scanned struct {
		url string
		err error
	}
	found := make(chan scanned, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if rest, ok := strings.CutPrefix(scanner.Text(), devtoolsBanner); ok {
				found <- scanned{url: strings.TrimSpace(rest)}
				return
			}
		}
		found <- scanned{err: errors.New("browser: process exited before announcing devtools")}
	}()
	select {
	case res := <-found:
		return res.url, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(launchTimeout):
		return "", errors.New("browser: timed out waiting for devtools banner")
	}
}

func dialDevtools(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dialing devtools %s: %w", url, err)
	}
	return conn, nil
}

// Screenshot opens a fresh tab, loads url, and captures the page as a
// base64-encoded PNG. The tab is closed afterwards.
func (a *Actor) Screenshot(ctx context.Context, url string, width, height int) (string, error) {
	raw, err := a.Call(ctx, "Target.createTarget", map[string]any{"url": "about:blank"})
	if err != nil {
		return "", fmt.Errorf("creating target: %w", err)
	}
	var created struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("decoding target id: %w", err)
	}
	defer a.Call(ctx, "Target.closeTarget", map[string]any{"targetId": created.TargetID})

	raw, err = a.Call(ctx, "Target.attachToTarget", map[string]any{"targetId": created.TargetID})
	if err != nil {
		return "", fmt.Errorf("attaching: %w", err)
	}
	var attached struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &attached); err != nil {
		return "", fmt.Errorf("decoding session id: %w", err)
	}
	session := attached.SessionID

	if _, err := a.CallSession(ctx, session, "Page.enable", nil); err != nil {
		return "", fmt.Errorf("enabling page events: %w", err)
	}
	if _, err := a.CallSession(ctx, session, "Emulation.setDeviceMetricsOverride", map[string]any{
		"width":             width,
		"height":            height,
		"deviceScaleFactor": 1,
		"mobile":            false,
	}); err != nil {
		return "", fmt.Errorf("setting viewport: %w", err)
	}

	// Register for the load event before navigating; a fast page can
	// fire it before the navigate reply comes back.
	loaded, err := a.WaitForEvent(session, "Page.loadEventFired")
	if err != nil {
		return "", err
	}
	if _, err := a.CallSession(ctx, session, "Page.navigate", map[string]any{"url": url}); err != nil {
		return "", fmt.Errorf("navigating: %w", err)
	}
	if _, err := loaded.Await(ctx); err != nil {
		return "", fmt.Errorf("waiting for load: %w", err)
	}

	raw, err = a.CallSession(ctx, session, "Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return "", fmt.Errorf("capturing: %w", err)
	}
	var shot struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &shot); err != nil {
		return "", fmt.Errorf("decoding screenshot: %w", err)
	}
	return shot.Data, nil
}
