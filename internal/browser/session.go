// Package browser drives a live Chromium page with rod: session lifecycle,
// feed observation, freshness ticks, and the UI primitives the reply
// sequence needs.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"xagent/internal/config"
	"xagent/internal/logging"
)

// sessionMeta is written to the configured session store directory so an
// operator can see which browser a run was attached to.
type sessionMeta struct {
	ID         string    `json:"id"`
	ControlURL string    `json:"control_url"`
	Launched   bool      `json:"launched"`
	StartedAt  time.Time `json:"started_at"`
}

// ErrNotConnected is returned by page operations before Connect succeeds.
var ErrNotConnected = errors.New("browser session not connected")

// Session owns the browser connection and the single page the agent works
// in.
type Session struct {
	conf    func() *config.Config
	browser *rod.Browser
	page    *rod.Page
}

// NewSession builds an unconnected session.
func NewSession(conf func() *config.Config) *Session {
	return &Session{conf: conf}
}

// Connect attaches to a running browser when a debugger URL is configured,
// or launches a new one otherwise, then opens the feed page.
func (s *Session) Connect(ctx context.Context) error {
	cfg := s.conf()
	log := logging.Get(logging.CategoryBrowser)

	controlURL := cfg.Browser.DebuggerURL
	if controlURL != "" {
		resolved, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return fmt.Errorf("resolve debugger url: %w", err)
		}
		controlURL = resolved
		log.Infow("attaching to running browser", "url", cfg.Browser.DebuggerURL)
	} else {
		l := launcher.New().Headless(cfg.Browser.Headless)
		for _, flag := range cfg.Browser.Launch {
			name, value := splitFlag(flag)
			if value == "" {
				l = l.Set(flags.Flag(name))
			} else {
				l = l.Set(flags.Flag(name), value)
			}
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
		log.Infow("launched browser", "headless", cfg.Browser.Headless)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	s.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if cfg.Browser.ViewportWidth > 0 && cfg.Browser.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.Browser.ViewportWidth,
			Height:            cfg.Browser.ViewportHeight,
			DeviceScaleFactor: 1,
		}).Call(page); err != nil {
			log.Debugw("viewport override failed", "error", err)
		}
	}
	s.page = page

	if cfg.Browser.SessionStore != "" {
		meta := sessionMeta{
			ID:         uuid.NewString(),
			ControlURL: controlURL,
			Launched:   cfg.Browser.DebuggerURL == "",
			StartedAt:  time.Now(),
		}
		if err := writeSessionMeta(cfg.Browser.SessionStore, meta); err != nil {
			log.Debugw("session metadata not persisted", "error", err)
		}
	}
	return nil
}

func writeSessionMeta(dir string, meta sessionMeta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, meta.ID+".json"), data, 0o644)
}

// Navigate opens url in the session page and waits for it to load.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.page == nil {
		return ErrNotConnected
	}
	cfg := s.conf()
	page := s.page.Context(ctx).Timeout(cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	logging.Get(logging.CategoryBrowser).Infow("navigated", "url", url)
	return nil
}

// OpenFeed navigates to the configured feed URL.
func (s *Session) OpenFeed(ctx context.Context) error {
	return s.Navigate(ctx, s.conf().Browser.FeedURL)
}

// Page returns the session page.
func (s *Session) Page() *rod.Page { return s.page }

// HTML returns the current serialized page content.
func (s *Session) HTML(ctx context.Context) (string, error) {
	if s.page == nil {
		return "", ErrNotConnected
	}
	return s.page.Context(ctx).HTML()
}

// Close shuts the page and, when this process launched it, the browser.
func (s *Session) Close() error {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

// splitFlag parses "--name=value" or "name=value" launcher flags.
func splitFlag(flag string) (name, value string) {
	flag = strings.TrimLeft(flag, "-")
	if i := strings.IndexByte(flag, '='); i >= 0 {
		return flag[:i], flag[i+1:]
	}
	return flag, ""
}
