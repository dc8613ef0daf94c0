// Package config holds all xagent configuration: the generation backend, the
// browser session, automation behavior, and targeting rules. Settings live in a
// YAML file and may change while the agent is running; consumers subscribe to
// change notifications through Watcher rather than re-reading the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinActionDelaySeconds is the floor enforced on the bulk action delay. The
// settings surface is untrusted input; anything below this is clamped up.
const MinActionDelaySeconds = 5

// Config holds all agent configuration.
type Config struct {
	// Generation backend
	LLM LLMConfig `yaml:"llm"`

	// Browser session
	Browser BrowserConfig `yaml:"browser"`

	// Reply behavior toggles and persona settings
	Automation AutomationConfig `yaml:"automation"`

	// Author targeting rules
	Targeting TargetingConfig `yaml:"targeting"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation backend and its pacing.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`

	// Outbound pacing: minimum spacing between requests and a hard cap per
	// rolling 60-second window.
	MinSpacing   string `yaml:"min_spacing"`
	MaxPerMinute int    `yaml:"max_per_minute"`
}

// BrowserConfig configures the rod browser session.
type BrowserConfig struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	FeedURL             string   `yaml:"feed_url"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
	SessionStore        string   `yaml:"session_store"`
	EventPollMs         int      `yaml:"event_poll_ms"`
}

// AutomationConfig mirrors the reply-behavior settings surface.
type AutomationConfig struct {
	Language            string `yaml:"language"` // "Auto" replies in the item's language
	Persona             string `yaml:"persona"`  // Degen, Analyst, Maxi, Builder, Roast, Custom, Neutral
	CustomPersonaPrompt string `yaml:"custom_persona_prompt"`
	UserMemory          string `yaml:"user_memory"`
	WritingStyle        string `yaml:"writing_style"`
	ReplyLength         string `yaml:"reply_length"` // short, medium, long
	Tone                string `yaml:"tone"`

	AutoReply      bool `yaml:"auto_reply"`   // auto-reply to reply notifications
	AutoComment    bool `yaml:"auto_comment"` // reply to new feed items
	AutoLike       bool `yaml:"auto_like"`    // like the item before replying
	IncludeMention bool `yaml:"include_mention"`

	ActionDelaySeconds int `yaml:"action_delay_seconds"`
}

// TargetingConfig holds the author-targeting rules. Blacklist and whitelist are
// comma-separated handle lists; handles compare case-insensitively with any
// leading at-sign ignored.
type TargetingConfig struct {
	MinFollowers  uint   `yaml:"min_followers"`
	MaxFollowers  uint   `yaml:"max_followers"` // 0 = unbounded
	NicheKeywords string `yaml:"niche_keywords"`
	Blacklist     string `yaml:"blacklist"`
	Whitelist     string `yaml:"whitelist"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	// LegacyStatePath optionally points at a pre-Go state export (a JSON array
	// of replied authors). Imported once at startup when present.
	LegacyStatePath string `yaml:"legacy_state_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:        "gemini-2.0-flash",
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
			Timeout:      "60s",
			MinSpacing:   "1500ms",
			MaxPerMinute: 10,
		},
		Browser: BrowserConfig{
			Headless:            false,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			FeedURL:             "https://x.com/home",
			NavigationTimeoutMs: 30000,
			EventPollMs:         500,
		},
		Automation: AutomationConfig{
			Language:           "Auto",
			Persona:            "Neutral",
			ReplyLength:        "medium",
			Tone:               "Neutral",
			AutoComment:        true,
			ActionDelaySeconds: 10,
		},
		Store: StoreConfig{
			DatabasePath: "data/xagent.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.normalize()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("XAGENT_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if path := os.Getenv("XAGENT_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// normalize clamps untrusted numeric settings into their valid ranges.
func (c *Config) normalize() {
	if c.Automation.ActionDelaySeconds < MinActionDelaySeconds {
		c.Automation.ActionDelaySeconds = MinActionDelaySeconds
	}
	if c.LLM.MaxPerMinute <= 0 {
		c.LLM.MaxPerMinute = 10
	}
	if c.Browser.EventPollMs <= 0 {
		c.Browser.EventPollMs = 500
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("generation API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}
	if c.Browser.FeedURL == "" {
		return fmt.Errorf("browser.feed_url must not be empty")
	}
	return nil
}

// GetLLMTimeout returns the backend request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetMinSpacing returns the minimum spacing between generation requests.
func (c *Config) GetMinSpacing() time.Duration {
	d, err := time.ParseDuration(c.LLM.MinSpacing)
	if err != nil {
		return 1500 * time.Millisecond
	}
	return d
}

// NavigationTimeout returns the page navigation timeout.
func (c *Config) NavigationTimeout() time.Duration {
	if c.Browser.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Browser.NavigationTimeoutMs) * time.Millisecond
}

// ActionDelay returns the per-item delay for bulk processing, clamped to the
// configured floor.
func (c *Config) ActionDelay() time.Duration {
	secs := c.Automation.ActionDelaySeconds
	if secs < MinActionDelaySeconds {
		secs = MinActionDelaySeconds
	}
	return time.Duration(secs) * time.Second
}

// SplitHandleList splits a comma-separated handle list into normalized handles
// (lower-cased, at-sign stripped, blanks dropped).
func SplitHandleList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "@"))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// NormalizeHandle lower-cases a handle and strips a leading at-sign.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}
