// Package config provides configuration loading for teleassist.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vgrebnev/teleassist/internal/logging"
)

// Config represents the merged teleassist configuration
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	OpenAI   OpenAIConfig   `json:"openai"`
	Access   AccessConfig   `json:"access"`
	Sessions SessionsConfig `json:"sessions"`
	Cleanup  CleanupConfig  `json:"responseCleanup"`
	ChatDir  ChatDirConfig  `json:"chatDirectory"`
}

type TelegramConfig struct {
	BotToken string `json:"botToken"`
}

type OpenAIConfig struct {
	APIKey              string `json:"apiKey"`
	AssistantID         string `json:"assistantId"`
	RunTimeoutSeconds   int    `json:"runTimeoutSeconds"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
}

// AccessConfig holds message admission settings. Ban entries use the
// "id:reason" format; the reason may contain "\n" escapes for multi-line text.
type AccessConfig struct {
	// AllowedUsers lists usernames permitted to talk to the bot.
	// Empty or containing "*" means everyone.
	AllowedUsers []string `json:"allowedUsers"`
	// AllowedChats lists group chat IDs the bot is enabled in.
	// Empty means every chat.
	AllowedChats []int64 `json:"allowedChats"`

	BannedUsers []string `json:"bannedUsers"`
	BannedChats []string `json:"bannedChats"`

	RateLimitMessages      int `json:"rateLimitMessages"`
	RateLimitWindowSeconds int `json:"rateLimitWindowSeconds"`
	MaxMessageLength       int `json:"maxMessageLength"`
}

type SessionsConfig struct {
	LifetimeHours        int `json:"lifetimeHours"`
	SweepIntervalMinutes int `json:"sweepIntervalMinutes"`
}

// CleanupConfig controls stripping of retrieval-chunk markers from
// assistant responses.
type CleanupConfig struct {
	// RemoveChunksForFiles lists source files whose chunk markers are
	// removed entirely. "*" removes all markers.
	RemoveChunksForFiles []string `json:"removeChunksForFiles"`
	// RewriteMarkers replaces remaining markers with "(filename)".
	RewriteMarkers bool `json:"rewriteMarkers"`
}

type ChatDirConfig struct {
	Path string `json:"path"`
}

// Defaults mirror the limits the bot shipped with.
const (
	DefaultRunTimeoutSeconds    = 120
	DefaultPollIntervalSeconds  = 2
	DefaultRateLimitMessages    = 10
	DefaultRateLimitWindowSecs  = 60
	DefaultMaxMessageLength     = 10000
	DefaultLifetimeHours        = 24
	DefaultSweepIntervalMinutes = 60
)

// Load reads configuration from path. When path is empty the usual search
// locations are tried: ./teleassist.json, then ~/.teleassist/teleassist.json.
func Load(path string) (*Config, error) {
	paths := []string{path}
	if path == "" {
		home, _ := os.UserHomeDir()
		paths = []string{
			"teleassist.json",
			filepath.Join(home, ".teleassist", "teleassist.json"),
		}
	}

	var data []byte
	var loadedFrom string
	for _, p := range paths {
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) && path == "" {
				continue
			}
			return nil, fmt.Errorf("failed to read config %s: %w", p, err)
		}
		data = b
		loadedFrom, _ = filepath.Abs(p)
		break
	}

	if data == nil {
		return nil, fmt.Errorf("no config file found (tried %v)", paths)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", loadedFrom, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logging.L_info("config: loaded", "path", loadedFrom)
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OpenAI.RunTimeoutSeconds <= 0 {
		c.OpenAI.RunTimeoutSeconds = DefaultRunTimeoutSeconds
	}
	if c.OpenAI.PollIntervalSeconds <= 0 {
		c.OpenAI.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Access.RateLimitMessages <= 0 {
		c.Access.RateLimitMessages = DefaultRateLimitMessages
	}
	if c.Access.RateLimitWindowSeconds <= 0 {
		c.Access.RateLimitWindowSeconds = DefaultRateLimitWindowSecs
	}
	if c.Access.MaxMessageLength <= 0 {
		c.Access.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.Sessions.LifetimeHours <= 0 {
		c.Sessions.LifetimeHours = DefaultLifetimeHours
	}
	if c.Sessions.SweepIntervalMinutes <= 0 {
		c.Sessions.SweepIntervalMinutes = DefaultSweepIntervalMinutes
	}
	if c.ChatDir.Path == "" {
		c.ChatDir.Path = "data/chats.db"
	}
	if c.Cleanup.RemoveChunksForFiles == nil {
		c.Cleanup.RemoveChunksForFiles = []string{"links.txt"}
		c.Cleanup.RewriteMarkers = true
	}
}

func (c *Config) validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.botToken is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.apiKey is required")
	}
	if c.OpenAI.AssistantID == "" {
		return fmt.Errorf("openai.assistantId is required")
	}
	return nil
}

func (c *OpenAIConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

func (c *OpenAIConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *AccessConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c *SessionsConfig) Lifetime() time.Duration {
	return time.Duration(c.LifetimeHours) * time.Hour
}

func (c *SessionsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// AllowAllUsers reports whether the username allow-list is open.
func (c *AccessConfig) AllowAllUsers() bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, u := range c.AllowedUsers {
		if u == "*" {
			return true
		}
	}
	return false
}
