package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teleassist.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `{
	"telegram": {"botToken": "123:abc"},
	"openai": {"apiKey": "sk-test", "assistantId": "asst_1"}
}`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.OpenAI.RunTimeout() != 120*time.Second {
		t.Fatalf("run timeout default: %v", cfg.OpenAI.RunTimeout())
	}
	if cfg.OpenAI.PollInterval() != 2*time.Second {
		t.Fatalf("poll interval default: %v", cfg.OpenAI.PollInterval())
	}
	if cfg.Access.RateLimitMessages != 10 || cfg.Access.RateLimitWindow() != time.Minute {
		t.Fatalf("rate limit defaults: %d per %v",
			cfg.Access.RateLimitMessages, cfg.Access.RateLimitWindow())
	}
	if cfg.Access.MaxMessageLength != 10000 {
		t.Fatalf("max length default: %d", cfg.Access.MaxMessageLength)
	}
	if cfg.Sessions.Lifetime() != 24*time.Hour {
		t.Fatalf("session lifetime default: %v", cfg.Sessions.Lifetime())
	}
	if cfg.Sessions.SweepInterval() != time.Hour {
		t.Fatalf("sweep interval default: %v", cfg.Sessions.SweepInterval())
	}
	if !cfg.Access.AllowAllUsers() {
		t.Fatal("empty allowedUsers should mean everyone")
	}
	if len(cfg.Cleanup.RemoveChunksForFiles) != 1 || !cfg.Cleanup.RewriteMarkers {
		t.Fatalf("cleanup defaults: %+v", cfg.Cleanup)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"telegram": {"botToken": "123:abc"},
		"openai": {"apiKey": "sk-test", "assistantId": "asst_1", "runTimeoutSeconds": 30},
		"access": {
			"allowedUsers": ["alice", "bob"],
			"allowedChats": [-100],
			"rateLimitMessages": 3,
			"rateLimitWindowSeconds": 10
		},
		"sessions": {"lifetimeHours": 1, "sweepIntervalMinutes": 5},
		"responseCleanup": {"removeChunksForFiles": ["*"]}
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.OpenAI.RunTimeout() != 30*time.Second {
		t.Fatalf("run timeout: %v", cfg.OpenAI.RunTimeout())
	}
	if cfg.Access.AllowAllUsers() {
		t.Fatal("explicit allow-list should not mean everyone")
	}
	if cfg.Access.RateLimitMessages != 3 || cfg.Access.RateLimitWindow() != 10*time.Second {
		t.Fatalf("rate limit: %d per %v", cfg.Access.RateLimitMessages, cfg.Access.RateLimitWindow())
	}
	if cfg.Sessions.Lifetime() != time.Hour || cfg.Sessions.SweepInterval() != 5*time.Minute {
		t.Fatalf("sessions: %v / %v", cfg.Sessions.Lifetime(), cfg.Sessions.SweepInterval())
	}
	if cfg.Cleanup.RewriteMarkers {
		t.Fatal("rewriteMarkers should stay false when cleanup is configured explicitly")
	}
}

func TestAllowAllUsersWildcard(t *testing.T) {
	c := AccessConfig{AllowedUsers: []string{"alice", "*"}}
	if !c.AllowAllUsers() {
		t.Fatal("wildcard entry should open the allow-list")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing token", `{"openai": {"apiKey": "k", "assistantId": "a"}}`, "botToken"},
		{"missing api key", `{"telegram": {"botToken": "t"}, "openai": {"assistantId": "a"}}`, "apiKey"},
		{"missing assistant", `{"telegram": {"botToken": "t"}, "openai": {"apiKey": "k"}}`, "assistantId"},
		{"bad json", `{`, "parse"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("explicit missing path must fail")
	}
}

func TestParseBanList(t *testing.T) {
	bans := ParseBanList([]string{
		"123:spamming",
		"456:multi\\nline reason",
		" 789 : spaced ",
		"",
		"no-colon-entry",
		"abc:bad id",
	})

	if len(bans) != 3 {
		t.Fatalf("expected 3 valid entries, got %d: %v", len(bans), bans)
	}
	if bans[123] != "spamming" {
		t.Fatalf("bans[123] = %q", bans[123])
	}
	if bans[456] != "multi\nline reason" {
		t.Fatalf("bans[456] = %q", bans[456])
	}
	if bans[789] != "spaced" {
		t.Fatalf("bans[789] = %q", bans[789])
	}
}
