package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vgrebnev/teleassist/internal/access"
	"github.com/vgrebnev/teleassist/internal/assistant"
	"github.com/vgrebnev/teleassist/internal/chatdir"
	"github.com/vgrebnev/teleassist/internal/config"
	"github.com/vgrebnev/teleassist/internal/gateway"
	. "github.com/vgrebnev/teleassist/internal/logging"
	"github.com/vgrebnev/teleassist/internal/session"
	"github.com/vgrebnev/teleassist/internal/telegram"
	"github.com/vgrebnev/teleassist/internal/telemetry"
)

const version = "0.3.0"

var cli struct {
	Config  string           `help:"Path to config file." short:"c" type:"path"`
	Debug   bool             `help:"Enable debug logging."`
	Version kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("teleassist"),
		kong.Description("Telegram assistant bot backed by the OpenAI Assistants API."),
		kong.Vars{"version": version},
	)

	level := LevelInfo
	if cli.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, TimeFormat: "15:04:05"})

	L_info("teleassist %s starting", version)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		L_fatal("failed to load config: %v", err)
	}

	chats, err := chatdir.Open(cfg.ChatDir.Path)
	if err != nil {
		L_fatal("failed to open chat directory: %v", err)
	}
	defer chats.Close()

	client := assistant.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.AssistantID)
	cleaner := assistant.NewCleaner(cfg.Cleanup.RemoveChunksForFiles, cfg.Cleanup.RewriteMarkers)
	runner := assistant.NewRunner(client, cleaner, cfg.OpenAI.RunTimeout(), cfg.OpenAI.PollInterval())

	registry := session.NewRegistry(client)
	sweeper, err := session.NewSweeper(registry, cfg.Sessions.Lifetime(), cfg.Sessions.SweepInterval())
	if err != nil {
		L_fatal("failed to create eviction sweeper: %v", err)
	}

	bot, err := telegram.New(cfg.Telegram.BotToken)
	if err != nil {
		L_fatal("failed to connect to telegram: %v", err)
	}

	policy := access.Policy{
		BannedUsers:      config.ParseBanList(cfg.Access.BannedUsers),
		BannedChats:      config.ParseBanList(cfg.Access.BannedChats),
		AllowedChats:     allowedChatSet(cfg.Access.AllowedChats),
		AllowAllUsers:    cfg.Access.AllowAllUsers(),
		AllowedUsers:     allowedUserSet(cfg.Access.AllowedUsers),
		MaxMessageLength: cfg.Access.MaxMessageLength,
		RateLimitWindow:  cfg.Access.RateLimitWindow(),
	}
	limiter := access.NewRateLimiter(cfg.Access.RateLimitMessages, cfg.Access.RateLimitWindow())
	gate := access.NewGate(policy, limiter, bot.Identity())

	gw := gateway.New(gate, registry, runner, chats, telemetry.LogReporter{})

	// Any session surviving a restart would be out of sync; start clean.
	L_info("purging leftover sessions at startup")
	gw.PurgeAllSessions(context.Background())

	bot.Attach(gw, chats)
	sweeper.Start()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		L_info("shutting down")
		sweeper.Stop()
		bot.Stop()
	}()

	L_info("teleassist ready")
	bot.Start()

	L_info("teleassist stopped")
}

func allowedChatSet(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func allowedUserSet(users []string) map[string]bool {
	set := make(map[string]bool, len(users))
	for _, u := range users {
		if u != "" && u != "*" {
			set[u] = true
		}
	}
	return set
}
