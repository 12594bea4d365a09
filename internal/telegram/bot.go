// Package telegram provides the Telegram transport adapter for teleassist.
package telegram

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/vgrebnev/teleassist/internal/chatdir"
	"github.com/vgrebnev/teleassist/internal/gateway"
	. "github.com/vgrebnev/teleassist/internal/logging"
	"github.com/vgrebnev/teleassist/internal/types"
)

// Bot wraps the telebot long-poller and maps Telegram updates onto the
// gateway's transport-agnostic message handling.
type Bot struct {
	bot     *tele.Bot
	gateway *gateway.Gateway
	chats   *chatdir.Store

	ctx    context.Context
	cancel context.CancelFunc
}

// New connects to the Telegram Bot API and resolves the bot's identity.
// Handlers are not registered until Attach is called.
func New(token string) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	L_info("telegram: connected",
		"bot", "@"+bot.Me.Username,
		"name", bot.Me.FirstName,
		"id", bot.Me.ID,
	)

	ctx, cancel := context.WithCancel(context.Background())

	return &Bot{
		bot:    bot,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Identity returns the bot's own resolved identity, needed by the
// admission gate for mention and reply detection.
func (b *Bot) Identity() types.BotIdentity {
	return types.BotIdentity{
		ID:       b.bot.Me.ID,
		Username: b.bot.Me.Username,
	}
}

// Attach wires the gateway and chat directory and registers the message
// and command handlers. chats may be nil; /chatinfo then omits history.
func (b *Bot) Attach(gw *gateway.Gateway, chats *chatdir.Store) {
	b.gateway = gw
	b.chats = chats

	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle("/start", func(c tele.Context) error {
		return c.Send("Hello! Send me a message and I'll answer.")
	})
	b.bot.Handle("/reset", b.handleReset)
	b.bot.Handle("/chatinfo", b.handleChatInfo)

	L_debug("telegram: handlers registered")
}

// Start begins long polling. It blocks until Stop is called.
func (b *Bot) Start() {
	b.bot.Start()
}

// Stop halts polling and cancels in-flight handler contexts.
func (b *Bot) Stop() {
	b.cancel()
	b.bot.Stop()
}

func (b *Bot) handleText(c tele.Context) error {
	msg := inboundFromContext(c)
	if msg == nil {
		return nil
	}

	L_debug("telegram: message received",
		"chatID", msg.ChatID, "userID", msg.UserID, "kind", msg.ChatKind)

	b.gateway.HandleMessage(b.ctx, msg, &responder{c: c})
	return nil
}

func (b *Bot) handleReset(c tele.Context) error {
	if c.Chat() == nil || c.Sender() == nil {
		return nil
	}

	if b.gateway.ResetSession(b.ctx, c.Chat().ID, c.Sender().ID) {
		return c.Reply("✅ Conversation history cleared.")
	}
	return c.Reply("ℹ️ You have no active conversation.")
}

func (b *Bot) handleChatInfo(c tele.Context) error {
	chat := c.Chat()
	sender := c.Sender()
	if chat == nil || sender == nil {
		return nil
	}

	title := chat.Title
	if title == "" {
		title = "Private chat"
	}
	username := sender.Username
	if username == "" {
		username = "none"
	}

	info := fmt.Sprintf(
		"📝 Chat info:\nChat ID: %d\nChat type: %s\nTitle: %s\n\n"+
			"👤 User info:\nUser ID: %d\nUsername: @%s",
		chat.ID, chat.Type, title, sender.ID, username,
	)

	if b.chats != nil {
		rec, err := b.chats.Get(chat.ID)
		if err != nil {
			L_warn("telegram: chat directory lookup failed", "chatID", chat.ID, "error", err)
		} else if rec != nil {
			info += fmt.Sprintf("\n\n🕐 First seen: %s\nLast seen: %s",
				rec.FirstSeen.Format("2006-01-02 15:04"),
				rec.LastSeen.Format("2006-01-02 15:04"))
		}
	}

	return c.Reply(info)
}

// inboundFromContext maps a telebot update to the gateway message type.
// Updates missing a chat or sender are dropped here; the gate would only
// drop them again.
func inboundFromContext(c tele.Context) *types.Inbound {
	chat := c.Chat()
	sender := c.Sender()
	m := c.Message()
	if chat == nil || sender == nil || m == nil {
		L_warn("telegram: update without chat, sender or message")
		return nil
	}

	msg := &types.Inbound{
		ChatID:    chat.ID,
		UserID:    sender.ID,
		Username:  sender.Username,
		Text:      m.Text,
		ChatKind:  chatKind(chat.Type),
		ChatTitle: chat.Title,
	}

	if m.ReplyTo != nil && m.ReplyTo.Sender != nil {
		msg.IsReply = true
		msg.ReplyAuthorID = m.ReplyTo.Sender.ID
	}

	for _, e := range m.Entities {
		msg.Entities = append(msg.Entities, types.Entity{
			Kind:   types.EntityKind(e.Type),
			Offset: e.Offset,
			Length: e.Length,
		})
	}

	return msg
}

func chatKind(t tele.ChatType) types.ChatKind {
	switch t {
	case tele.ChatPrivate:
		return types.ChatPrivate
	case tele.ChatGroup:
		return types.ChatGroup
	case tele.ChatSuperGroup:
		return types.ChatSuperGroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		return types.ChatChannel
	default:
		return types.ChatKind(t)
	}
}

// responder delivers replies for a single update.
type responder struct {
	c tele.Context
}

func (r *responder) Reply(text string) error {
	return r.c.Reply(text)
}

func (r *responder) Typing() error {
	return r.c.Notify(tele.Typing)
}
