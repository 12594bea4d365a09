// Package gateway composes admission, session resolution and the
// assistant round trip into the message-handling path shared by every
// transport.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/vgrebnev/teleassist/internal/access"
	"github.com/vgrebnev/teleassist/internal/assistant"
	. "github.com/vgrebnev/teleassist/internal/logging"
	"github.com/vgrebnev/teleassist/internal/session"
	"github.com/vgrebnev/teleassist/internal/telemetry"
	"github.com/vgrebnev/teleassist/internal/types"
)

// Responder delivers replies for one inbound message.
type Responder interface {
	Reply(text string) error
	Typing() error
}

// Assistant runs one conversation turn against a resolved session.
type Assistant interface {
	Converse(ctx context.Context, sessionID, text string) (string, error)
}

// Chats is the chat-directory sink the gateway feeds.
type Chats interface {
	Touch(chatID int64, kind types.ChatKind, title string) error
}

// FailureReply is sent when message handling hits an unrecoverable error.
const FailureReply = "Something went wrong while processing your message. Please try again later."

// Gateway is the transport-agnostic message handler.
type Gateway struct {
	gate      *access.Gate
	registry  *session.Registry
	assistant Assistant
	chats     Chats
	reporter  telemetry.Reporter
}

// New wires a gateway from its collaborators.
func New(gate *access.Gate, registry *session.Registry, asst Assistant, chats Chats, reporter telemetry.Reporter) *Gateway {
	return &Gateway{
		gate:      gate,
		registry:  registry,
		assistant: asst,
		chats:     chats,
		reporter:  reporter,
	}
}

// HandleMessage runs one inbound message through admission, session
// resolution and the assistant, delivering the reply (or a rejection
// notice) via r. It never panics outward; unexpected failures produce a
// single generic reply and a telemetry capture.
func (g *Gateway) HandleMessage(ctx context.Context, msg *types.Inbound, r Responder) {
	defer func() {
		if rec := recover(); rec != nil {
			g.fail(msg, r, fmt.Errorf("panic in message handler: %v", rec))
		}
	}()

	g.touchChat(msg)

	decision := g.gate.Check(msg)
	switch decision.Verdict {
	case access.RejectedSilent:
		L_debug("gateway: message rejected",
			"reason", decision.Reason, "chatID", msg.ChatID, "userID", msg.UserID)
		return
	case access.RejectedNotify:
		L_info("gateway: message rejected",
			"reason", decision.Reason, "chatID", msg.ChatID, "userID", msg.UserID)
		if err := r.Reply(decision.Reply); err != nil {
			L_error("gateway: failed to send rejection notice", "error", err)
		}
		return
	}

	if err := r.Typing(); err != nil {
		// Typically the user blocked the bot; nothing further to deliver.
		L_warn("gateway: typing indicator failed, dropping message",
			"chatID", msg.ChatID, "error", err)
		return
	}

	key := session.Key{ChatID: msg.ChatID, UserID: msg.UserID}
	sessionID, err := g.registry.Resolve(ctx, key)
	if err != nil {
		g.fail(msg, r, err)
		return
	}

	reply, err := g.assistant.Converse(ctx, sessionID, msg.Text)
	if err != nil {
		g.fail(msg, r, err)
		return
	}

	if err := r.Reply(reply); err != nil {
		L_error("gateway: failed to send reply",
			"chatID", msg.ChatID, "userID", msg.UserID, "error", err)
	}
}

// ResetSession drops the session for one (chat, user) pair. It reports
// whether a session existed.
func (g *Gateway) ResetSession(ctx context.Context, chatID, userID int64) bool {
	return g.registry.Remove(ctx, session.Key{ChatID: chatID, UserID: userID})
}

// PurgeAllSessions discards every known session. Called once at startup
// so the process always begins with a clean slate.
func (g *Gateway) PurgeAllSessions(ctx context.Context) {
	g.registry.RemoveAll(ctx)
}

func (g *Gateway) touchChat(msg *types.Inbound) {
	if g.chats == nil || msg.ChatID == 0 {
		return
	}
	title := msg.ChatTitle
	if title == "" {
		title = fmt.Sprintf("Private chat with %s", msg.Username)
	}
	if err := g.chats.Touch(msg.ChatID, msg.ChatKind, title); err != nil {
		L_error("gateway: failed to update chat directory", "chatID", msg.ChatID, "error", err)
	}
}

// fail is the single exit for processing failures: classified logging,
// telemetry capture, one generic reply.
func (g *Gateway) fail(msg *types.Inbound, r Responder, err error) {
	var runErr *assistant.RunError
	var timeoutErr *assistant.TimeoutError
	switch {
	case errors.As(err, &runErr):
		L_error("gateway: assistant run failed",
			"status", runErr.Status, "detail", truncate(runErr.Detail, 200),
			"chatID", msg.ChatID, "userID", msg.UserID)
	case errors.As(err, &timeoutErr):
		L_error("gateway: assistant run timed out",
			"after", timeoutErr.After.String(), "chatID", msg.ChatID, "userID", msg.UserID)
	default:
		L_error("gateway: message handling failed",
			"errorType", fmt.Sprintf("%T", err), "error", truncate(err.Error(), 200),
			"chatID", msg.ChatID, "userID", msg.UserID)
	}

	g.reporter.CaptureError(err, map[string]string{
		"chatID": fmt.Sprintf("%d", msg.ChatID),
		"userID": fmt.Sprintf("%d", msg.UserID),
	})

	if replyErr := r.Reply(FailureReply); replyErr != nil {
		L_error("gateway: failed to send failure reply", "error", replyErr)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
