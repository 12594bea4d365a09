// Package access implements the message-admission pipeline: ban checks,
// chat scoping, mention detection, rate limiting and length validation.
// Only messages that pass every step proceed to session resolution.
package access

import (
	"fmt"
	"time"
	"unicode/utf8"

	. "github.com/vgrebnev/teleassist/internal/logging"
	"github.com/vgrebnev/teleassist/internal/types"
)

// Verdict is the outcome of the admission pipeline for one message.
type Verdict int

const (
	// Accepted means the message proceeds to session resolution.
	Accepted Verdict = iota
	// RejectedSilent means the message is dropped without any reply.
	RejectedSilent
	// RejectedNotify means the message is dropped and Reply is sent back.
	RejectedNotify
)

// Decision carries the verdict plus the user-visible reply for vocal
// rejections and a short reason tag for logging.
type Decision struct {
	Verdict Verdict
	Reply   string
	Reason  string
}

func accept() Decision {
	return Decision{Verdict: Accepted}
}

func silent(reason string) Decision {
	return Decision{Verdict: RejectedSilent, Reason: reason}
}

func notify(reason, reply string) Decision {
	return Decision{Verdict: RejectedNotify, Reason: reason, Reply: reply}
}

// Policy is the resolved, read-only admission configuration. It is built
// once at startup and never mutated afterwards, so it needs no locking.
type Policy struct {
	BannedUsers map[int64]string // user ID -> ban reason
	BannedChats map[int64]string // chat ID -> ban reason

	// AllowedChats restricts which group chats the bot answers in.
	// nil means every chat is allowed.
	AllowedChats map[int64]bool

	// AllowAllUsers disables the username allow-list.
	AllowAllUsers bool
	AllowedUsers  map[string]bool

	MaxMessageLength int
	RateLimitWindow  time.Duration
}

// Gate evaluates the admission pipeline for inbound messages.
type Gate struct {
	policy  Policy
	limiter *RateLimiter
	bot     types.BotIdentity
}

// NewGate creates a gate over a resolved policy. The bot identity must be
// resolved before group messages arrive; if it is not, addressing checks
// fail closed.
func NewGate(policy Policy, limiter *RateLimiter, bot types.BotIdentity) *Gate {
	return &Gate{policy: policy, limiter: limiter, bot: bot}
}

// Check runs the pipeline in strict order, short-circuiting on the first
// rejection. The order matters: ban notices are suppressed for group
// messages the bot was not addressed by, so that it never spams ban
// messages into ordinary chatter.
func (g *Gate) Check(msg *types.Inbound) Decision {
	// Structural check: nothing to key sessions or limits on.
	if msg.ChatID == 0 || msg.UserID == 0 {
		L_warn("access: message without chat or user id dropped")
		return silent("missing-identity")
	}

	if reason, ok := g.policy.BannedUsers[msg.UserID]; ok {
		return notify("user-banned", fmt.Sprintf("⛔ You are banned.\n\nReason: %s", reason))
	}

	if msg.ChatKind.IsPrivate() {
		if reason, ok := g.policy.BannedChats[msg.ChatID]; ok {
			return notify("chat-banned", fmt.Sprintf("⛔ This chat is banned.\n\nReason: %s", reason))
		}
	} else {
		// Group scope: a configured allow-list silently disables the bot
		// everywhere else.
		if g.policy.AllowedChats != nil && !g.policy.AllowedChats[msg.ChatID] {
			return silent("chat-not-allowed")
		}

		if !g.bot.Resolved() {
			L_error("access: bot identity not resolved, ignoring group message",
				"chatID", msg.ChatID)
			return silent("identity-unresolved")
		}
		if !AddressesBot(msg, g.bot) {
			return silent("not-addressed")
		}

		// Deferred chat ban: the bot was addressed, so the ban notice is
		// worth sending.
		if reason, ok := g.policy.BannedChats[msg.ChatID]; ok {
			return notify("chat-banned", fmt.Sprintf("⛔ This chat is banned.\n\nReason: %s", reason))
		}
	}

	if !g.policy.AllowAllUsers {
		if msg.Username == "" || !g.policy.AllowedUsers[msg.Username] {
			return notify("user-not-allowed", "You don't have access to this bot.")
		}
	}

	if !g.limiter.Allow(msg.UserID) {
		return notify("rate-limited",
			fmt.Sprintf("Too many messages. Please wait a bit (%d sec).",
				int(g.policy.RateLimitWindow.Seconds())))
	}

	if utf8.RuneCountInString(msg.Text) > g.policy.MaxMessageLength {
		return notify("too-long",
			fmt.Sprintf("Message is too long. Maximum: %d characters.", g.policy.MaxMessageLength))
	}

	return accept()
}
