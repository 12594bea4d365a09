package access

import (
	"strings"
	"unicode/utf16"

	"github.com/vgrebnev/teleassist/internal/types"
)

// AddressesBot reports whether a group message is directed at the bot:
// either a reply to one of the bot's own messages, or a mention entity
// whose text case-insensitively equals "@" + the bot's username.
//
// An unresolved bot identity fails closed; callers should log that as a
// configuration error before invoking this.
func AddressesBot(msg *types.Inbound, bot types.BotIdentity) bool {
	if !bot.Resolved() {
		return false
	}

	if msg.IsReply && msg.ReplyAuthorID == bot.ID {
		return true
	}

	if len(msg.Entities) == 0 {
		return false
	}

	want := "@" + strings.ToLower(bot.Username)
	// Entity offsets are UTF-16 code units (Telegram Bot API convention),
	// so the text must be sliced in UTF-16 space, not bytes or runes.
	units := utf16.Encode([]rune(msg.Text))

	for _, e := range msg.Entities {
		if e.Kind != types.EntityMention {
			continue
		}
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
			continue
		}
		mention := string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
		if strings.EqualFold(mention, want) {
			return true
		}
	}

	return false
}
