package config

import (
	"strconv"
	"strings"

	"github.com/vgrebnev/teleassist/internal/logging"
)

// ParseBanList converts "id:reason" entries into a map of subject ID to
// ban reason. The reason may encode newlines as "\n". Malformed entries are
// logged and skipped rather than failing the whole config.
func ParseBanList(entries []string) map[int64]string {
	bans := make(map[int64]string, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idStr, reason, ok := strings.Cut(entry, ":")
		if !ok {
			logging.L_warn("config: ban entry missing reason, skipping", "entry", entry)
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			logging.L_warn("config: ban entry has invalid id, skipping", "entry", entry, "error", err)
			continue
		}
		bans[id] = strings.TrimSpace(strings.ReplaceAll(reason, `\n`, "\n"))
	}
	return bans
}
