package rules

import "strings"

// NormalizeChatID expands a chat identifier into the ordered list of string
// forms under which it may appear as a rule key. Telegram supergroups carry a
// "-100" prefix on the wire, but rule files in the wild use the full form,
// the bare numeric form and the single-minus form interchangeably, so lookups
// probe all of them.
func NormalizeChatID(chatID string) []string {
	if strings.HasPrefix(chatID, "-100") {
		stripped := chatID[4:]
		return []string{
			chatID,          // full form with -100
			stripped,        // bare numeric form
			"-" + stripped,  // single-minus form
		}
	}

	return []string{
		chatID,
		"-100" + strings.TrimLeft(chatID, "-"),
	}
}
