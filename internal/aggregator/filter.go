package aggregator

import "github.com/tomhv/usagegraph/internal/model"

// Filter returns the messages whose date falls within [since, until]. Either
// bound may be empty to leave that side open. Bounds are YYYY-MM-DD strings,
// compared lexically like the dates themselves.
func Filter(messages []model.UnifiedMessage, since, until string) []model.UnifiedMessage {
	if since == "" && until == "" {
		return messages
	}

	var filtered []model.UnifiedMessage
	for i := range messages {
		if since != "" && messages[i].Date < since {
			continue
		}
		if until != "" && messages[i].Date > until {
			continue
		}
		filtered = append(filtered, messages[i])
	}
	return filtered
}
