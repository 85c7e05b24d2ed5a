package syncclient

import (
	"strings"

	"inbox/internal/models"
)

// Filter keeps conversations whose counterpart name, username or headline
// contains query, ignoring case. A blank query keeps everything.
func Filter(conversations []models.Conversation, query string) []models.Conversation {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return conversations
	}

	out := make([]models.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		if conv.User == nil {
			continue
		}
		if strings.Contains(strings.ToLower(conv.User.Name), query) ||
			strings.Contains(strings.ToLower(conv.User.Username), query) ||
			strings.Contains(strings.ToLower(conv.User.Headline), query) {
			out = append(out, conv)
		}
	}
	return out
}
