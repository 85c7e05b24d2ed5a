package syncclient

import "inbox/internal/models"

func equalConversations(a, b []models.Conversation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].UnreadCount != b[i].UnreadCount ||
			!equalUsers(a[i].User, b[i].User) ||
			!equalMessage(a[i].LastMessage, b[i].LastMessage) {
			return false
		}
	}
	return true
}

func equalUsers(a, b *models.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID &&
		a.Username == b.Username &&
		a.Name == b.Name &&
		a.Headline == b.Headline &&
		a.GetAvatarURL() == b.GetAvatarURL()
}

func equalMessages(a, b []*models.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalMessage(a[i], b[i]) {
			return false
		}
	}
	return true
}

// equalMessage compares the fields that can differ between two fetches of
// the same message history. Only Read mutates after creation.
func equalMessage(a, b *models.Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Read == b.Read && a.CreatedAt.Equal(b.CreatedAt)
}
