package models

// Conversation is derived from stored messages and the connection graph;
// it is never persisted.
type Conversation struct {
	User        *User    `json:"user"`
	LastMessage *Message `json:"lastMessage"`
	UnreadCount int      `json:"unreadCount"`
}

func (c Conversation) CounterpartID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}
