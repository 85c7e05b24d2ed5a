package models

import "time"

type Message struct {
	ID             string      `json:"id"`
	SenderID       string      `json:"senderId"`
	RecipientID    string      `json:"recipientId"`
	Content        string      `json:"content,omitempty"`
	FileURL        string      `json:"fileUrl,omitempty"`
	FileName       string      `json:"fileName,omitempty"`
	FileSize       int64       `json:"fileSize,omitempty"`
	FileMimeType   string      `json:"fileMimeType,omitempty"`
	FilePreviewURL string      `json:"filePreviewUrl,omitempty"`
	SharedPost     *SharedPost `json:"sharedPost,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	Read           bool        `json:"read"`

	// FileKey identifies the attachment in the blob store. Never exposed.
	FileKey string `json:"-"`
}

// HasBody reports whether the message carries content, a file or a shared post.
func (m *Message) HasBody() bool {
	return m.Content != "" || m.FileURL != "" || m.SharedPost != nil
}

// Counterpart returns the participant that is not viewerID.
func (m *Message) Counterpart(viewerID string) string {
	if m.SenderID == viewerID {
		return m.RecipientID
	}
	return m.SenderID
}

// SharedPost is a snapshot of a post taken when the message was sent.
// It is not refreshed if the post later changes.
type SharedPost struct {
	ID           string     `json:"id"`
	Author       PostAuthor `json:"author"`
	Image        string     `json:"image,omitempty"`
	Content      string     `json:"content,omitempty"`
	LikeCount    int        `json:"likeCount"`
	CommentCount int        `json:"commentCount"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type PostAuthor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
