package syncclient

import (
	"context"
	"io"

	"inbox/internal/models"
)

// Outgoing is a message the viewer composes. At least one of Content and
// SharedPostID must be set.
type Outgoing struct {
	RecipientID  string `json:"recipientId"`
	Content      string `json:"content,omitempty"`
	SharedPostID string `json:"sharedPostId,omitempty"`
}

// Attachment is a file sent alongside optional text.
type Attachment struct {
	Name   string
	Reader io.Reader
}

// API is the server boundary the client polls. All calls act on behalf of
// the authenticated viewer.
type API interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListMessages(ctx context.Context, counterpartID string) ([]*models.Message, error)
	MarkThreadRead(ctx context.Context, counterpartID string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SendMessage(ctx context.Context, msg Outgoing) (*models.Message, error)
	SendFile(ctx context.Context, recipientID, content string, file Attachment) (*models.Message, error)
	RequestStatus(ctx context.Context, counterpartID string) (*models.RequestStatusView, error)
	AcceptRequest(ctx context.Context, requestID string) (*models.MessageRequest, error)
	RejectRequest(ctx context.Context, requestID string) (*models.MessageRequest, error)
}
