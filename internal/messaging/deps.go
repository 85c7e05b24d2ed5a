package messaging

import (
	"context"
	"io"

	"inbox/internal/blob"
	"inbox/internal/models"
)

// UserDirectory resolves profiles. Lookups of unknown IDs return db.ErrNotFound.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

type ConnectionGraph interface {
	IsConnected(ctx context.Context, a, b string) (bool, error)
	ListConnections(ctx context.Context, viewer string) ([]string, error)
}

// PostSource returns a snapshot of a post. Unknown IDs return db.ErrNotFound.
type PostSource interface {
	GetPost(ctx context.Context, id string) (*models.SharedPost, error)
}

type BlobStore interface {
	Save(ctx context.Context, originalName string, src io.Reader) (*blob.StoredBlob, error)
	Remove(ctx context.Context, key string) error
}

// Notifier receives change hints after a write commits. Hints carry no
// state clients rely on; polling stays authoritative.
type Notifier interface {
	MessageCreated(msg *models.Message)
	ThreadRead(viewerID, counterpartID string)
	RequestUpdated(req *models.MessageRequest)
}

type noopNotifier struct{}

func (noopNotifier) MessageCreated(*models.Message)        {}
func (noopNotifier) ThreadRead(string, string)             {}
func (noopNotifier) RequestUpdated(*models.MessageRequest) {}
