package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"inbox/internal/blob"
	"inbox/internal/constants"
	"inbox/internal/db"
	"inbox/internal/models"
)

type SendInput struct {
	SenderID     string
	RecipientID  string
	Content      string
	SharedPostID string
}

// Upload is an attachment as received from the client. Size is the declared
// size and is not trusted beyond the early rejection.
type Upload struct {
	Name   string
	Size   int64
	Reader io.Reader
}

type Config struct {
	MaxContentLength   int
	MaxAttachmentBytes int64
}

// Deps are the collaborators of the service. Nil entries default to the
// SQLite repositories of the database.
type Deps struct {
	Users       UserDirectory
	Connections ConnectionGraph
	Posts       PostSource
	Blobs       BlobStore
	Notifier    Notifier
}

type Service struct {
	db          *db.DB
	gate        *Gate
	users       UserDirectory
	connections ConnectionGraph
	posts       PostSource
	blobs       BlobStore
	notifier    Notifier
	cfg         Config
	now         func() time.Time
}

func NewService(database *db.DB, deps Deps, cfg Config) *Service {
	q := database.Queries()
	if deps.Users == nil {
		deps.Users = q.Users
	}
	if deps.Connections == nil {
		deps.Connections = q.Connections
	}
	if deps.Posts == nil {
		deps.Posts = q.Posts
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = constants.MaxMessageContentLength
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = constants.MaxAttachmentBytes
	}

	return &Service{
		db:          database,
		gate:        NewGate(database, deps.Connections, deps.Notifier),
		users:       deps.Users,
		connections: deps.Connections,
		posts:       deps.Posts,
		blobs:       deps.Blobs,
		notifier:    deps.Notifier,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *Service) Gate() *Gate {
	return s.gate
}

// SendMessage stores a text or shared-post message.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (*models.Message, error) {
	msg, err := s.prepare(ctx, in, false)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendMessageWithAttachment uploads the file, then stores the message. The
// upload is removed again if the message cannot be stored.
func (s *Service) SendMessageWithAttachment(ctx context.Context, in SendInput, upload Upload) (*models.Message, error) {
	if upload.Reader == nil {
		return nil, fmt.Errorf("%w: file is required", ErrValidation)
	}
	if upload.Size > s.cfg.MaxAttachmentBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, s.cfg.MaxAttachmentBytes)
	}
	if s.blobs == nil {
		return nil, errors.New("attachment storage is not configured")
	}

	msg, err := s.prepare(ctx, in, true)
	if err != nil {
		return nil, err
	}

	d, err := s.gate.Check(ctx, msg.SenderID, msg.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("checking message request: %w", err)
	}
	if !d.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPermission, d.Reason)
	}

	stored, err := s.blobs.Save(ctx, upload.Name, upload.Reader)
	if err != nil {
		if errors.Is(err, blob.ErrFileTooLarge) {
			return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, s.cfg.MaxAttachmentBytes)
		}
		if errors.Is(err, blob.ErrExecutableFile) || errors.Is(err, blob.ErrDisallowedType) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("storing attachment: %w", err)
	}

	msg.FileKey = stored.ID
	msg.FileURL = stored.URL
	msg.FilePreviewURL = stored.PreviewURL
	msg.FileName = stored.OriginalName
	msg.FileSize = stored.SizeBytes
	msg.FileMimeType = stored.MimeType

	if err := s.commit(ctx, msg); err != nil {
		if rmErr := s.blobs.Remove(context.WithoutCancel(ctx), stored.ID); rmErr != nil {
			slog.Warn("error removing attachment after failed send", "component", "messaging", "error", rmErr, "blob_id", stored.ID)
		}
		return nil, err
	}
	return msg, nil
}

func (s *Service) prepare(ctx context.Context, in SendInput, hasAttachment bool) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	postID := strings.TrimSpace(in.SharedPostID)

	if in.SenderID == "" || in.RecipientID == "" {
		return nil, fmt.Errorf("%w: sender and recipient are required", ErrValidation)
	}
	if in.SenderID == in.RecipientID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, s.cfg.MaxContentLength)
	}

	msg := &models.Message{
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Content:     content,
	}

	if postID != "" {
		post, err := s.posts.GetPost(ctx, postID)
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: shared post %s does not exist", ErrValidation, postID)
		}
		if err != nil {
			return nil, fmt.Errorf("looking up shared post: %w", err)
		}
		msg.SharedPost = post
	}

	if !hasAttachment && !msg.HasBody() {
		return nil, fmt.Errorf("%w: message must have content, a file or a shared post", ErrValidation)
	}
	if err := s.requireUser(ctx, in.RecipientID); err != nil {
		return nil, err
	}

	return msg, nil
}

// commit evaluates the gate and inserts msg in one transaction.
func (s *Service) commit(ctx context.Context, msg *models.Message) error {
	var d Decision

	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		var err error
		d, err = s.gate.Evaluate(ctx, q, msg.SenderID, msg.RecipientID)
		if err != nil {
			return fmt.Errorf("evaluating message request: %w", err)
		}
		if !d.Allowed {
			return fmt.Errorf("%w: %s", ErrPermission, d.Reason)
		}

		msg.CreatedAt = s.now().UTC()
		msg.Read = false
		return q.Messages.Create(ctx, msg)
	})
	if err != nil {
		msg.ID = ""
		return err
	}

	if d.Created {
		s.notifier.RequestUpdated(d.Request)
	}
	s.notifier.MessageCreated(msg)
	return nil
}

// ListMessages returns the thread between a and b, oldest first.
func (s *Service) ListMessages(ctx context.Context, a, b string) ([]*models.Message, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("%w: both participants are required", ErrValidation)
	}
	if err := s.requireUser(ctx, b); err != nil {
		return nil, err
	}
	return s.db.Queries().Messages.ListThread(ctx, a, b)
}

// MarkRead marks every message from counterpart to viewer as read and
// returns how many changed. Repeating it is a no-op.
func (s *Service) MarkRead(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	if viewerID == "" || counterpartID == "" {
		return 0, fmt.Errorf("%w: both participants are required", ErrValidation)
	}
	if err := s.requireUser(ctx, counterpartID); err != nil {
		return 0, err
	}

	n, err := s.db.Queries().Messages.MarkThreadRead(ctx, viewerID, counterpartID, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notifier.ThreadRead(viewerID, counterpartID)
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, viewerID string) (int64, error) {
	return s.db.Queries().Messages.CountUnread(ctx, viewerID)
}

// ListConnections returns the viewer's accepted connections as profiles.
func (s *Service) ListConnections(ctx context.Context, viewerID string) ([]*models.User, error) {
	ids, err := s.connections.ListConnections(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	profiles, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving connections: %w", err)
	}

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := profiles[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

// requireUser reports ErrNotFound when no user has the given id.
func (s *Service) requireUser(ctx context.Context, id string) error {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		return fmt.Errorf("looking up user: %w", err)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, err
}
