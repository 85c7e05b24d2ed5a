package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inbox/internal/models"
)

const messageColumns = `id, sender_id, recipient_id, content, file_key, file_url, file_name, file_size,
	file_mime_type, file_preview_url, shared_post, created_at, read`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// ThreadSummary is the per-counterpart aggregate for one viewer.
type ThreadSummary struct {
	CounterpartID string
	LastMessage   *models.Message
	UnreadCount   int
}

// Attachment is the stored reference to a message file.
type Attachment struct {
	Key       string
	Name      string
	MimeType  string
	CreatedAt time.Time
}

// Create assigns an ID and persists m. CreatedAt is set by the caller.
func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	id, err := GenerateID("msg")
	if err != nil {
		return fmt.Errorf("generating message ID: %w", err)
	}

	var sharedPost any
	if m.SharedPost != nil {
		encoded, err := json.Marshal(m.SharedPost)
		if err != nil {
			return fmt.Errorf("encoding shared post: %w", err)
		}
		sharedPost = string(encoded)
	}

	var fileSize any
	if m.FileURL != "" {
		fileSize = m.FileSize
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.SenderID, m.RecipientID, m.Content,
		nullIfEmpty(m.FileKey), nullIfEmpty(m.FileURL), nullIfEmpty(m.FileName), fileSize,
		nullIfEmpty(m.FileMimeType), nullIfEmpty(m.FilePreviewURL), sharedPost,
		m.CreatedAt.UTC(), m.Read,
	)
	if err != nil {
		return fmt.Errorf("creating message: %w", err)
	}

	m.ID = id
	return nil
}

// ListThread returns every message between a and b, oldest first.
func (r *MessageRepository) ListThread(ctx context.Context, a, b string) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE (sender_id = ?1 AND recipient_id = ?2) OR (sender_id = ?2 AND recipient_id = ?1)
		 ORDER BY created_at ASC, rowid ASC`,
		a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// MarkThreadRead flips read on every unread message from counterpart to viewer.
func (r *MessageRepository) MarkThreadRead(ctx context.Context, viewer, counterpart string, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read = 1, read_at = ? WHERE recipient_id = ? AND sender_id = ? AND read = 0`,
		at.UTC(), viewer, counterpart,
	)
	if err != nil {
		return 0, fmt.Errorf("marking thread read: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, viewer string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = ? AND read = 0`, viewer,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// ListThreadSummaries returns, per counterpart the viewer has exchanged
// messages with, the most recent message and the viewer's unread count.
func (r *MessageRepository) ListThreadSummaries(ctx context.Context, viewer string) ([]ThreadSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`WITH thread AS (
			SELECT `+messageColumns+`, rowid AS seq,
				CASE WHEN sender_id = ?1 THEN recipient_id ELSE sender_id END AS counterpart_id
			FROM messages
			WHERE sender_id = ?1 OR recipient_id = ?1
		), ranked AS (
			SELECT thread.*,
				ROW_NUMBER() OVER (PARTITION BY counterpart_id ORDER BY created_at DESC, seq DESC) AS rn,
				SUM(CASE WHEN recipient_id = ?1 AND read = 0 THEN 1 ELSE 0 END) OVER (PARTITION BY counterpart_id) AS unread
			FROM thread
		)
		SELECT unread, `+messageColumns+`
		FROM ranked
		WHERE rn = 1
		ORDER BY counterpart_id`,
		viewer,
	)
	if err != nil {
		return nil, fmt.Errorf("querying thread summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]ThreadSummary, 0)
	for rows.Next() {
		var s ThreadSummary
		m, err := scanMessage(prefixedScanner{rows: rows, prefix: []any{&s.UnreadCount}})
		if err != nil {
			return nil, fmt.Errorf("scanning thread summary: %w", err)
		}
		s.CounterpartID = m.Counterpart(viewer)
		s.LastMessage = m
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread summaries: %w", err)
	}

	return summaries, nil
}

// FindAttachment looks up the message file stored under key.
func (r *MessageRepository) FindAttachment(ctx context.Context, key string) (*Attachment, error) {
	var a Attachment
	var name, mimeType sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT file_key, file_name, file_mime_type, created_at FROM messages WHERE file_key = ?`, key,
	).Scan(&a.Key, &name, &mimeType, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying attachment: %w", err)
	}

	a.Name = name.String
	a.MimeType = mimeType.String
	return &a, nil
}

type prefixedScanner struct {
	rows   *sql.Rows
	prefix []any
}

func (p prefixedScanner) Scan(dest ...any) error {
	return p.rows.Scan(append(p.prefix, dest...)...)
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var fileKey, fileURL, fileName, fileMime, filePreview, sharedPost sql.NullString
	var fileSize sql.NullInt64
	var createdAt scanTime

	err := row.Scan(
		&m.ID, &m.SenderID, &m.RecipientID, &m.Content,
		&fileKey, &fileURL, &fileName, &fileSize, &fileMime, &filePreview, &sharedPost,
		&createdAt, &m.Read,
	)
	if err != nil {
		return nil, err
	}

	m.FileKey = fileKey.String
	m.FileURL = fileURL.String
	m.FileName = fileName.String
	m.FileSize = fileSize.Int64
	m.FileMimeType = fileMime.String
	m.FilePreviewURL = filePreview.String
	m.CreatedAt = createdAt.Time

	if sharedPost.Valid && sharedPost.String != "" {
		var post models.SharedPost
		if err := json.Unmarshal([]byte(sharedPost.String), &post); err != nil {
			return nil, fmt.Errorf("decoding shared post: %w", err)
		}
		m.SharedPost = &post
	}

	return &m, nil
}
