package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inbox/internal/models"
)

type PostRepository struct {
	db DBTX
}

func NewPostRepository(db DBTX) *PostRepository {
	return &PostRepository{db: db}
}

type CreatePostParams struct {
	AuthorID     string
	Content      string
	ImageURL     string
	LikeCount    int
	CommentCount int
}

func (r *PostRepository) Create(ctx context.Context, p CreatePostParams) (string, error) {
	id, err := GenerateID("pst")
	if err != nil {
		return "", fmt.Errorf("generating post ID: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, content, image_url, like_count, comment_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.AuthorID, p.Content, p.ImageURL, p.LikeCount, p.CommentCount, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("creating post: %w", err)
	}
	return id, nil
}

// UpdateCounts exists so tests can show that shared-post snapshots are frozen.
func (r *PostRepository) UpdateCounts(ctx context.Context, id string, likes, comments int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET like_count = ?, comment_count = ? WHERE id = ?`, likes, comments, id)
	if err != nil {
		return fmt.Errorf("updating post counts: %w", err)
	}
	return checkRowsAffected(result)
}

// GetPost returns a summary of the post joined with its author.
func (r *PostRepository) GetPost(ctx context.Context, id string) (*models.SharedPost, error) {
	var p models.SharedPost
	var avatarURL sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT p.id, p.content, p.image_url, p.like_count, p.comment_count, p.created_at,
		        u.id, u.name, u.username, u.avatar_url
		 FROM posts p
		 JOIN users u ON u.id = p.author_id
		 WHERE p.id = ?`,
		id,
	).Scan(&p.ID, &p.Content, &p.Image, &p.LikeCount, &p.CommentCount, &p.CreatedAt,
		&p.Author.ID, &p.Author.Name, &p.Author.Username, &avatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying post: %w", err)
	}

	p.Author.AvatarURL = avatarURL.String
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
