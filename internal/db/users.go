package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"inbox/internal/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

type CreateUserParams struct {
	Username  string
	Name      string
	Headline  string
	AvatarURL *string
}

func (r *UserRepository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	id, err := GenerateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, name, headline, avatar_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.Username, p.Name, p.Headline, p.AvatarURL, now, now,
	)
	if err != nil {
		return nil, insertError("creating user", err)
	}

	return &models.User{
		ID:        id,
		Username:  p.Username,
		Name:      p.Name,
		Headline:  p.Headline,
		AvatarURL: p.AvatarURL,
		CreatedAt: now,
		UpdatedAt: &now,
	}, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, name, headline, avatar_url, created_at, updated_at FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, name, headline, avatar_url, created_at, updated_at FROM users WHERE username = ?`, username)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// FindByIDs returns the users that exist among ids, keyed by ID.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, name, headline, avatar_url, created_at, updated_at FROM users WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users[u.ID] = u
	}

	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var avatarURL sql.NullString
	var updatedAt sql.NullTime

	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Headline, &avatarURL, &u.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}

	u.AvatarURL = nullStringToPtr(avatarURL)
	u.UpdatedAt = nullTimeToPtr(updatedAt)
	return &u, nil
}
