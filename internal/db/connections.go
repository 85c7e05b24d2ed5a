package db

import (
	"context"
	"fmt"
	"time"
)

const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
)

// ConnectionRepository is a read-mostly view of the social graph. Connection
// management lives outside this service; Upsert exists for seeding and tests.
type ConnectionRepository struct {
	db DBTX
}

func NewConnectionRepository(db DBTX) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func orderedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func (r *ConnectionRepository) Upsert(ctx context.Context, a, b, status string) error {
	if a == b {
		return fmt.Errorf("connecting user to itself")
	}
	low, high := orderedPair(a, b)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connections (user_a, user_b, status, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_a, user_b) DO UPDATE SET status = excluded.status`,
		low, high, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting connection: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) IsConnected(ctx context.Context, a, b string) (bool, error) {
	low, high := orderedPair(a, b)

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connections WHERE user_a = ? AND user_b = ? AND status = ?`,
		low, high, ConnectionAccepted,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking connection: %w", err)
	}
	return count > 0, nil
}

// ListConnections returns the IDs of users with an accepted connection to viewer.
func (r *ConnectionRepository) ListConnections(ctx context.Context, viewer string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT CASE WHEN user_a = ? THEN user_b ELSE user_a END
		 FROM connections
		 WHERE (user_a = ? OR user_b = ?) AND status = ?
		 ORDER BY 1`,
		viewer, viewer, viewer, ConnectionAccepted,
	)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
