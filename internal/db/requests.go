package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inbox/internal/models"
)

const requestColumns = `id, sender_id, recipient_id, status, created_at, responded_at`

type RequestRepository struct {
	db DBTX
}

func NewRequestRepository(db DBTX) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a pending request. A second pending request for the same
// unordered pair violates a unique index and yields ErrDuplicate.
func (r *RequestRepository) Create(ctx context.Context, senderID, recipientID string, at time.Time) (*models.MessageRequest, error) {
	id, err := GenerateID("mrq")
	if err != nil {
		return nil, fmt.Errorf("generating request ID: %w", err)
	}
	at = at.UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO message_requests (id, sender_id, recipient_id, pair_key, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, senderID, recipientID, models.PairKey(senderID, recipientID), models.RequestPending, at,
	)
	if err != nil {
		return nil, insertError("creating message request", err)
	}

	return &models.MessageRequest{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      models.RequestPending,
		CreatedAt:   at,
	}, nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.MessageRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM message_requests WHERE id = ?`, id)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message request: %w", err)
	}
	return req, nil
}

// ListForPair returns every request between a and b, newest first.
func (r *RequestRepository) ListForPair(ctx context.Context, a, b string) ([]*models.MessageRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM message_requests WHERE pair_key = ? ORDER BY created_at DESC, rowid DESC`,
		models.PairKey(a, b),
	)
	if err != nil {
		return nil, fmt.Errorf("querying message requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// ListIncomingPending returns pending requests addressed to recipientID, oldest first.
func (r *RequestRepository) ListIncomingPending(ctx context.Context, recipientID string) ([]*models.MessageRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM message_requests WHERE recipient_id = ? AND status = ? ORDER BY created_at ASC, rowid ASC`,
		recipientID, models.RequestPending,
	)
	if err != nil {
		return nil, fmt.Errorf("querying incoming requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// Transition moves a request from one status to another. It returns
// ErrNotFound when no row is in the expected state.
func (r *RequestRepository) Transition(ctx context.Context, id string, from, to models.RequestStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE message_requests SET status = ?, responded_at = ? WHERE id = ? AND status = ?`,
		to, at.UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("updating message request: %w", err)
	}
	return checkRowsAffected(result)
}

func collectRequests(rows *sql.Rows) ([]*models.MessageRequest, error) {
	requests := make([]*models.MessageRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message requests: %w", err)
	}
	return requests, nil
}

func scanRequest(row rowScanner) (*models.MessageRequest, error) {
	var req models.MessageRequest
	var status string
	var respondedAt sql.NullTime

	if err := row.Scan(&req.ID, &req.SenderID, &req.RecipientID, &status, &req.CreatedAt, &respondedAt); err != nil {
		return nil, err
	}

	req.Status = models.RequestStatus(status)
	req.CreatedAt = req.CreatedAt.UTC()
	req.RespondedAt = nullTimeToPtr(respondedAt)
	return &req, nil
}
