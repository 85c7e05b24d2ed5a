package db

import (
	"context"
	"database/sql"
)

// Queries groups the repositories over a single DBTX so a unit of work can
// span several of them.
type Queries struct {
	Users       *UserRepository
	Connections *ConnectionRepository
	Posts       *PostRepository
	Messages    *MessageRepository
	Requests    *RequestRepository
}

func New(db DBTX) *Queries {
	return &Queries{
		Users:       NewUserRepository(db),
		Connections: NewConnectionRepository(db),
		Posts:       NewPostRepository(db),
		Messages:    NewMessageRepository(db),
		Requests:    NewRequestRepository(db),
	}
}

func (db *DB) Queries() *Queries {
	return New(db.DB)
}

// WithTx runs fn with repositories bound to one transaction.
func (db *DB) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		return fn(New(tx))
	})
}
