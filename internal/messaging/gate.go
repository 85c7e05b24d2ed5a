package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inbox/internal/db"
	"inbox/internal/models"
)

// Decision is the outcome of evaluating a send against the request gate.
type Decision struct {
	Allowed bool
	// Request is the request that governs the pair, if any.
	Request *models.MessageRequest
	// Created is true when Evaluate opened a new pending request.
	Created bool
	// Reason explains a denial.
	Reason string
}

// Gate decides whether a sender may message a recipient who is not a
// connection, and manages message request transitions.
type Gate struct {
	db          *db.DB
	connections ConnectionGraph
	notifier    Notifier
	now         func() time.Time
}

func NewGate(database *db.DB, connections ConnectionGraph, notifier Notifier) *Gate {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Gate{
		db:          database,
		connections: connections,
		notifier:    notifier,
		now:         time.Now,
	}
}

// Evaluate decides a send inside the caller's transaction and opens a
// pending request when the pair has none.
func (g *Gate) Evaluate(ctx context.Context, q *db.Queries, senderID, recipientID string) (Decision, error) {
	d, create, err := g.decide(ctx, q, senderID, recipientID)
	if err != nil || !create {
		return d, err
	}

	req, err := q.Requests.Create(ctx, senderID, recipientID, g.now())
	if errors.Is(err, db.ErrDuplicate) {
		// Another pending request for the pair landed first.
		d, _, err = g.decide(ctx, q, senderID, recipientID)
		return d, err
	}
	if err != nil {
		return Decision{}, err
	}

	return Decision{Allowed: true, Request: req, Created: true}, nil
}

// Check is Evaluate without side effects. A send that would open a new
// request is reported as allowed.
func (g *Gate) Check(ctx context.Context, senderID, recipientID string) (Decision, error) {
	d, _, err := g.decide(ctx, g.db.Queries(), senderID, recipientID)
	return d, err
}

func (g *Gate) decide(ctx context.Context, q *db.Queries, senderID, recipientID string) (Decision, bool, error) {
	connected, err := g.connections.IsConnected(ctx, senderID, recipientID)
	if err != nil {
		return Decision{}, false, fmt.Errorf("checking connection: %w", err)
	}

	requests, err := q.Requests.ListForPair(ctx, senderID, recipientID)
	if err != nil {
		return Decision{}, false, err
	}

	d, create := decide(senderID, connected, requests)
	return d, create, nil
}

// decide applies the gate rules to the pair's requests, newest first. The
// second result reports whether a new pending request must be opened.
func decide(senderID string, connected bool, requests []*models.MessageRequest) (Decision, bool) {
	var latest, pending, accepted *models.MessageRequest
	for _, req := range requests {
		if latest == nil {
			latest = req
		}
		switch req.Status {
		case models.RequestPending:
			if pending == nil {
				pending = req
			}
		case models.RequestAccepted:
			if accepted == nil {
				accepted = req
			}
		}
	}

	switch {
	case connected:
		return Decision{Allowed: true, Request: latest}, false
	case accepted != nil:
		return Decision{Allowed: true, Request: accepted}, false
	case pending != nil:
		if pending.SenderID == senderID {
			return Decision{Allowed: true, Request: pending}, false
		}
		return Decision{Request: pending, Reason: "accept the message request to reply"}, false
	case latest != nil && latest.Status == models.RequestRejected && latest.SenderID == senderID:
		return Decision{Request: latest, Reason: "message request was declined"}, false
	default:
		return Decision{Allowed: true, Request: latest}, true
	}
}

func (g *Gate) Accept(ctx context.Context, requestID, actorID string) (*models.MessageRequest, error) {
	return g.respond(ctx, requestID, actorID, models.RequestAccepted)
}

func (g *Gate) Reject(ctx context.Context, requestID, actorID string) (*models.MessageRequest, error) {
	return g.respond(ctx, requestID, actorID, models.RequestRejected)
}

func (g *Gate) respond(ctx context.Context, requestID, actorID string, to models.RequestStatus) (*models.MessageRequest, error) {
	var updated *models.MessageRequest

	err := g.db.WithTx(ctx, func(q *db.Queries) error {
		req, err := q.Requests.FindByID(ctx, requestID)
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: message request %s", ErrNotFound, requestID)
		}
		if err != nil {
			return err
		}

		if req.RecipientID != actorID {
			return fmt.Errorf("%w: only the recipient can respond to a message request", ErrAuthorization)
		}
		if req.Status != models.RequestPending {
			return fmt.Errorf("%w: message request is already %s", ErrState, req.Status)
		}

		at := g.now().UTC()
		err = q.Requests.Transition(ctx, req.ID, models.RequestPending, to, at)
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: message request was responded to concurrently", ErrState)
		}
		if err != nil {
			return err
		}

		req.Status = to
		req.RespondedAt = &at
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.notifier.RequestUpdated(updated)
	return updated, nil
}

// Status reports the gate state of the thread between viewer and counterpart.
func (g *Gate) Status(ctx context.Context, viewerID, counterpartID string) (*models.RequestStatusView, error) {
	if viewerID == counterpartID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}

	connected, err := g.connections.IsConnected(ctx, viewerID, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("checking connection: %w", err)
	}

	requests, err := g.db.Queries().Requests.ListForPair(ctx, viewerID, counterpartID)
	if err != nil {
		return nil, err
	}

	d, _ := decide(viewerID, connected, requests)
	view := &models.RequestStatusView{CanMessage: d.Allowed}

	for _, req := range requests {
		if req.Status == models.RequestPending {
			view.HasRequest = true
			view.IsSender = req.SenderID == viewerID
			view.RequestID = req.ID
			view.Status = req.Status
			return view, nil
		}
	}

	if len(requests) > 0 {
		view.RequestID = requests[0].ID
		view.Status = requests[0].Status
	}
	return view, nil
}

// ListIncoming returns pending requests addressed to viewer, oldest first.
func (g *Gate) ListIncoming(ctx context.Context, viewerID string) ([]*models.MessageRequest, error) {
	return g.db.Queries().Requests.ListIncomingPending(ctx, viewerID)
}
