package messaging

import (
	"context"
	"errors"
	"testing"

	"inbox/internal/models"
)

func TestDecide(t *testing.T) {
	req := func(id, sender string, status models.RequestStatus) *models.MessageRequest {
		return &models.MessageRequest{ID: id, SenderID: sender, RecipientID: "other", Status: status}
	}

	tests := []struct {
		name        string
		connected   bool
		requests    []*models.MessageRequest
		wantAllowed bool
		wantCreate  bool
	}{
		{name: "connected", connected: true, wantAllowed: true},
		{name: "no history", wantAllowed: true, wantCreate: true},
		{name: "pending own", requests: []*models.MessageRequest{req("r1", "me", models.RequestPending)}, wantAllowed: true},
		{name: "pending theirs", requests: []*models.MessageRequest{req("r1", "them", models.RequestPending)}},
		{name: "accepted", requests: []*models.MessageRequest{req("r1", "them", models.RequestAccepted)}, wantAllowed: true},
		{name: "rejected own", requests: []*models.MessageRequest{req("r1", "me", models.RequestRejected)}},
		{name: "rejected theirs", requests: []*models.MessageRequest{req("r1", "them", models.RequestRejected)}, wantAllowed: true, wantCreate: true},
		{
			name: "reopened after rejection",
			requests: []*models.MessageRequest{
				req("r2", "them", models.RequestPending),
				req("r1", "me", models.RequestRejected),
			},
		},
		{
			name: "accepted earlier",
			requests: []*models.MessageRequest{
				req("r2", "me", models.RequestRejected),
				req("r1", "them", models.RequestAccepted),
			},
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, create := decide("me", tt.connected, tt.requests)
			if d.Allowed != tt.wantAllowed || create != tt.wantCreate {
				t.Fatalf("decide() = (allowed %v, create %v), want (%v, %v)", d.Allowed, create, tt.wantAllowed, tt.wantCreate)
			}
			if !d.Allowed && d.Reason == "" {
				t.Fatal("denied decision has no reason")
			}
		})
	}
}

func TestAcceptAndRejectErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	gate := f.svc.Gate()

	f.send(t, a, b, "hello")
	requests, err := gate.ListIncoming(ctx, b)
	if err != nil {
		t.Fatalf("ListIncoming() error = %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("len(ListIncoming()) = %d, want 1", len(requests))
	}
	id := requests[0].ID

	if _, err := gate.Accept(ctx, "mrq_missing", b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Accept(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := gate.Accept(ctx, id, a); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("Accept() by sender error = %v, want ErrAuthorization", err)
	}
	if _, err := gate.Reject(ctx, id, c); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("Reject() by outsider error = %v, want ErrAuthorization", err)
	}

	if _, err := gate.Reject(ctx, id, b); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if _, err := gate.Accept(ctx, id, b); !errors.Is(err, ErrState) {
		t.Fatalf("Accept() after Reject error = %v, want ErrState", err)
	}
	if _, err := gate.Reject(ctx, id, b); !errors.Is(err, ErrState) {
		t.Fatalf("second Reject() error = %v, want ErrState", err)
	}

	incoming, err := gate.ListIncoming(ctx, b)
	if err != nil {
		t.Fatalf("ListIncoming() error = %v", err)
	}
	if len(incoming) != 0 {
		t.Fatalf("len(ListIncoming()) after Reject = %d, want 0", len(incoming))
	}
}

func TestRejectedRequestPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")
	gate := f.svc.Gate()

	f.send(t, a, b, "hello")
	requests, _ := gate.ListIncoming(ctx, b)
	if len(requests) != 1 {
		t.Fatalf("len(ListIncoming()) = %d, want 1", len(requests))
	}
	if _, err := gate.Reject(ctx, requests[0].ID, b); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	_, err := f.svc.SendMessage(ctx, SendInput{SenderID: a, RecipientID: b, Content: "please?"})
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("SendMessage() after rejection error = %v, want ErrPermission", err)
	}

	// The recipient may reach out, which opens a fresh request in the other direction.
	f.send(t, b, a, "changed my mind")

	incoming, err := gate.ListIncoming(ctx, a)
	if err != nil {
		t.Fatalf("ListIncoming() error = %v", err)
	}
	if len(incoming) != 1 || incoming[0].SenderID != b {
		t.Fatalf("incoming for alice = %+v, want one request from bob", incoming)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	gate := f.svc.Gate()
	f.connect(t, a, c)

	view, err := gate.Status(ctx, a, b)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if view.HasRequest || !view.CanMessage {
		t.Fatalf("Status() before any send = %+v, want no request and can message", view)
	}

	f.send(t, a, b, "hello")

	senderView, err := gate.Status(ctx, a, b)
	if err != nil {
		t.Fatalf("Status(sender) error = %v", err)
	}
	if !senderView.HasRequest || !senderView.IsSender || !senderView.CanMessage || senderView.RequestID == "" {
		t.Fatalf("Status(sender) = %+v", senderView)
	}

	recipientView, err := gate.Status(ctx, b, a)
	if err != nil {
		t.Fatalf("Status(recipient) error = %v", err)
	}
	if !recipientView.HasRequest || recipientView.IsSender || recipientView.CanMessage {
		t.Fatalf("Status(recipient) = %+v", recipientView)
	}
	if recipientView.RequestID != senderView.RequestID {
		t.Fatalf("RequestID mismatch: %s vs %s", recipientView.RequestID, senderView.RequestID)
	}

	if _, err := gate.Accept(ctx, recipientView.RequestID, b); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	recipientView, err = gate.Status(ctx, b, a)
	if err != nil {
		t.Fatalf("Status(recipient) error = %v", err)
	}
	if recipientView.HasRequest || !recipientView.CanMessage || recipientView.Status != models.RequestAccepted {
		t.Fatalf("Status(recipient) after accept = %+v", recipientView)
	}

	connectedView, err := gate.Status(ctx, c, a)
	if err != nil {
		t.Fatalf("Status(connected) error = %v", err)
	}
	if connectedView.HasRequest || !connectedView.CanMessage {
		t.Fatalf("Status(connected) = %+v", connectedView)
	}

	if _, err := gate.Status(ctx, a, a); !errors.Is(err, ErrValidation) {
		t.Fatalf("Status(self) error = %v, want ErrValidation", err)
	}
}
