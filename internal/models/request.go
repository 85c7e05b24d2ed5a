package models

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type MessageRequest struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"senderId"`
	RecipientID string        `json:"recipientId"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
}

// RequestStatusView is the per-thread gate state as seen by one participant.
type RequestStatusView struct {
	HasRequest bool          `json:"hasRequest"`
	IsSender   bool          `json:"isSender"`
	CanMessage bool          `json:"canMessage"`
	RequestID  string        `json:"requestId,omitempty"`
	Status     RequestStatus `json:"status,omitempty"`
}

// PairKey returns a canonical key for the unordered pair (a, b).
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
