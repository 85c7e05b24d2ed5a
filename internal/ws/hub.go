package ws

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"inbox/internal/models"
)

const (
	// maxDroppedMessagesBeforeDisconnect is the threshold for disconnecting slow clients
	maxDroppedMessagesBeforeDisconnect = 100
)

var ErrRegisterTimeout = errors.New("hub registration timed out")

// registerRequest is used for synchronous registration with a callback
type registerRequest struct {
	client *Client
	done   chan struct{}
}

// Hub fans change hints out to every connection of the affected users.
// It runs in a single process; hints are best effort.
type Hub struct {
	clients      map[string]map[*Client]struct{}
	registerSync chan registerRequest
	unregister   chan *Client
	shutdown     chan struct{}
	shutdownOnce sync.Once
	sequence     atomic.Int64
	mu           sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]map[*Client]struct{}),
		registerSync: make(chan registerRequest),
		unregister:   make(chan *Client),
		shutdown:     make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for userID, set := range h.clients {
				for client := range set {
					select {
					case client.send <- &WSMessage{Op: OpInvalidSession, Data: InvalidSessionPayload{Resumable: true}}:
					default:
					}
					client.finish()
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			slog.Info("shutdown complete", "component", "hub")
			return

		case req := <-h.registerSync:
			h.mu.Lock()
			set, ok := h.clients[req.client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[req.client.userID] = set
			}
			set[req.client] = struct{}{}
			req.client.registered.Store(true)
			// READY goes out before any hint and before the queue can close.
			req.client.queueReady()
			h.mu.Unlock()
			close(req.done)

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[client.userID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					client.finish()
				}
				if len(set) == 0 {
					delete(h.clients, client.userID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds the client to the hub. The hub queues READY as part of
// the registration.
func (h *Hub) Register(c *Client) error {
	done := make(chan struct{})
	select {
	case h.registerSync <- registerRequest{client: c, done: done}:
	case <-time.After(registerTimeout):
		return ErrRegisterTimeout
	}

	select {
	case <-done:
	case <-time.After(registerTimeout):
		return ErrRegisterTimeout
	}

	slog.Debug("client registered", "component", "hub", "user_id", c.userID, "session_id", c.sessionID)
	return nil
}

func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
	})
}

// Caller must hold at least a read lock on h.mu.
func (h *Hub) sendToClientLocked(client *Client, msg *WSMessage) {
	if !client.Registered() {
		return
	}
	select {
	case client.send <- msg:
	default:
		dropped := client.dropped.Add(1)
		if dropped%10 == 1 {
			slog.Warn("dropped messages for slow client", "component", "hub", "dropped", dropped, "user_id", client.userID)
		}

		if dropped >= maxDroppedMessagesBeforeDisconnect {
			slog.Warn("disconnecting slow client", "component", "hub", "user_id", client.userID, "dropped", dropped)
			client.Close()
		}
	}
}

func (h *Hub) dispatchToUser(userID, eventType string, payload any) {
	seq := h.sequence.Add(1)
	msg := &WSMessage{
		Op:   OpDispatch,
		Type: eventType,
		Data: payload,
		Seq:  &seq,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		h.sendToClientLocked(client, msg)
	}
}

func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// MessageCreated hints both participants that their thread changed.
func (h *Hub) MessageCreated(msg *models.Message) {
	h.dispatchToUser(msg.RecipientID, EventMessageCreate, MessageCreatePayload{
		MessageID:     msg.ID,
		CounterpartID: msg.SenderID,
		Incoming:      true,
		CreatedAt:     msg.CreatedAt,
	})
	h.dispatchToUser(msg.SenderID, EventMessageCreate, MessageCreatePayload{
		MessageID:     msg.ID,
		CounterpartID: msg.RecipientID,
		CreatedAt:     msg.CreatedAt,
	})
}

// ThreadRead hints the reader's other sessions and the counterpart.
func (h *Hub) ThreadRead(viewerID, counterpartID string) {
	payload := ThreadReadPayload{ReaderID: viewerID, CounterpartID: counterpartID}
	h.dispatchToUser(viewerID, EventThreadRead, payload)
	h.dispatchToUser(counterpartID, EventThreadRead, payload)
}

func (h *Hub) RequestUpdated(req *models.MessageRequest) {
	if req == nil {
		return
	}
	h.dispatchToUser(req.SenderID, EventRequestUpdate, RequestUpdatePayload{
		RequestID:     req.ID,
		CounterpartID: req.RecipientID,
		Status:        string(req.Status),
	})
	h.dispatchToUser(req.RecipientID, EventRequestUpdate, RequestUpdatePayload{
		RequestID:     req.ID,
		CounterpartID: req.SenderID,
		Status:        string(req.Status),
	})
}
